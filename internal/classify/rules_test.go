package classify

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

func TestDefaultRulesValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultRules().Validate())
}

func TestLoadRulesMergesDefaults(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := `
patterns:
  - pattern: "^trk_"
    category: Targeting
domains: []
lifetime:
  long_lived_after: 240h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	rules, err := LoadRules(path)
	require.NoError(t, err)
	require.Len(t, rules.Patterns, 1)
	assert.Equal(t, cookie.CategoryTargeting, rules.Patterns[0].Category)
	assert.Empty(t, rules.Domains)
	assert.Equal(t, DefaultRules().Keywords, rules.Keywords)
	assert.Equal(t, 240*time.Hour, rules.Lifetime.LongLivedAfter)
	assert.Equal(t, cookie.CategoryTargeting, rules.Lifetime.LongLived)
	assert.Equal(t, cookie.CategoryStrictlyNecessary, rules.Lifetime.Session)
}

func TestParseRulesValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{name: "unknown category", yaml: "patterns:\n  - pattern: x\n    category: Nope\n", wantErr: "patterns[0].category"},
		{name: "empty suffix", yaml: "domains:\n  - suffix: \"\"\n", wantErr: "domains[0].suffix"},
		{name: "empty keywords", yaml: "keywords:\n  - category: Functional\n", wantErr: "keywords[0].keywords"},
		{name: "unknown technique", yaml: "fingerprint:\n  - technique: laser\n    key_contains: [x]\n", wantErr: "fingerprint[0].technique"},
		{name: "matcherless fingerprint", yaml: "fingerprint:\n  - technique: canvas\n", wantErr: "at least one matcher"},
		{name: "unknown description category", yaml: "descriptions:\n  Nope: text\n", wantErr: "descriptions key"},
		{name: "bad yaml", yaml: "patterns: [", wantErr: "decode rules"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseRules([]byte(tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseRulesMergesDescriptions(t *testing.T) {
	t.Parallel()

	rules, err := ParseRules([]byte("descriptions:\n  Targeting: \"{name} follows you around\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "{name} follows you around", rules.Descriptions[cookie.CategoryTargeting])
	assert.Equal(t, DefaultRules().Descriptions[cookie.CategoryPerformance], rules.Descriptions[cookie.CategoryPerformance])
	for _, category := range cookie.Categories() {
		assert.NotEmpty(t, rules.Descriptions[category], category)
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
