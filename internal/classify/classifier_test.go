package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

func newTestClassifier(t *testing.T, entries []cookie.ReferenceEntry) *Classifier {
	t.Helper()
	table, warnings := NewReferenceTable(entries)
	require.Empty(t, warnings)
	h, err := NewHeuristic(DefaultRules())
	require.NoError(t, err)
	return NewClassifier(table, h, fixedClock{now: testNow})
}

func TestClassifyGoogleAnalyticsWithEmptyTable(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, nil)
	out := c.Classify([]cookie.RawCookie{{Name: "_ga", Value: "GA1.2.123", Domain: ".example.com"}})

	require.Len(t, out[cookie.CategoryPerformance], 1)
	got := out[cookie.CategoryPerformance][0]
	assert.Equal(t, cookie.MethodRuleBased, got.Method)
	assert.Equal(t, "GA1.2.123", got.Value)
}

func TestClassifyExactDatabaseHit(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, []cookie.ReferenceEntry{
		{NamePattern: "session", Vendor: "Example", Description: "login state", Category: cookie.CategoryStrictlyNecessary},
	})
	out := c.Classify([]cookie.RawCookie{{Name: "session", Value: "abc123", Domain: "example.com"}})

	require.Len(t, out[cookie.CategoryStrictlyNecessary], 1)
	got := out[cookie.CategoryStrictlyNecessary][0]
	assert.Equal(t, cookie.MethodDatabase, got.Method)
	assert.Equal(t, "Example", got.Vendor)
	assert.Equal(t, "login state", got.Description)
}

func TestClassifyWildcardHit(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, []cookie.ReferenceEntry{
		{NamePattern: "_ga*", Vendor: "Google", Category: cookie.CategoryPerformance},
		{NamePattern: "_gac_*", Vendor: "Google Ads", Category: cookie.CategoryTargeting},
	})
	out := c.Classify([]cookie.RawCookie{{Name: "_gac_123", Value: "1", Domain: "example.com"}})

	require.Len(t, out[cookie.CategoryTargeting], 1)
	assert.Equal(t, cookie.MethodWildcard, out[cookie.CategoryTargeting][0].Method)
	assert.Equal(t, "Google Ads", out[cookie.CategoryTargeting][0].Vendor)
}

func TestClassifyUnclassifiedReferenceFallsBackToRules(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, []cookie.ReferenceEntry{
		{NamePattern: "_fbp", Vendor: "Meta", Category: cookie.CategoryUnclassified},
	})
	got := c.classifyAt(cookie.RawCookie{Name: "_fbp", Value: "fb.1", Domain: "example.com"}, testNow)

	assert.Equal(t, cookie.CategoryTargeting, got.Category)
	assert.Equal(t, cookie.MethodRuleBased, got.Method)
	assert.Equal(t, "Meta", got.Vendor)
	assert.Contains(t, got.Description, "_fbp")
}

func TestClassifyFillsTemplateDescriptions(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, []cookie.ReferenceEntry{
		{NamePattern: "_gid", Vendor: "Google", Description: "kept as written", Category: cookie.CategoryUnclassified},
	})
	tests := []struct {
		name       string
		raw        cookie.RawCookie
		category   cookie.Category
		method     cookie.Method
		wantSubstr []string
	}{
		{
			name:       "rule-based performance",
			raw:        cookie.RawCookie{Name: "_ga", Value: "GA1.2.3", Domain: ".example.com"},
			category:   cookie.CategoryPerformance,
			method:     cookie.MethodRuleBased,
			wantSubstr: []string{"_ga", "statistics"},
		},
		{
			name:       "rule-based targeting names the domain",
			raw:        cookie.RawCookie{Name: "uid", Value: "1", Domain: ".doubleclick.net"},
			category:   cookie.CategoryTargeting,
			method:     cookie.MethodRuleBased,
			wantSubstr: []string{"uid", "doubleclick.net", "advertising"},
		},
		{
			name:       "unknown",
			raw:        cookie.RawCookie{Name: "mystery", Value: "x", Domain: "example.com", Expires: expiresIn(time.Hour)},
			category:   cookie.CategoryUnclassified,
			method:     cookie.MethodUnknown,
			wantSubstr: []string{"mystery", "example.com", "could not be determined"},
		},
		{
			name:       "reference description wins",
			raw:        cookie.RawCookie{Name: "_gid", Value: "GA1.2.3", Domain: "example.com"},
			category:   cookie.CategoryPerformance,
			method:     cookie.MethodRuleBased,
			wantSubstr: []string{"kept as written"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := c.classifyAt(tc.raw, testNow)
			assert.Equal(t, tc.category, got.Category)
			assert.Equal(t, tc.method, got.Method)
			for _, want := range tc.wantSubstr {
				assert.Contains(t, got.Description, want)
			}
		})
	}
}

func TestClassifyKeepsDatabaseDescriptionEmpty(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, []cookie.ReferenceEntry{
		{NamePattern: "cart", Vendor: "Shop", Category: cookie.CategoryFunctional},
	})
	got := c.classifyAt(cookie.RawCookie{Name: "cart", Value: "1", Domain: "example.com"}, testNow)

	assert.Equal(t, cookie.MethodDatabase, got.Method)
	assert.Empty(t, got.Description)
}

func TestClassifyDedupesLastValueFirstPosition(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, nil)
	observed := []cookie.RawCookie{
		{Name: "a_session", Value: "1", Domain: "example.com"},
		{Name: "b_session", Value: "x", Domain: "example.com"},
		{Name: "a_session", Value: "2", Domain: ".EXAMPLE.com"},
		{Name: "a_session", Value: "3", Domain: "other.com"},
	}
	out := c.Classify(observed)

	bucket := out[cookie.CategoryStrictlyNecessary]
	require.Len(t, bucket, 3)
	assert.Equal(t, "a_session", bucket[0].Name)
	assert.Equal(t, "2", bucket[0].Value)
	assert.Equal(t, "b_session", bucket[1].Name)
	assert.Equal(t, "other.com", bucket[2].Domain)
}

func TestClassifyIsTotalAndIdempotent(t *testing.T) {
	t.Parallel()

	c := newTestClassifier(t, []cookie.ReferenceEntry{
		{NamePattern: "pref", Category: cookie.CategoryFunctional},
	})
	expiry := testNow.Add(90 * 24 * time.Hour)
	observed := []cookie.RawCookie{
		{Name: "pref", Value: "dark", Domain: "example.com"},
		{Name: "_ga", Value: "GA1", Domain: "example.com"},
		{Name: "IDE", Value: "x", Domain: "doubleclick.net"},
		{Name: "rand", Value: "y", Domain: "example.com", Expires: &expiry},
		{Name: "plain", Value: "z", Domain: "example.com", Expires: ptrTime(testNow.Add(time.Hour))},
	}
	first := c.Classify(observed)
	second := c.Classify(observed)

	assert.Equal(t, first, second)
	assert.Equal(t, len(observed), first.Total())
	for _, category := range cookie.Categories() {
		_, ok := first[category]
		assert.True(t, ok, "category %s present", category)
	}
	require.Len(t, first[cookie.CategoryUnclassified], 1)
	assert.Equal(t, cookie.MethodUnknown, first[cookie.CategoryUnclassified][0].Method)
}

func TestDedupeKeepsEveryKeyOnce(t *testing.T) {
	t.Parallel()

	in := []cookie.RawCookie{
		{Name: "a", Domain: "x.com", Value: "1"},
		{Name: "a", Domain: "x.com", Value: "2"},
		{Name: "a", Domain: "x.com", Value: "3"},
		{Name: "b", Domain: "x.com", Value: "1"},
	}
	out := Dedupe(in)
	require.Len(t, out, 2)
	assert.Equal(t, "3", out[0].Value)
	assert.Equal(t, "b", out[1].Name)
}

func ptrTime(t time.Time) *time.Time { return &t }
