package crawler

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"strips default https port", "https://example.com:443/a", "https://example.com/a"},
		{"strips default http port", "http://example.com:80/a", "http://example.com/a"},
		{"keeps custom port", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"drops fragment", "https://example.com/a#section", "https://example.com/a"},
		{"sorts query", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"empty path", "https://example.com", "https://example.com/"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			in, err := url.Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, normalize(in).String())
		})
	}
}

func TestValidateSeedURL(t *testing.T) {
	t.Parallel()

	u, err := ValidateSeedURL("  example.com/start ")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/start", u.String())

	u, err = ValidateSeedURL("http://Example.com")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/", u.String())

	for _, bad := range []string{"", "ftp://example.com", "https://", "file:///etc/passwd"} {
		_, err := ValidateSeedURL(bad)
		assert.ErrorIsf(t, err, ErrInvalidSeed, "input %q", bad)
	}
}

func TestResolveLink(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.com/dir/page")
	require.NoError(t, err)

	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"other", "https://example.com/dir/other", true},
		{"/root?z=1&a=2", "https://example.com/root?a=2&z=1", true},
		{"../up#frag", "https://example.com/up", true},
		{"//cdn.example.com/x", "https://cdn.example.com/x", true},
		{"#top", "", false},
		{"JavaScript:alert(1)", "", false},
		{"mailto:x@example.com", "", false},
		{"tel:+1", "", false},
		{"data:text/plain,hi", "", false},
		{"ftp://example.com/file", "", false},
		{"   ", "", false},
	}
	for _, tc := range tests {
		got, ok := resolveLink(base, tc.href)
		require.Equalf(t, tc.ok, ok, "href %q", tc.href)
		if ok {
			assert.Equal(t, tc.want, got.String())
		}
	}
}

func TestSameHost(t *testing.T) {
	t.Parallel()

	seed, _ := url.Parse("https://www.example.com/")
	same, _ := url.Parse("https://WWW.example.com/x")
	sub, _ := url.Parse("https://example.com/")
	port, _ := url.Parse("https://www.example.com:8443/")

	assert.True(t, sameHost(seed, same))
	assert.False(t, sameHost(seed, sub))
	assert.False(t, sameHost(seed, port))
	assert.False(t, sameHost(seed, nil))
}

func TestRobotsPath(t *testing.T) {
	t.Parallel()

	u, _ := url.Parse("https://example.com/a%20b?q=1")
	assert.Equal(t, "/a%20b?q=1", robotsPath(u))
	u, _ = url.Parse("https://example.com")
	assert.Equal(t, "/", robotsPath(u))
}
