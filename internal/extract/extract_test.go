package extract

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

func TestLinks(t *testing.T) {
	t.Parallel()

	html := []byte(`<html><body>
<a href="/a">A</a>
<a href=" https://example.com/b ">B</a>
<a>no href</a>
<a href="">empty</a>
<a href="mailto:x@example.com">mail</a>
</body></html>`)

	links, err := Links(html)
	require.NoError(t, err)
	assert.Equal(t, []string{"/a", "https://example.com/b", "mailto:x@example.com"}, links)
}

func TestStorageDumpEntries(t *testing.T) {
	t.Parallel()

	var dump StorageDump
	require.NoError(t, json.Unmarshal([]byte(`{"local":{"b":"2","a":"1"},"session":{"s":"x"}}`), &dump))

	entries := dump.Entries("https://example.com/")
	assert.Equal(t, []cookie.StorageEntry{
		{URL: "https://example.com/", Kind: cookie.StorageLocal, Key: "a", Value: "1"},
		{URL: "https://example.com/", Kind: cookie.StorageLocal, Key: "b", Value: "2"},
		{URL: "https://example.com/", Kind: cookie.StorageSession, Key: "s", Value: "x"},
	}, entries)
}

func TestLooksScriptRendered(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want bool
	}{
		{"empty body", "", true},
		{"spa marker", `<div id="__next"></div>`, true},
		{"script heavy", `<html><script>var a=1;</script><p>t</p></html>`, true},
		{"whitespace body", "  \n\t", true},
		{"nuxt mount", `<html><body><div id="__nuxt"></div><script src="/app.js"></script></body></html>`, true},
		{"external bundle with stub text", `<html><body><p>Loading</p><script src="/bundle.js"></script></body></html>`, true},
		{"static page", `<html><body><h1>Hello</h1><p>plain server-rendered text</p></body></html>`, false},
		{"article with analytics", `<html><body><article>` + strings.Repeat("Long form server-rendered prose. ", 20) +
			`</article><script src="https://analytics.test/a.js"></script></body></html>`, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, LooksScriptRendered([]byte(tc.body)))
		})
	}
}
