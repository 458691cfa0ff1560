package consent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		html string
		want bool
		sel  string
	}{
		{"onetrust", `<div id="onetrust-banner-sdk"></div>`, true, "#onetrust-banner-sdk"},
		{"cookiebot", `<div id="CybotCookiebotDialog"></div>`, true, "#CybotCookiebotDialog"},
		{"generic class", `<section class="site-cookie-banner dark"></section>`, true, "[class*='cookie-banner']"},
		{"none", `<main><p>hello</p></main>`, false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sel, got := Detect(tc.html)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.sel, sel)
		})
	}
}

func TestRejectTarget(t *testing.T) {
	t.Parallel()

	sel, ok := RejectTarget(`<button id="onetrust-reject-all-handler">x</button>`)
	require.True(t, ok)
	assert.Equal(t, "#onetrust-reject-all-handler", sel)

	sel, ok = RejectTarget(`<div><button> Nur notwendige Cookies </button></div>`)
	require.True(t, ok)
	assert.Equal(t, "button:nur notwendige", sel)

	_, ok = RejectTarget(`<button>Accept all</button>`)
	assert.False(t, ok)
}

func TestClickScriptEmbedsSelectors(t *testing.T) {
	t.Parallel()

	script := ClickScript()
	assert.Contains(t, script, `"#onetrust-reject-all-handler"`)
	assert.Contains(t, script, `"#onetrust-pc-btn-handler"`)
	assert.Contains(t, script, `"nur notwendige"`)
}
