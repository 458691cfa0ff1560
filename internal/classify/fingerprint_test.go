package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

func newTestDetector(t *testing.T) *FingerprintDetector {
	t.Helper()
	rules := DefaultRules()
	h, err := NewHeuristic(rules)
	require.NoError(t, err)
	return NewFingerprintDetector(rules, h, fixedClock{now: testNow})
}

func TestDetectDefaultsToFalse(t *testing.T) {
	t.Parallel()

	got := newTestDetector(t).Detect(FingerprintInput{})
	require.Len(t, got, len(cookie.Techniques()))
	for technique, detected := range got {
		assert.False(t, detected, "technique %s", technique)
	}
}

func TestDetectPersistentIdentifier(t *testing.T) {
	t.Parallel()

	d := newTestDetector(t)
	long := cookie.RawCookie{Name: "vid", Value: "abc", Domain: "example.com", Expires: expiresIn(365 * 24 * time.Hour)}
	short := cookie.RawCookie{Name: "tmp", Value: "abc", Domain: "example.com", Expires: expiresIn(time.Hour)}
	pages := []string{"https://example.com/", "https://example.com/a"}

	everyPage := FingerprintInput{
		Pages: pages,
		Observations: []cookie.Observation{
			{Cookie: long, PageURL: pages[0]},
			{Cookie: long, PageURL: pages[1]},
			{Cookie: short, PageURL: pages[0]},
			{Cookie: short, PageURL: pages[1]},
		},
	}
	assert.True(t, d.Detect(everyPage)[cookie.TechniquePersistentIdentifier])

	onePage := FingerprintInput{
		Pages:        pages,
		Observations: []cookie.Observation{{Cookie: long, PageURL: pages[0]}, {Cookie: short, PageURL: pages[1]}},
	}
	assert.False(t, d.Detect(onePage)[cookie.TechniquePersistentIdentifier])

	shortOnly := FingerprintInput{
		Pages:        pages[:1],
		Observations: []cookie.Observation{{Cookie: short, PageURL: pages[0]}},
	}
	assert.False(t, d.Detect(shortOnly)[cookie.TechniquePersistentIdentifier])
}

func TestDetectStorageTechniques(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		storage cookie.PageStorage
		want    cookie.Technique
	}{
		{name: "canvas key", storage: cookie.PageStorage{Local: map[string]string{"fpjs_visitor": "1"}}, want: cookie.TechniqueCanvas},
		{name: "canvas data image", storage: cookie.PageStorage{Session: map[string]string{"renderHash": "data:image/png;base64,AAA"}}, want: cookie.TechniqueCanvas},
		{name: "font", storage: cookie.PageStorage{Local: map[string]string{"detectedFonts": "Arial"}}, want: cookie.TechniqueFont},
		{name: "webrtc value", storage: cookie.PageStorage{Local: map[string]string{"ice": "stun:stun.l.google.com"}}, want: cookie.TechniqueWebRTC},
		{name: "audio value", storage: cookie.PageStorage{Local: map[string]string{"ctx": "OscillatorNode"}}, want: cookie.TechniqueAudio},
		{name: "battery", storage: cookie.PageStorage{Local: map[string]string{"batteryLevel": "0.5"}}, want: cookie.TechniqueBattery},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := newTestDetector(t).Detect(FingerprintInput{
				Storage: map[string]cookie.PageStorage{"https://example.com/": tc.storage},
			})
			for technique, detected := range got {
				assert.Equal(t, technique == tc.want, detected, "technique %s", technique)
			}
		})
	}
}

func TestDetectIgnoresHashWithoutImage(t *testing.T) {
	t.Parallel()

	got := newTestDetector(t).Detect(FingerprintInput{
		Storage: map[string]cookie.PageStorage{"u": {Local: map[string]string{"cartHash": "abc"}}},
	})
	assert.False(t, got[cookie.TechniqueCanvas])
}
