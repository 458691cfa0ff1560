package analyzer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/cookie-crawler/internal/classify"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

func TestSummarize(t *testing.T) {
	t.Parallel()

	classified := classify.Classification{
		cookie.CategoryPerformance: {
			{RawCookie: cookie.RawCookie{Name: "_ga", Domain: ".example.com", Expires: expires(10 * 24 * time.Hour)}, Method: cookie.MethodWildcard},
			{RawCookie: cookie.RawCookie{Name: "_gid", Domain: "example.com", Expires: expires(2 * 24 * time.Hour)}, Method: cookie.MethodDatabase},
		},
		cookie.CategoryStrictlyNecessary: {
			{RawCookie: cookie.RawCookie{Name: "sid", Domain: "example.com"}, Method: cookie.MethodRuleBased},
		},
		cookie.CategoryTargeting: {
			{RawCookie: cookie.RawCookie{Name: "old", Domain: "ads.net", Expires: expires(-time.Hour)}, Method: cookie.MethodUnknown},
		},
	}

	s := Summarize(classified, testNow)
	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 1, s.Session)
	assert.Equal(t, 3, s.Persistent)
	assert.InDelta(t, 4.0, s.AverageLifetimeDays, 0.001)
	assert.Equal(t, map[string]int{"example.com": 3, "ads.net": 1}, s.ByDomain)
	assert.Equal(t, 2, s.ByCategory[cookie.CategoryPerformance])
	assert.Equal(t, 0, s.ByCategory[cookie.CategoryFunctional])
	assert.Equal(t, 1, s.ByMethod[cookie.MethodWildcard])
	assert.Equal(t, 1, s.ByMethod[cookie.MethodUnknown])
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()

	s := Summarize(classify.Classification{}, testNow)
	assert.Zero(t, s.Total)
	assert.Zero(t, s.AverageLifetimeDays)
	assert.Len(t, s.ByCategory, len(cookie.Categories()))
}
