package analyzer

import (
	"time"

	"github.com/JakeFAU/cookie-crawler/internal/classify"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

// Summary holds the usage statistics shown alongside a classification.
type Summary struct {
	Total               int                     `json:"total"`
	ByCategory          map[cookie.Category]int `json:"byCategory"`
	ByDomain            map[string]int          `json:"byDomain"`
	ByMethod            map[cookie.Method]int   `json:"byMethod"`
	Session             int                     `json:"session"`
	Persistent          int                     `json:"persistent"`
	AverageLifetimeDays float64                 `json:"averageLifetimeDays"`
}

// Summarize computes usage statistics relative to now. Expired cookies count
// as persistent with a zero lifetime.
func Summarize(classified classify.Classification, now time.Time) Summary {
	s := Summary{
		ByCategory: make(map[cookie.Category]int, len(cookie.Categories())),
		ByDomain:   map[string]int{},
		ByMethod:   map[cookie.Method]int{},
	}
	for _, category := range cookie.Categories() {
		s.ByCategory[category] = 0
	}
	var lifetime time.Duration
	for category, cookies := range classified {
		s.ByCategory[category] += len(cookies)
		for _, c := range cookies {
			s.Total++
			s.ByDomain[cookie.NormalizeDomain(c.Domain)]++
			s.ByMethod[c.Method]++
			if c.IsSession() {
				s.Session++
				continue
			}
			s.Persistent++
			if remaining := c.Lifetime(now); remaining > 0 {
				lifetime += remaining
			}
		}
	}
	if s.Persistent > 0 {
		s.AverageLifetimeDays = lifetime.Hours() / 24 / float64(s.Persistent)
	}
	return s
}
