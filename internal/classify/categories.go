package classify

import (
	"strings"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

var categoryKeywords = []struct {
	category cookie.Category
	keywords []string
}{
	{cookie.CategoryStrictlyNecessary, []string{"strictly necessary", "essential", "necessary", "security", "erforderlich", "notwendig"}},
	{cookie.CategoryFunctional, []string{"functional", "preference", "personali"}},
	{cookie.CategoryPerformance, []string{"analytic", "statistic", "performance"}},
	{cookie.CategoryTargeting, []string{"targeting", "advertis", "marketing", "werbung"}},
}

// MapCategory normalizes free-text reference database categories such as
// "Analytics" or "Marketing". Unrecognized text maps to CategoryUnclassified.
func MapCategory(raw string) cookie.Category {
	text := strings.ToLower(strings.TrimSpace(raw))
	if text == "" {
		return cookie.CategoryUnclassified
	}
	for _, candidate := range categoryKeywords {
		for _, kw := range candidate.keywords {
			if strings.Contains(text, kw) {
				return candidate.category
			}
		}
	}
	return cookie.CategoryUnclassified
}
