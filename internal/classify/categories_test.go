package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

func TestMapCategory(t *testing.T) {
	t.Parallel()

	tests := map[string]cookie.Category{
		"Functional":         cookie.CategoryFunctional,
		"Personalization":    cookie.CategoryFunctional,
		"Analytics":          cookie.CategoryPerformance,
		"Statistics":         cookie.CategoryPerformance,
		"Marketing":          cookie.CategoryTargeting,
		"Advertisement":      cookie.CategoryTargeting,
		"Werbung":            cookie.CategoryTargeting,
		"Security":           cookie.CategoryStrictlyNecessary,
		"Strictly Necessary": cookie.CategoryStrictlyNecessary,
		"Erforderlich":       cookie.CategoryStrictlyNecessary,
		"  essential ":       cookie.CategoryStrictlyNecessary,
		"":                   cookie.CategoryUnclassified,
		"Misc":               cookie.CategoryUnclassified,
	}
	for raw, want := range tests {
		assert.Equal(t, want, MapCategory(raw), "input %q", raw)
	}
}
