package classify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

type compiledPattern struct {
	re       *regexp.Regexp
	category cookie.Category
}

type compiledKeywords struct {
	keywords []string
	category cookie.Category
}

// Heuristic classifies cookies that have no reference entry. Tiers run in a
// fixed order: pattern, domain, keyword, lifetime, then fallback.
type Heuristic struct {
	patterns []compiledPattern
	domains  []DomainRule
	keywords []compiledKeywords
	lifetime LifetimeRule
	describe map[cookie.Category]string
}

// NewHeuristic compiles a rule set.
func NewHeuristic(rules RuleSet) (*Heuristic, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("validate rules: %w", err)
	}
	h := &Heuristic{lifetime: rules.Lifetime, describe: map[cookie.Category]string{}}
	for category, text := range rules.Descriptions {
		h.describe[category] = text
	}
	for i, p := range rules.Patterns {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile patterns[%d] %q: %w", i, p.Pattern, err)
		}
		h.patterns = append(h.patterns, compiledPattern{re: re, category: p.Category})
	}
	for _, d := range rules.Domains {
		rule := DomainRule{Suffix: cookie.NormalizeDomain(d.Suffix), Category: d.Category}
		if rule.Category == "" {
			rule.Category = cookie.CategoryTargeting
		}
		h.domains = append(h.domains, rule)
	}
	for _, k := range rules.Keywords {
		lowered := make([]string, 0, len(k.Keywords))
		for _, kw := range k.Keywords {
			if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
				lowered = append(lowered, kw)
			}
		}
		h.keywords = append(h.keywords, compiledKeywords{keywords: lowered, category: k.Category})
	}
	if h.lifetime.LongLivedAfter <= 0 {
		h.lifetime.LongLivedAfter = defaultLongLivedAfter
	}
	return h, nil
}

// Describe renders the category's description template for c. It returns
// an empty string when the category has no template.
func (h *Heuristic) Describe(c cookie.RawCookie, category cookie.Category) string {
	text, ok := h.describe[category]
	if !ok || text == "" {
		return ""
	}
	domain := cookie.NormalizeDomain(c.Domain)
	if domain == "" {
		domain = "an unknown domain"
	}
	return strings.NewReplacer("{name}", c.Name, "{domain}", domain).Replace(text)
}

// Classify assigns a category to c as observed at now.
func (h *Heuristic) Classify(c cookie.RawCookie, now time.Time) (cookie.Category, cookie.Method) {
	if category, ok := h.byPattern(c.Name); ok {
		return category, cookie.MethodRuleBased
	}
	if category, ok := h.byDomain(c.Domain); ok {
		return category, cookie.MethodRuleBased
	}
	if category, ok := h.byKeyword(c.Name, c.Value); ok {
		return category, cookie.MethodRuleBased
	}
	if category, ok := h.byLifetime(c, now); ok {
		return category, cookie.MethodRuleBased
	}
	return cookie.CategoryUnclassified, cookie.MethodUnknown
}

// LongLived reports whether c outlives the long-lived threshold at now.
func (h *Heuristic) LongLived(c cookie.RawCookie, now time.Time) bool {
	return c.Expires != nil && c.Lifetime(now) > h.lifetime.LongLivedAfter
}

func (h *Heuristic) byPattern(name string) (cookie.Category, bool) {
	for _, p := range h.patterns {
		if p.re.MatchString(name) {
			return p.category, true
		}
	}
	return "", false
}

func (h *Heuristic) byDomain(domain string) (cookie.Category, bool) {
	d := cookie.NormalizeDomain(domain)
	if d == "" {
		return "", false
	}
	for _, rule := range h.domains {
		if d == rule.Suffix || strings.HasSuffix(d, "."+rule.Suffix) {
			return rule.Category, true
		}
	}
	return "", false
}

func (h *Heuristic) byKeyword(name, value string) (cookie.Category, bool) {
	lowerName := strings.ToLower(name)
	lowerValue := strings.ToLower(value)
	for _, group := range h.keywords {
		for _, kw := range group.keywords {
			if strings.Contains(lowerName, kw) || strings.Contains(lowerValue, kw) {
				return group.category, true
			}
		}
	}
	return "", false
}

func (h *Heuristic) byLifetime(c cookie.RawCookie, now time.Time) (cookie.Category, bool) {
	if c.IsSession() {
		if h.lifetime.Session == "" {
			return "", false
		}
		return h.lifetime.Session, true
	}
	if h.LongLived(c, now) && h.lifetime.LongLived != "" {
		return h.lifetime.LongLived, true
	}
	return "", false
}
