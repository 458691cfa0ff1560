package classify

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

const defaultLongLivedAfter = 30 * 24 * time.Hour

// RuleSet is the tunable policy behind heuristic classification and
// fingerprint detection. Tier order is fixed; entry order within a tier matters.
type RuleSet struct {
	Patterns    []PatternRule     `yaml:"patterns"`
	Domains     []DomainRule      `yaml:"domains"`
	Keywords    []KeywordRule     `yaml:"keywords"`
	Lifetime    LifetimeRule      `yaml:"lifetime"`
	Fingerprint []FingerprintRule `yaml:"fingerprint"`
	// Descriptions holds per-category text for cookies without a reference
	// description. {name} and {domain} are substituted.
	Descriptions map[cookie.Category]string `yaml:"descriptions"`
}

// PatternRule maps a cookie-name regex to a category.
type PatternRule struct {
	Pattern  string          `yaml:"pattern"`
	Category cookie.Category `yaml:"category"`
}

// DomainRule matches a cookie domain equal to or under Suffix.
type DomainRule struct {
	Suffix   string          `yaml:"suffix"`
	Category cookie.Category `yaml:"category"`
}

// KeywordRule matches when the name or value contains any keyword.
type KeywordRule struct {
	Keywords []string        `yaml:"keywords"`
	Category cookie.Category `yaml:"category"`
}

// LifetimeRule classifies by expiry.
type LifetimeRule struct {
	LongLivedAfter time.Duration   `yaml:"long_lived_after"`
	LongLived      cookie.Category `yaml:"long_lived"`
	Session        cookie.Category `yaml:"session"`
}

// FingerprintRule flags a technique when a storage entry matches. Every
// non-empty matcher group must have at least one hit.
type FingerprintRule struct {
	Technique     cookie.Technique `yaml:"technique"`
	KeyContains   []string         `yaml:"key_contains"`
	ValueContains []string         `yaml:"value_contains"`
	ValuePrefix   []string         `yaml:"value_prefix"`
}

// DefaultRules returns the built-in rule table.
func DefaultRules() RuleSet {
	return RuleSet{
		Patterns: []PatternRule{
			{Pattern: `^(_ga|_gid|_gat)(_|$)`, Category: cookie.CategoryPerformance},
			{Pattern: `^(__utm|_utm)`, Category: cookie.CategoryPerformance},
			{Pattern: `^(_pk_|pk_|piwik|matomo)`, Category: cookie.CategoryPerformance},
			{Pattern: `^_hj`, Category: cookie.CategoryPerformance},
			{Pattern: `^(_clck|_clsk|ajs_|amplitude_id|mp_)`, Category: cookie.CategoryPerformance},
			{Pattern: `^(_fbp|_fbc|_gcl_|_uetsid|_uetvid|_pin_unauth|_pinterest|_ttp|_scid)`, Category: cookie.CategoryTargeting},
			{Pattern: `^(IDE|DSID|fr|tr|lidc|bcookie|test_cookie|NID|MUID)$`, Category: cookie.CategoryTargeting},
		},
		Domains: []DomainRule{
			{Suffix: "doubleclick.net"},
			{Suffix: "googlesyndication.com"},
			{Suffix: "googleadservices.com"},
			{Suffix: "google-analytics.com"},
			{Suffix: "googletagmanager.com"},
			{Suffix: "facebook.com"},
			{Suffix: "fb.com"},
			{Suffix: "bing.com"},
			{Suffix: "twitter.com"},
			{Suffix: "linkedin.com"},
			{Suffix: "youtube.com"},
			{Suffix: "adnxs.com"},
			{Suffix: "criteo.com"},
			{Suffix: "taboola.com"},
			{Suffix: "outbrain.com"},
			{Suffix: "hotjar.com"},
		},
		Keywords: []KeywordRule{
			{
				Keywords: []string{"session", "sess", "auth", "login", "csrf", "xsrf", "token", "security"},
				Category: cookie.CategoryStrictlyNecessary,
			},
			{
				Keywords: []string{"consent", "cookieconsent", "gdpr", "privacy", "preference", "prefs", "lang", "locale"},
				Category: cookie.CategoryFunctional,
			},
		},
		Lifetime: LifetimeRule{
			LongLivedAfter: defaultLongLivedAfter,
			LongLived:      cookie.CategoryTargeting,
			Session:        cookie.CategoryStrictlyNecessary,
		},
		Fingerprint: []FingerprintRule{
			{Technique: cookie.TechniqueCanvas, KeyContains: []string{"canvas", "fingerprint", "fpjs", "_fp", "clientjs"}},
			{Technique: cookie.TechniqueCanvas, KeyContains: []string{"hash", "signature"}, ValuePrefix: []string{"data:image"}},
			{Technique: cookie.TechniqueFont, KeyContains: []string{"font", "glyph"}},
			{Technique: cookie.TechniqueWebRTC, KeyContains: []string{"webrtc", "rtcpeer"}},
			{Technique: cookie.TechniqueWebRTC, ValueContains: []string{"stun:", "turn:"}},
			{Technique: cookie.TechniqueAudio, KeyContains: []string{"audio"}},
			{Technique: cookie.TechniqueAudio, ValueContains: []string{"oscillator"}},
			{Technique: cookie.TechniqueBattery, KeyContains: []string{"battery"}},
		},
		Descriptions: map[cookie.Category]string{
			cookie.CategoryStrictlyNecessary: "The cookie {name} is required for basic site functions such as sessions, login or security.",
			cookie.CategoryFunctional:        "The cookie {name} stores preferences such as language, region or consent choices.",
			cookie.CategoryPerformance:       "The cookie {name} collects anonymous statistics about how visitors use the site.",
			cookie.CategoryTargeting:         "The cookie {name} set by {domain} tracks visitors across sites to show personalised advertising.",
			cookie.CategoryUnclassified:      "The purpose of the cookie {name} set by {domain} could not be determined.",
		},
	}
}

// LoadRules reads a YAML rule table. Sections left out of the file keep their defaults;
// an explicitly empty list disables that tier.
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rules: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a YAML rule table, filling omitted sections from DefaultRules.
func ParseRules(data []byte) (RuleSet, error) {
	var rules RuleSet
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return RuleSet{}, fmt.Errorf("decode rules: %w", err)
	}
	defaults := DefaultRules()
	if rules.Patterns == nil {
		rules.Patterns = defaults.Patterns
	}
	if rules.Domains == nil {
		rules.Domains = defaults.Domains
	}
	if rules.Keywords == nil {
		rules.Keywords = defaults.Keywords
	}
	if rules.Fingerprint == nil {
		rules.Fingerprint = defaults.Fingerprint
	}
	if rules.Descriptions == nil {
		rules.Descriptions = map[cookie.Category]string{}
	}
	for category, text := range defaults.Descriptions {
		if _, set := rules.Descriptions[category]; !set {
			rules.Descriptions[category] = text
		}
	}
	if rules.Lifetime.LongLivedAfter <= 0 {
		rules.Lifetime.LongLivedAfter = defaults.Lifetime.LongLivedAfter
	}
	if rules.Lifetime.LongLived == "" {
		rules.Lifetime.LongLived = defaults.Lifetime.LongLived
	}
	if rules.Lifetime.Session == "" {
		rules.Lifetime.Session = defaults.Lifetime.Session
	}
	if err := rules.Validate(); err != nil {
		return RuleSet{}, err
	}
	return rules, nil
}

// Validate checks categories and techniques. Regexes are checked by NewHeuristic.
func (r RuleSet) Validate() error {
	for i, p := range r.Patterns {
		if p.Pattern == "" {
			return fmt.Errorf("patterns[%d].pattern must be set", i)
		}
		if !p.Category.Valid() {
			return fmt.Errorf("patterns[%d].category %q is not a known category", i, p.Category)
		}
	}
	for i, d := range r.Domains {
		if d.Suffix == "" {
			return fmt.Errorf("domains[%d].suffix must be set", i)
		}
		if d.Category != "" && !d.Category.Valid() {
			return fmt.Errorf("domains[%d].category %q is not a known category", i, d.Category)
		}
	}
	for i, k := range r.Keywords {
		if len(k.Keywords) == 0 {
			return fmt.Errorf("keywords[%d].keywords must not be empty", i)
		}
		if !k.Category.Valid() {
			return fmt.Errorf("keywords[%d].category %q is not a known category", i, k.Category)
		}
	}
	if r.Lifetime.LongLived != "" && !r.Lifetime.LongLived.Valid() {
		return fmt.Errorf("lifetime.long_lived %q is not a known category", r.Lifetime.LongLived)
	}
	if r.Lifetime.Session != "" && !r.Lifetime.Session.Valid() {
		return fmt.Errorf("lifetime.session %q is not a known category", r.Lifetime.Session)
	}
	for category := range r.Descriptions {
		if !category.Valid() {
			return fmt.Errorf("descriptions key %q is not a known category", category)
		}
	}
	known := map[cookie.Technique]bool{}
	for _, t := range cookie.Techniques() {
		known[t] = true
	}
	for i, f := range r.Fingerprint {
		if !known[f.Technique] {
			return fmt.Errorf("fingerprint[%d].technique %q is not a known technique", i, f.Technique)
		}
		if len(f.KeyContains)+len(f.ValueContains)+len(f.ValuePrefix) == 0 {
			return fmt.Errorf("fingerprint[%d] must define at least one matcher", i)
		}
	}
	return nil
}
