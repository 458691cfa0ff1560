// Package cookie holds the data model shared by the crawler, classifier, and report layers.
package cookie

import (
	"strings"
	"time"
)

// Category is the purpose bucket a cookie is assigned to.
type Category string

// Known categories.
const (
	CategoryStrictlyNecessary Category = "Strictly Necessary"
	CategoryFunctional        Category = "Functional"
	CategoryPerformance       Category = "Performance"
	CategoryTargeting         Category = "Targeting"
	CategoryUnclassified      Category = "Unclassified"
)

// Categories lists every category in report order.
func Categories() []Category {
	return []Category{
		CategoryStrictlyNecessary,
		CategoryFunctional,
		CategoryPerformance,
		CategoryTargeting,
		CategoryUnclassified,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryStrictlyNecessary, CategoryFunctional, CategoryPerformance, CategoryTargeting, CategoryUnclassified:
		return true
	default:
		return false
	}
}

// Method records how a cookie's category was decided.
type Method string

// Classification provenance.
const (
	MethodDatabase  Method = "database"
	MethodWildcard  Method = "wildcard"
	MethodRuleBased Method = "rule-based"
	MethodUnknown   Method = "unknown"
)

// SameSite mirrors the cookie SameSite attribute.
type SameSite string

// SameSite values. SameSiteUnset means the attribute was absent.
const (
	SameSiteUnset  SameSite = ""
	SameSiteStrict SameSite = "Strict"
	SameSiteLax    SameSite = "Lax"
	SameSiteNone   SameSite = "None"
)

// ParseSameSite normalizes driver-specific spellings.
func ParseSameSite(raw string) SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "strict":
		return SameSiteStrict
	case "lax":
		return SameSiteLax
	case "none", "no_restriction":
		return SameSiteNone
	default:
		return SameSiteUnset
	}
}

// Key is the identity of a cookie across pages.
type Key struct {
	Name   string
	Domain string
}

// RawCookie is a cookie exactly as the browser reported it.
type RawCookie struct {
	Name     string     `json:"name"`
	Value    string     `json:"value"`
	Domain   string     `json:"domain"`
	Path     string     `json:"path"`
	Expires  *time.Time `json:"expires,omitempty"`
	Secure   bool       `json:"secure"`
	HTTPOnly bool       `json:"httpOnly"`
	SameSite SameSite   `json:"sameSite,omitempty"`
}

// Key returns the identity key. The domain is lowercased without its leading dot
// so host-only and domain cookies reported by different drivers collapse.
func (c RawCookie) Key() Key {
	return Key{Name: c.Name, Domain: NormalizeDomain(c.Domain)}
}

// IsSession reports whether the cookie has no expiry.
func (c RawCookie) IsSession() bool {
	return c.Expires == nil
}

// Lifetime returns the remaining lifetime relative to now. Session cookies return zero.
func (c RawCookie) Lifetime(now time.Time) time.Duration {
	if c.Expires == nil {
		return 0
	}
	return c.Expires.Sub(now)
}

// NormalizeDomain lowercases a cookie domain and strips the leading dot.
func NormalizeDomain(domain string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

// ReferenceEntry is one row of the reference cookie database.
type ReferenceEntry struct {
	NamePattern      string   `json:"namePattern"`
	Vendor           string   `json:"vendor"`
	Category         Category `json:"category"`
	Description      string   `json:"description"`
	Expiry           string   `json:"expiry"`
	PrivacyPolicyURL string   `json:"privacyPolicyUrl"`
	Domain           string   `json:"domain,omitempty"`
	IsWildcard       bool     `json:"isWildcard"`
}

// Wildcard reports whether the entry matches by prefix.
func (e ReferenceEntry) Wildcard() bool {
	return e.IsWildcard || strings.HasSuffix(e.NamePattern, "*")
}

// Prefix returns the literal part of a wildcard pattern.
func (e ReferenceEntry) Prefix() string {
	return strings.TrimRight(e.NamePattern, "*")
}

// ClassifiedCookie is a RawCookie with its decided category.
type ClassifiedCookie struct {
	RawCookie
	Category    Category `json:"category"`
	Description string   `json:"description,omitempty"`
	Vendor      string   `json:"vendor,omitempty"`
	Method      Method   `json:"classificationMethod"`
}

// StorageKind distinguishes localStorage from sessionStorage.
type StorageKind string

// Storage kinds.
const (
	StorageLocal   StorageKind = "local"
	StorageSession StorageKind = "session"
)

// StorageEntry is one web-storage key observed on a page.
type StorageEntry struct {
	URL   string      `json:"url"`
	Kind  StorageKind `json:"kind"`
	Key   string      `json:"key"`
	Value string      `json:"value"`
}

// PageStorage groups storage entries of a single page.
type PageStorage struct {
	Local   map[string]string `json:"local"`
	Session map[string]string `json:"session"`
}

// NewPageStorage returns an empty, non-nil PageStorage.
func NewPageStorage() PageStorage {
	return PageStorage{Local: map[string]string{}, Session: map[string]string{}}
}

// Add records an entry under its kind.
func (p PageStorage) Add(entry StorageEntry) {
	switch entry.Kind {
	case StorageSession:
		p.Session[entry.Key] = entry.Value
	default:
		p.Local[entry.Key] = entry.Value
	}
}

// Technique names a browser-fingerprinting technique.
type Technique string

// Known techniques.
const (
	TechniqueCanvas               Technique = "canvas"
	TechniqueFont                 Technique = "font"
	TechniqueWebRTC               Technique = "webrtc"
	TechniqueAudio                Technique = "audio"
	TechniqueBattery              Technique = "battery"
	TechniquePersistentIdentifier Technique = "persistent-identifier"
)

// Techniques lists every technique.
func Techniques() []Technique {
	return []Technique{
		TechniqueCanvas,
		TechniqueFont,
		TechniqueWebRTC,
		TechniqueAudio,
		TechniqueBattery,
		TechniquePersistentIdentifier,
	}
}

// Observation is a cookie seen on a specific page.
type Observation struct {
	Cookie  RawCookie
	PageURL string
}
