package classify

import (
	"time"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

// Clock returns the observation time used for lifetime rules.
type Clock interface {
	Now() time.Time
}

// Classification groups classified cookies by category. Every known category
// is present, possibly with an empty slice.
type Classification map[cookie.Category][]cookie.ClassifiedCookie

// Total returns the number of classified cookies.
func (c Classification) Total() int {
	n := 0
	for _, bucket := range c {
		n += len(bucket)
	}
	return n
}

// Classifier resolves cookies through the reference table and falls back to heuristics.
type Classifier struct {
	table     *ReferenceTable
	heuristic *Heuristic
	clock     Clock
}

// NewClassifier builds a Classifier. A nil table classifies purely by heuristics.
func NewClassifier(table *ReferenceTable, heuristic *Heuristic, clock Clock) *Classifier {
	return &Classifier{table: table, heuristic: heuristic, clock: clock}
}

// Classify deduplicates observed cookies and groups them by category.
func (c *Classifier) Classify(observed []cookie.RawCookie) Classification {
	now := c.clock.Now()
	out := make(Classification, len(cookie.Categories()))
	for _, category := range cookie.Categories() {
		out[category] = []cookie.ClassifiedCookie{}
	}
	for _, raw := range Dedupe(observed) {
		classified := c.classifyAt(raw, now)
		out[classified.Category] = append(out[classified.Category], classified)
	}
	return out
}

func (c *Classifier) classifyAt(raw cookie.RawCookie, now time.Time) cookie.ClassifiedCookie {
	out := cookie.ClassifiedCookie{RawCookie: raw}
	entry, method, ok := c.table.Lookup(raw.Name)
	if ok {
		out.Vendor = entry.Vendor
		out.Description = entry.Description
		if entry.Category.Valid() && entry.Category != cookie.CategoryUnclassified {
			out.Category = entry.Category
			out.Method = method
			return out
		}
	}
	out.Category, out.Method = c.heuristic.Classify(raw, now)
	if out.Description == "" {
		out.Description = c.heuristic.Describe(raw, out.Category)
	}
	return out
}

// Dedupe collapses cookies sharing a (name, domain) key. The latest observation's
// fields win and the first-seen position is kept.
func Dedupe(observed []cookie.RawCookie) []cookie.RawCookie {
	index := make(map[cookie.Key]int, len(observed))
	out := make([]cookie.RawCookie, 0, len(observed))
	for _, raw := range observed {
		key := raw.Key()
		if pos, seen := index[key]; seen {
			out[pos] = raw
			continue
		}
		index[key] = len(out)
		out = append(out, raw)
	}
	return out
}
