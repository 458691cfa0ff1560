// Package classify assigns purpose categories to cookies and detects fingerprinting signals.
package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

// ReferenceTable resolves cookie names against reference database entries.
// It is immutable after construction and safe for concurrent use.
type ReferenceTable struct {
	entries   []cookie.ReferenceEntry
	exact     map[string]int
	wildcards []int
	warnings  []string
}

// NewReferenceTable indexes entries for lookup. Rows missing a name pattern or
// category are skipped and reported in the returned warnings.
func NewReferenceTable(entries []cookie.ReferenceEntry) (*ReferenceTable, []string) {
	t := &ReferenceTable{exact: make(map[string]int, len(entries))}
	var warnings []string
	for i, entry := range entries {
		if strings.TrimSpace(entry.NamePattern) == "" || entry.Category == "" {
			warnings = append(warnings, fmt.Sprintf("reference row %d skipped: missing name pattern or category", i+1))
			continue
		}
		if entry.Wildcard() && entry.Prefix() == "" {
			warnings = append(warnings, fmt.Sprintf("reference row %d skipped: wildcard %q has no literal prefix", i+1, entry.NamePattern))
			continue
		}
		idx := len(t.entries)
		t.entries = append(t.entries, entry)
		if _, seen := t.exact[entry.NamePattern]; !seen {
			t.exact[entry.NamePattern] = idx
		}
		if entry.Wildcard() {
			t.wildcards = append(t.wildcards, idx)
		}
	}
	// Longest prefix first; stable keeps insertion order for equal lengths.
	sort.SliceStable(t.wildcards, func(a, b int) bool {
		return len(t.entries[t.wildcards[a]].Prefix()) > len(t.entries[t.wildcards[b]].Prefix())
	})
	t.warnings = warnings
	return t, warnings
}

// Warnings returns the rows skipped while building the table.
func (t *ReferenceTable) Warnings() []string {
	if t == nil {
		return nil
	}
	return append([]string(nil), t.warnings...)
}

// Len returns the number of usable entries.
func (t *ReferenceTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Lookup returns the best entry for name. An exact pattern match wins over any
// wildcard; among wildcards the longest literal prefix wins.
func (t *ReferenceTable) Lookup(name string) (cookie.ReferenceEntry, cookie.Method, bool) {
	if t == nil || name == "" {
		return cookie.ReferenceEntry{}, cookie.MethodUnknown, false
	}
	if idx, ok := t.exact[name]; ok {
		return t.entries[idx], cookie.MethodDatabase, true
	}
	for _, idx := range t.wildcards {
		entry := t.entries[idx]
		if strings.HasPrefix(name, entry.Prefix()) {
			return entry, cookie.MethodWildcard, true
		}
	}
	return cookie.ReferenceEntry{}, cookie.MethodUnknown, false
}
