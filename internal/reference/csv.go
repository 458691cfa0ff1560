// Package reference loads the Open Cookie Database into a classify.ReferenceTable.
package reference

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/cookie-crawler/internal/classify"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

// ErrNoNameColumn is returned when a CSV header has no cookie-name column.
var ErrNoNameColumn = errors.New("reference csv has no cookie name column")

// Column aliases, first match wins. The upstream Open Cookie Database header
// and the simplified header used by older exports are both accepted.
var columnAliases = map[string][]string{
	"name":     {"cookie / data key name", "cookie name", "name"},
	"category": {"category"},
	"vendor":   {"data controller", "parent organization/vendor", "vendor", "platform", "parent organization"},
	"desc":     {"description"},
	"expiry":   {"retention period", "expiration", "expiry"},
	"privacy":  {"user privacy & gdpr rights portals", "privacy policy", "privacy"},
	"domain":   {"domain"},
	"wildcard": {"wildcard match", "wildcard"},
}

// ParseCSV decodes an Open Cookie Database export. Rows are returned in file
// order without filtering; rows missing a name or category are left for
// classify.NewReferenceTable to report so row numbers stay meaningful.
func ParseCSV(r io.Reader) ([]cookie.ReferenceEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("reference csv is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := indexColumns(header)
	if _, ok := cols["name"]; !ok {
		return nil, ErrNoNameColumn
	}

	var entries []cookie.ReferenceEntry
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(entries)+1, err)
		}
		field := func(key string) string {
			idx, ok := cols[key]
			if !ok || idx >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[idx])
		}
		entry := cookie.ReferenceEntry{
			NamePattern:      field("name"),
			Vendor:           field("vendor"),
			Description:      field("desc"),
			Expiry:           field("expiry"),
			PrivacyPolicyURL: field("privacy"),
			Domain:           field("domain"),
			IsWildcard:       parseBool(field("wildcard")),
		}
		if raw := field("category"); raw != "" {
			entry.Category = classify.MapCategory(raw)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func indexColumns(header []string) map[string]int {
	positions := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := positions[name]; !dup {
			positions[name] = i
		}
	}
	cols := make(map[string]int, len(columnAliases))
	for key, aliases := range columnAliases {
		for _, alias := range aliases {
			if idx, ok := positions[alias]; ok {
				cols[key] = idx
				break
			}
		}
	}
	return cols
}

func parseBool(raw string) bool {
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "y":
		return true
	default:
		return false
	}
}
