// Package report renders analysis results as JSON, Markdown, or a text table.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/cookie-crawler/internal/analyzer"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

// Format selects a renderer.
type Format string

// Supported formats.
const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ErrUnknownFormat is returned for unsupported format names.
var ErrUnknownFormat = errors.New("unknown report format")

// ParseFormat accepts the format names used on the command line.
func ParseFormat(raw string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "text", "txt", "table":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, raw)
	}
}

// Extension returns the file extension, without dot, for f.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// ContentType returns the MIME type used when uploading a rendered report.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// Writer renders a result to its destination.
type Writer interface {
	Write(res analyzer.Result) (int, error)
}

// NewWriter returns the Writer for f.
func NewWriter(f Format, out io.Writer) (Writer, error) {
	switch f {
	case FormatText:
		return NewTextWriter(out), nil
	case FormatJSON:
		return NewJSONWriter(out, WithPrettyPrint()), nil
	case FormatMarkdown:
		return NewMarkdownWriter(out), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// Render returns the result rendered in f.
func Render(f Format, res analyzer.Result) ([]byte, error) {
	var buf bytes.Buffer
	w, err := NewWriter(f, &buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(res); err != nil {
		return nil, fmt.Errorf("render %s: %w", f, err)
	}
	return buf.Bytes(), nil
}

// ObjectKey is the blob path for a rendered report.
func ObjectKey(prefix string, res analyzer.Result, f Format) string {
	name := fmt.Sprintf("%s.%s", res.RunID, f.Extension())
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func sortedCookies(cookies []cookie.ClassifiedCookie) []cookie.ClassifiedCookie {
	out := append([]cookie.ClassifiedCookie(nil), cookies...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

func detectedTechniques(fp map[cookie.Technique]bool) []string {
	var out []string
	for _, t := range cookie.Techniques() {
		if fp[t] {
			out = append(out, string(t))
		}
	}
	return out
}

func sortedDomains(byDomain map[string]int) []string {
	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool {
		if byDomain[domains[i]] != byDomain[domains[j]] {
			return byDomain[domains[i]] > byDomain[domains[j]]
		}
		return domains[i] < domains[j]
	})
	return domains
}

func expiryText(c cookie.ClassifiedCookie, now time.Time) string {
	if c.Expires == nil {
		return "session"
	}
	days := c.Lifetime(now).Hours() / 24
	if days < 0 {
		return "expired"
	}
	if days < 1 {
		return "< 1 day"
	}
	return fmt.Sprintf("%.0f days", days)
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
