package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/cookie-crawler/internal/analyzer"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

const (
	nameColumnWidth  = 40
	valueColumnWidth = 24
)

// TextWriter renders one table per category plus a summary.
type TextWriter struct {
	out io.Writer
}

// NewTextWriter creates a TextWriter.
func NewTextWriter(out io.Writer) *TextWriter {
	return &TextWriter{out: out}
}

// Write renders res.
func (w *TextWriter) Write(res analyzer.Result) (int, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Cookie report for %s (run %s)\n", res.SeedURL, res.RunID)
	fmt.Fprintf(&b, "Pages crawled: %d\n\n", len(res.Pages))

	for _, category := range cookie.Categories() {
		cookies := res.Classified[category]
		if len(cookies) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s (%d)\n", category, len(cookies))
		b.WriteString(w.categoryTable(cookies, res).Render())
		b.WriteString("\n\n")
	}

	b.WriteString(w.summaryTable(res).Render())
	b.WriteString("\n")

	if found := detectedTechniques(res.Fingerprinting); len(found) > 0 {
		fmt.Fprintf(&b, "\nFingerprinting detected: %s\n", strings.Join(found, ", "))
	} else if res.Fingerprinting != nil {
		b.WriteString("\nNo fingerprinting detected.\n")
	}

	if len(res.Warnings) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, warning := range res.Warnings {
			fmt.Fprintf(&b, "  - %s\n", warning)
		}
	}
	return io.WriteString(w.out, b.String())
}

func (w *TextWriter) categoryTable(cookies []cookie.ClassifiedCookie, res analyzer.Result) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMax: nameColumnWidth},
		{Number: 3, WidthMax: valueColumnWidth},
	})
	t.AppendHeader(table.Row{"Name", "Domain", "Vendor", "Method", "Expires", "Secure", "HttpOnly"})
	for _, c := range sortedCookies(cookies) {
		t.AppendRow(table.Row{
			c.Name,
			c.Domain,
			dash(c.Vendor),
			c.Method,
			expiryText(c, res.FinishedAt),
			c.Secure,
			c.HTTPOnly,
		})
	}
	return t
}

func (w *TextWriter) summaryTable(res analyzer.Result) table.Writer {
	s := res.Summary
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle("Summary")
	t.AppendHeader(table.Row{"Metric", "Value"})
	for _, category := range cookie.Categories() {
		t.AppendRow(table.Row{string(category), s.ByCategory[category]})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Session", s.Session})
	t.AppendRow(table.Row{"Persistent", s.Persistent})
	t.AppendRow(table.Row{"Avg lifetime (days)", fmt.Sprintf("%.1f", s.AverageLifetimeDays)})
	t.AppendFooter(table.Row{"Total", s.Total})
	return t
}
