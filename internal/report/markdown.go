package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/JakeFAU/cookie-crawler/internal/analyzer"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

// MarkdownWriter renders a GitHub-flavored Markdown report.
type MarkdownWriter struct {
	out io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter.
func NewMarkdownWriter(out io.Writer) *MarkdownWriter {
	return &MarkdownWriter{out: out}
}

// Write renders res.
func (w *MarkdownWriter) Write(res analyzer.Result) (int, error) {
	md := markdown.NewMarkdown(w.out)

	md.H1("Cookie Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Site", "`" + res.SeedURL + "`"},
			{"Run", "`" + res.RunID + "`"},
			{"Analyzed", res.FinishedAt.Format("2006-01-02 15:04:05 MST")},
			{"Pages Crawled", strconv.Itoa(len(res.Pages))},
			{"Cookies", strconv.Itoa(res.Summary.Total)},
		},
	})
	md.PlainText("")

	w.writeSummary(md, res)
	w.writeCategories(md, res)
	w.writeFingerprinting(md, res)
	w.writeWarnings(md, res)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, res analyzer.Result) {
	s := res.Summary
	md.H2("Summary")
	md.PlainText("")

	rows := make([][]string, 0, len(cookie.Categories()))
	for _, category := range cookie.Categories() {
		rows = append(rows, []string{string(category), strconv.Itoa(s.ByCategory[category])})
	}
	rows = append(rows, []string{"**Total**", "**" + strconv.Itoa(s.Total) + "**"})
	md.Table(markdown.TableSet{Header: []string{"Category", "Count"}, Rows: rows})
	md.PlainText("")

	md.BulletList(
		fmt.Sprintf("Session cookies: %d", s.Session),
		fmt.Sprintf("Persistent cookies: %d", s.Persistent),
		fmt.Sprintf("Average persistent lifetime: %.1f days", s.AverageLifetimeDays),
	)
	md.PlainText("")

	if s.Total > 0 {
		chart := piechart.NewPieChart(io.Discard, piechart.WithTitle("Cookies by category"), piechart.WithShowData(true))
		for _, category := range cookie.Categories() {
			if n := s.ByCategory[category]; n > 0 {
				chart.LabelAndIntValue(string(category), uint64(n))
			}
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	if n := s.ByCategory[cookie.CategoryTargeting]; n > 0 {
		md.Warningf("%d targeting cookie(s) were set.", n)
		md.PlainText("")
	}

	if len(s.ByDomain) > 0 {
		md.H2("Domains")
		md.PlainText("")
		domains := sortedDomains(s.ByDomain)
		rows := make([][]string, 0, len(domains))
		for _, d := range domains {
			rows = append(rows, []string{d, strconv.Itoa(s.ByDomain[d])})
		}
		md.Table(markdown.TableSet{Header: []string{"Domain", "Cookies"}, Rows: rows})
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeCategories(md *markdown.Markdown, res analyzer.Result) {
	now := res.FinishedAt
	for _, category := range cookie.Categories() {
		cookies := res.Classified[category]
		if len(cookies) == 0 {
			continue
		}
		md.H2(string(category))
		md.PlainText("")
		rows := make([][]string, 0, len(cookies))
		for _, c := range sortedCookies(cookies) {
			rows = append(rows, []string{
				"`" + c.Name + "`",
				c.Domain,
				dash(c.Vendor),
				string(c.Method),
				expiryText(c, now),
				truncate(dash(c.Description), 80),
			})
		}
		md.Table(markdown.TableSet{
			Header: []string{"Name", "Domain", "Vendor", "Method", "Expires", "Description"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeFingerprinting(md *markdown.Markdown, res analyzer.Result) {
	if res.Fingerprinting == nil {
		return
	}
	md.H2("Fingerprinting")
	md.PlainText("")
	found := detectedTechniques(res.Fingerprinting)
	if len(found) == 0 {
		md.Tip("No fingerprinting signals detected.")
		md.PlainText("")
		return
	}
	md.Cautionf("%d fingerprinting technique(s) detected.", len(found))
	md.PlainText("")
	md.BulletList(found...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeWarnings(md *markdown.Markdown, res analyzer.Result) {
	if len(res.Warnings) == 0 {
		return
	}
	md.H2("Warnings")
	md.PlainText("")
	md.BulletList(res.Warnings...)
	md.PlainText("")
}
