package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
	"github.com/JakeFAU/cookie-crawler/internal/jobs"
	"github.com/JakeFAU/cookie-crawler/internal/storage/sqlite"
)

// newHistoryCmd creates the 'history' subcommand.
func newHistoryCmd() *cobra.Command {
	var (
		seed   string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous analyses from the local run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			path := rt.cfg.History.Path
			if path == "" {
				path = sqlite.DefaultPath()
			}
			h, err := sqlite.Open(cmd.Context(), path)
			if err != nil {
				return err
			}
			defer func() { _ = h.Close() }()

			records, err := h.List(cmd.Context(), seed, limit)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(records); err != nil {
					return fmt.Errorf("encode history: %w", err)
				}
				return nil
			}
			writeHistoryTable(cmd.OutOrStdout(), records)
			return nil
		},
	}
	cmd.Flags().StringVar(&seed, "seed", "", "only show runs for this seed URL")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum runs to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func writeHistoryTable(out io.Writer, records []jobs.ReportRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No analyses recorded yet.")
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("Analysis History")
	t.AppendHeader(table.Row{"Finished", "Seed", "Pages", "Cookies", "Categories", "Fingerprinting", "Report"})
	for _, rec := range records {
		t.AppendRow(table.Row{
			rec.FinishedAt.Local().Format("2006-01-02 15:04"),
			rec.SeedURL,
			rec.Pages,
			rec.Cookies,
			categoryCounts(rec.ByCategory),
			dashIfEmpty(strings.Join(rec.Fingerprinting, ", ")),
			dashIfEmpty(rec.ReportURI),
		})
	}
	t.AppendFooter(table.Row{"", "Runs", len(records)})
	t.Render()
}

func categoryCounts(byCategory map[string]int) string {
	order := make([]string, 0, len(byCategory))
	for _, c := range cookie.Categories() {
		if byCategory[string(c)] > 0 {
			order = append(order, string(c))
		}
	}
	extra := make([]string, 0)
	for name, n := range byCategory {
		if n > 0 && !cookie.Category(name).Valid() {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)
	parts := make([]string, 0, len(order))
	for _, name := range order {
		parts = append(parts, fmt.Sprintf("%s: %d", name, byCategory[name]))
	}
	return dashIfEmpty(strings.Join(parts, ", "))
}

func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
