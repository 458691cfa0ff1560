package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/cookie-crawler/internal/hash/sha256"
	"github.com/JakeFAU/cookie-crawler/internal/reference"
)

// newUpdateDBCmd creates the 'update-db' subcommand.
func newUpdateDBCmd() *cobra.Command {
	var (
		source string
		dest   string
	)
	cmd := &cobra.Command{
		Use:   "update-db",
		Short: "Download the latest Open Cookie Database",
		Long: `Downloads the Open Cookie Database CSV, checks that it parses, and
replaces the local copy. The existing file is left alone if anything fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if source == "" {
				source = rt.cfg.Reference.UpdateURL
			}
			if dest == "" {
				dest = rt.cfg.Reference.Path
			}
			if dest == "" {
				return fmt.Errorf("no destination: set --dest or reference.path")
			}
			updater := reference.NewUpdater(&http.Client{Timeout: 2 * time.Minute}, sha256.New(), rt.logger)
			res, err := updater.Update(cmd.Context(), source, dest)
			if err != nil {
				return fmt.Errorf("update reference database: %w", err)
			}
			verb := "Updated"
			if res.Unchanged {
				verb = "Already current"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d rows, %d bytes, sha256 %s\n",
				verb, res.Path, res.Rows, res.Bytes, res.Checksum)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "url", "", "download URL (default from reference.update_url)")
	cmd.Flags().StringVar(&dest, "dest", "", "destination file (default from reference.path)")
	return cmd
}
