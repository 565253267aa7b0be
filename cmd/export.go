package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newExportCmd creates the 'export' subcommand, which renders the latest
// star counts as a CSV report.
func newExportCmd() *cobra.Command {
	var (
		out    string
		toBlob bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Render the latest star counts as CSV",
		Long: `Writes the most recent star count per repository, most starred
first, either to a local file or to the configured blob store.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, out, toBlob, limit)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "output path (defaults to export.path from config)")
	cmd.Flags().BoolVar(&toBlob, "blob", false, "upload to the configured blob store instead of writing a file")
	cmd.Flags().IntVar(&limit, "limit", -1, "maximum rows to export; 0 exports everything (defaults to export.limit)")
	return cmd
}

func runExport(cmd *cobra.Command, out string, toBlob bool, limit int) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := appInstance.GetConfig()
	logger := appInstance.GetLogger()
	if limit < 0 {
		limit = cfg.Export.Limit
	}
	path := out
	if path == "" {
		path = cfg.Export.Path
	}

	if toBlob {
		uri, rows, err := appInstance.GetExporter().ExportToBlob(cmd.Context(), appInstance.GetBlobs(), path, limit)
		if err != nil {
			return fmt.Errorf("export to blob: %w", err)
		}
		logger.Info("export uploaded", zap.String("uri", uri), zap.Int("rows", rows))
		return nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create export directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	rows, err := appInstance.GetExporter().WriteCSV(cmd.Context(), f, limit)
	if err != nil {
		f.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close export file: %w", err)
	}
	logger.Info("export written", zap.String("path", path), zap.Int("rows", rows))
	return nil
}
