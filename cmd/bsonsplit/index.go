package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCommand(a *app) *cobra.Command {
	var (
		archive string
		out     string
		binary  string
		labeled bool
	)
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Scan an archive and write its offset index",
		Long: `Scan an archive once and write a table mapping every product id to the
offset, length, image count and category of its record.

With --labels every record must carry a category_id.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			idx, stats, err := p.ScanFile(cmd.Context(), archive, labeled)
			if err != nil {
				return err
			}
			for _, path := range []string{out, binary} {
				if path == "" {
					continue
				}
				path = a.cfg.Path(path)
				if err := idx.SaveFile(path); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				a.logger.Info("offset index written", "path", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d products, %d images, %d bytes (%s)\n",
				idx.Len(), idx.TotalItems(), stats.Bytes, stats.Digest)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&archive, "archive", "", "archive to scan (path or http(s) URL)")
	f.StringVar(&out, "out", "", "offset index table to write (.csv or .csv.zst)")
	f.StringVar(&binary, "fb", "", "also write a binary offset index (.fb)")
	f.BoolVar(&labeled, "labels", false, "require a category on every record")
	f.Uint32("max-record-size", 64<<20, "reject records longer than this many bytes")
	bindFlag(f, "max-record-size", "archive.max_record_size")
	_ = cmd.MarkFlagRequired("archive") //nolint:errcheck // flag is defined above
	_ = cmd.MarkFlagRequired("out")     //nolint:errcheck // flag is defined above
	return cmd
}
