package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meigma/bsonsplit/core/index"
	"github.com/meigma/bsonsplit/core/table"
)

func newTestsetCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "testset",
		Short: "Expand an unlabeled offset index into one row per image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			idx, err := index.LoadFile(cfg.Path(cfg.Output.TestOffsets))
			if err != nil {
				return err
			}
			rows := p.TestRows(idx)
			path := cfg.Path(cfg.Output.TestTable)
			if err := table.SaveTest(path, rows); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "test %d rows from %d products -> %s\n", len(rows), idx.Len(), path)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("offsets", "", "offset index (default output.test_offsets)")
	f.String("out", "", "test table to write (default output.test_table)")
	bindFlag(f, "offsets", "output.test_offsets")
	bindFlag(f, "out", "output.test_table")
	return cmd
}
