package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/meigma/bsonsplit/core/category"
	"github.com/meigma/bsonsplit/core/index"
	"github.com/meigma/bsonsplit/core/table"
)

func newSplitCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split",
		Short: "Split a labeled offset index into training and validation tables",
		Long: `Partition the products of a labeled offset index by category into
training and validation sets and write one row per image.

Within each category, --drop-ratio of the products are discarded first and
--split-ratio of the remainder go to validation, rounding down. Pass --seed to
make the split reproducible; otherwise the seed used is logged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			idx, err := index.LoadFile(cfg.Path(cfg.Output.TrainOffsets))
			if err != nil {
				return err
			}
			cats, err := category.LoadFile(cfg.Path(cfg.Output.Categories))
			if err != nil {
				return err
			}
			res, err := p.Split(cmd.Context(), idx, cats)
			if err != nil {
				return err
			}
			trainPath, valPath := cfg.Path(cfg.Output.TrainTable), cfg.Path(cfg.Output.ValTable)
			if err := table.SaveItems(trainPath, res.Train); err != nil {
				return fmt.Errorf("write %s: %w", trainPath, err)
			}
			if err := table.SaveItems(valPath, res.Val); err != nil {
				return fmt.Errorf("write %s: %w", valPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "train %d rows, val %d rows, %d categories, seed %d\n",
				len(res.Train), len(res.Val), len(res.Categories), res.Seed)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("offsets", "", "labeled offset index (default output.train_offsets)")
	f.String("categories", "", "category index or catalog (default output.categories)")
	f.String("train", "", "training table to write (default output.train_table)")
	f.String("val", "", "validation table to write (default output.val_table)")
	bindFlag(f, "offsets", "output.train_offsets")
	bindFlag(f, "categories", "output.categories")
	bindFlag(f, "train", "output.train_table")
	bindFlag(f, "val", "output.val_table")
	addSplitFlags(f)
	return cmd
}
