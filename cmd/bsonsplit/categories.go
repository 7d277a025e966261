package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCategoriesCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Derive dense category indices from a category catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.pipeline()
			if err != nil {
				return err
			}
			cats, err := p.Categories(a.cfg.Catalog)
			if err != nil {
				return err
			}
			path := a.cfg.Path(out)
			if out == "" {
				path = a.cfg.Path(a.cfg.Output.Categories)
			}
			if err := cats.SaveFile(path); err != nil {
				return fmt.Errorf("write %s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d categories, %d level1, %d level2 -> %s\n",
				cats.Len(), cats.Level1Len(), cats.Level2Len(), path)
			return nil
		},
	}
	f := cmd.Flags()
	f.String("catalog", "category_names.csv", "category catalog")
	f.StringVar(&out, "out", "", "category index table to write (default output.categories)")
	bindFlag(f, "catalog", "catalog")
	return cmd
}
