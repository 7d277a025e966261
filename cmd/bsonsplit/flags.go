package main

import "github.com/spf13/pflag"

// addSplitFlags defines the split tuning flags shared by split and prepare.
func addSplitFlags(f *pflag.FlagSet) {
	f.Float64("split-ratio", 0.2, "fraction of each category's kept products used for validation")
	f.Float64("drop-ratio", 0, "fraction of each category's products discarded before splitting")
	f.Uint64("seed", 0, "random seed; a random seed is drawn when unset")
	bindFlag(f, "split-ratio", "split.ratio")
	bindFlag(f, "drop-ratio", "split.drop_ratio")
	bindFlag(f, "seed", "split.seed")
}
