// Package bsonsplit prepares product image archives for training.
//
// It turns an archive of length-prefixed BSON product records into an
// offset index, a category index derived from a category catalog, and
// category-stratified training and validation item tables with one row per
// image. Products are never split across tables.
//
// # Quick Start
//
// Run every preparation stage and write the tables:
//
//	p, err := bsonsplit.New(
//	    bsonsplit.WithSplitRatio(0.1),
//	    bsonsplit.WithSeed(42),
//	)
//	if err != nil {
//	    return err
//	}
//	res, err := p.Prepare(ctx, bsonsplit.PrepareConfig{
//	    TrainArchive: "train.bson",
//	    Catalog:      "category_names.csv",
//	    TrainOffsets: "utils/train_offsets.csv",
//	    Categories:   "utils/categories.csv",
//	    TrainTable:   "utils/train_images.csv",
//	    ValTable:     "utils/val_images.csv",
//	})
//
// # Export
//
// Item tables name images by product and image index. Open the archive with
// its offset index and export the images to files or a key/value store:
//
//	a, err := core.Open(ctx, "train.bson", "utils/train_offsets.csv")
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//	sink, err := export.OpenKVSink("train.db")
//	if err != nil {
//	    return err
//	}
//	stats, err := p.Export(ctx, a, export.FromItems(res.Split.Train), sink, "kv")
//
// Archives may also be named by an http or https URL. They are then scanned
// with a streaming GET and read with range requests; core.WithCache keeps
// the records already fetched on local disk.
//
// Tables and offset indices whose names end in .zst are zstd-compressed.
// Offset indices whose names end in .fb use a FlatBuffers encoding that is
// searched in place.
package bsonsplit
