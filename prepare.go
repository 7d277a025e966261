package bsonsplit

import (
	"context"
	"fmt"

	"github.com/meigma/bsonsplit/core/category"
	"github.com/meigma/bsonsplit/core/index"
	"github.com/meigma/bsonsplit/core/scan"
	"github.com/meigma/bsonsplit/core/split"
	"github.com/meigma/bsonsplit/core/table"
)

// PrepareConfig names the inputs and outputs of Prepare.
//
// Empty output paths are not written. The test archive is optional.
type PrepareConfig struct {
	TrainArchive string
	TestArchive  string
	Catalog      string

	TrainOffsets string
	TestOffsets  string
	Categories   string
	TrainTable   string
	ValTable     string
	TestTable    string
}

// PrepareResult holds everything Prepare computed.
type PrepareResult struct {
	TrainIndex *index.Index
	TrainScan  scan.Stats
	Categories *category.Index
	Split      *split.Result

	// Test fields are set only when a test archive was given.
	TestIndex *index.Index
	TestScan  scan.Stats
	TestRows  []table.TestRow
}

// Prepare indexes the training archive, loads the catalog, splits the
// training products and, if configured, indexes the test archive and
// expands it into test rows. Each table is written as soon as it is ready.
func (p *Pipeline) Prepare(ctx context.Context, cfg PrepareConfig) (*PrepareResult, error) {
	if cfg.TrainArchive == "" || cfg.Catalog == "" {
		return nil, fmt.Errorf("bsonsplit: prepare needs a training archive and a catalog")
	}
	res := &PrepareResult{}

	cats, err := p.Categories(cfg.Catalog)
	if err != nil {
		return nil, err
	}
	res.Categories = cats
	if err := save(cfg.Categories, cats.SaveFile); err != nil {
		return nil, err
	}

	res.TrainIndex, res.TrainScan, err = p.ScanFile(ctx, cfg.TrainArchive, true)
	if err != nil {
		return nil, err
	}
	if err := save(cfg.TrainOffsets, res.TrainIndex.SaveFile); err != nil {
		return nil, err
	}

	res.Split, err = p.Split(ctx, res.TrainIndex, cats)
	if err != nil {
		return nil, err
	}
	if err := save(cfg.TrainTable, func(path string) error { return table.SaveItems(path, res.Split.Train) }); err != nil {
		return nil, err
	}
	if err := save(cfg.ValTable, func(path string) error { return table.SaveItems(path, res.Split.Val) }); err != nil {
		return nil, err
	}
	p.log().Info("split written",
		"train_rows", len(res.Split.Train),
		"val_rows", len(res.Split.Val),
		"seed", res.Split.Seed)

	if cfg.TestArchive == "" {
		return res, nil
	}
	res.TestIndex, res.TestScan, err = p.ScanFile(ctx, cfg.TestArchive, false)
	if err != nil {
		return nil, err
	}
	if err := save(cfg.TestOffsets, res.TestIndex.SaveFile); err != nil {
		return nil, err
	}
	res.TestRows = p.TestRows(res.TestIndex)
	if err := save(cfg.TestTable, func(path string) error { return table.SaveTest(path, res.TestRows) }); err != nil {
		return nil, err
	}
	return res, nil
}

// save writes to path unless it is empty.
func save(path string, write func(string) error) error {
	if path == "" {
		return nil
	}
	if err := write(path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
