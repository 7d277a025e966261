package main

import (
	"bufio"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/meigma/bsonsplit/core/category"
)

// dataset is a synthetic labeled archive written to disk.
type dataset struct {
	path       string
	size       int64
	categories *category.Index
}

// makeDataset writes cfg.products random products spread over
// cfg.categories categories.
func makeDataset(dir string, cfg config) (*dataset, error) {
	rng := rand.New(rand.NewPCG(cfg.seed, 0))

	rows := make([]category.Row, cfg.categories)
	for i := range rows {
		rows[i] = category.Row{
			CategoryID: uint64(1_000_000_000 + i),
			Level1:     fmt.Sprintf("L1-%02d", i%7),
			Level2:     fmt.Sprintf("L2-%03d", i%31),
		}
	}
	cats, err := category.New(rows)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, "train.bson")
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1<<20)

	picture := make([]byte, cfg.imageSize)
	var size int64
	for id := range cfg.products {
		n := 1 + rng.IntN(cfg.maxImages)
		imgs := make(bson.A, n)
		for i := range imgs {
			fill(rng, picture, cfg.pattern)
			imgs[i] = bson.D{{Key: "picture", Value: picture}}
		}
		doc := bson.D{
			{Key: "_id", Value: int64(id)},
			{Key: "category_id", Value: int64(rows[rng.IntN(len(rows))].CategoryID)},
			{Key: "imgs", Value: imgs},
		}
		data, err := bson.Marshal(doc)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("marshal product %d: %w", id, err)
		}
		if _, err := w.Write(data); err != nil {
			_ = f.Close()
			return nil, err
		}
		size += int64(len(data))
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &dataset{path: path, size: size, categories: cats}, nil
}

func fill(rng *rand.Rand, p []byte, pattern string) {
	if pattern == "random" {
		for i := range p {
			p[i] = byte(rng.Uint32())
		}
		return
	}
	// JPEG-like header followed by a repeating body.
	copy(p, []byte{0xff, 0xd8, 0xff, 0xe0})
	for i := 4; i < len(p); i++ {
		p[i] = byte(i % 251)
	}
}
