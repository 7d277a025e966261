// Command profiler runs one pipeline stage in a loop over a synthetic archive
// and records CPU, heap, wall-clock and trace profiles.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // intentional profiling endpoint
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync/atomic"
	"time"

	"github.com/felixge/fgprof"

	"github.com/meigma/bsonsplit"
	"github.com/meigma/bsonsplit/core"
	"github.com/meigma/bsonsplit/core/export"
	"github.com/meigma/bsonsplit/core/index"
	"github.com/meigma/bsonsplit/core/split"
	"github.com/meigma/bsonsplit/internal/diag"
)

const (
	sourceFile = "file"
	sourceHTTP = "http"
)

type config struct {
	mode       string
	source     string
	products   int
	maxImages  int
	imageSize  int
	categories int
	pattern    string
	workers    int
	seed       uint64
	logLevel   string

	dataURL     string
	httpLatency time.Duration
	httpBPS     int64

	duration   time.Duration
	iterations int
	pprofAddr  string
	cpuProfile string
	memProfile string
	fgProfile  string
	traceFile  string
	tempDir    string
	keepTemp   bool
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

//nolint:gocognit,gocyclo // main function complexity is acceptable for CLI tool
func main() {
	cfg := parseFlags()
	ctx := context.Background()

	if cfg.pprofAddr != "" {
		go func() {
			log.Printf("pprof listening on %s", cfg.pprofAddr)
			//nolint:gosec // intentional pprof server without timeouts for profiling
			if err := http.ListenAndServe(cfg.pprofAddr, nil); err != nil {
				log.Printf("pprof server error: %v", err)
			}
		}()
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	data, err := makeDataset(dir, cfg)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}

	logger, err := diag.NewLogger(os.Stderr, cfg.logLevel, "text")
	if err != nil {
		log.Fatal(err)
	}
	p, err := bsonsplit.New(
		bsonsplit.WithLogger(logger),
		bsonsplit.WithWorkers(cfg.workers),
		bsonsplit.WithSeed(cfg.seed),
	)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.fgProfile != "" {
		fgFile, fgErr := os.Create(cfg.fgProfile)
		if fgErr != nil {
			log.Fatal(fgErr)
		}
		stopFG := fgprof.Start(fgFile, fgprof.FormatPprof)
		defer func() {
			if err := stopFG(); err != nil {
				log.Printf("fgprof stop error: %v", err)
			}
			_ = fgFile.Close()
		}()
	}

	if cfg.cpuProfile != "" {
		cpuFile, cpuErr := os.Create(cfg.cpuProfile)
		if cpuErr != nil {
			log.Fatal(cpuErr)
		}
		if cpuErr = pprof.StartCPUProfile(cpuFile); cpuErr != nil {
			log.Fatal(cpuErr)
		}
		defer func() {
			pprof.StopCPUProfile()
			_ = cpuFile.Close()
		}()
	}

	if cfg.traceFile != "" {
		traceFile, traceErr := os.Create(cfg.traceFile)
		if traceErr != nil {
			log.Fatal(traceErr)
		}
		if traceErr = trace.Start(traceFile); traceErr != nil {
			log.Fatal(traceErr)
		}
		defer func() {
			trace.Stop()
			_ = traceFile.Close()
		}()
	}

	stats, err := runProfile(ctx, cfg, p, data)
	if err != nil {
		log.Fatal(err)
	}

	if cfg.memProfile != "" {
		runtime.GC()
		f, err := os.Create(cfg.memProfile)
		if err != nil {
			log.Fatal(err)
		}
		if err := pprof.WriteHeapProfile(f); err != nil {
			log.Fatal(err)
		}
		_ = f.Close()
	}

	fmt.Printf("mode=%s source=%s ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode,
		cfg.source,
		stats.ops,
		stats.bytes,
		stats.elapsed,
		float64(stats.bytes)/(1024*1024)/stats.elapsed.Seconds(),
	)
}

func parseFlags() config {
	var cfg config
	var httpBPS string

	flag.StringVar(&cfg.mode, "mode", "scan", "mode: scan, split, lookup, export")
	flag.StringVar(&cfg.source, "source", sourceFile, "archive source: file or http")
	flag.IntVar(&cfg.products, "products", 5000, "number of products")
	flag.IntVar(&cfg.maxImages, "max-images", 4, "maximum images per product")
	flag.IntVar(&cfg.imageSize, "image-size", 8<<10, "image size in bytes")
	flag.IntVar(&cfg.categories, "categories", 500, "number of categories")
	flag.StringVar(&cfg.pattern, "pattern", "compressible", "image pattern: compressible or random")
	flag.IntVar(&cfg.workers, "workers", 0, "workers: <0 serial, 0 auto, >0 fixed")
	flag.Uint64Var(&cfg.seed, "seed", 1, "random seed")
	flag.StringVar(&cfg.logLevel, "log-level", "warn", "log level")
	flag.StringVar(&cfg.dataURL, "data-url", "local", "archive URL for the http source (\"local\" serves the generated archive)")
	flag.DurationVar(&cfg.httpLatency, "http-latency", 0, "per-request latency for the http source")
	flag.StringVar(&httpBPS, "http-bps", "", "bytes/sec throttle for the http source (e.g. 10MBps)")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flag.StringVar(&cfg.tempDir, "temp-dir", "", "directory to use for the dataset")
	flag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.Parse()

	if httpBPS != "" {
		bps, err := parseBytesPerSecond(httpBPS)
		if err != nil {
			log.Fatal(err)
		}
		cfg.httpBPS = bps
	}
	if cfg.maxImages < 1 || cfg.categories < 1 || cfg.products < 1 {
		log.Fatal("products, max-images and categories must be positive")
	}
	return cfg
}

func setupTempDir(cfg config) (string, func(), error) {
	if cfg.tempDir != "" {
		if err := os.MkdirAll(cfg.tempDir, 0o750); err != nil {
			return "", nil, err
		}
		return cfg.tempDir, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "bsonsplit-profiler-*")
	if err != nil {
		return "", nil, err
	}
	if cfg.keepTemp {
		log.Printf("dataset kept in %s", dir)
		return dir, func() {}, nil
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}

// source opens the archive for random access and returns a streaming opener
// for scans.
type source struct {
	random index.ByteSource
	stream func(ctx context.Context) (io.ReadCloser, error)
	close  func()
}

func openSource(ctx context.Context, cfg config, data *dataset) (*source, error) {
	switch cfg.source {
	case sourceFile:
		f, err := index.OpenFileSource(data.path)
		if err != nil {
			return nil, err
		}
		return &source{
			random: f,
			stream: func(context.Context) (io.ReadCloser, error) { return os.Open(data.path) },
			close:  func() { _ = f.Close() },
		}, nil
	case sourceHTTP:
		url, stop, err := archiveURL(cfg, data.path)
		if err != nil {
			return nil, err
		}
		remote, err := newHTTPSource(ctx, cfg, url)
		if err != nil {
			stop()
			return nil, err
		}
		return &source{random: remote, stream: remote.Open, close: stop}, nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.source)
	}
}

//nolint:gocognit // complexity is inherent to multi-mode profiler dispatch
func runProfile(ctx context.Context, cfg config, p *bsonsplit.Pipeline, data *dataset) (profileStats, error) {
	src, err := openSource(ctx, cfg, data)
	if err != nil {
		return profileStats{}, err
	}
	defer src.close()

	scanOnce := func() (*index.Index, error) {
		r, err := src.stream(ctx)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		idx, _, err := p.Scan(ctx, "train", r, true)
		return idx, err
	}

	var (
		idx *index.Index
		res *split.Result
		a   *core.Archive
	)
	if cfg.mode != "scan" {
		if idx, err = scanOnce(); err != nil {
			return profileStats{}, err
		}
	}
	if cfg.mode == "lookup" || cfg.mode == "export" {
		if a, err = core.New(src.random, idx); err != nil {
			return profileStats{}, err
		}
	}
	if cfg.mode == "export" {
		if res, err = p.Split(ctx, idx, data.categories); err != nil {
			return profileStats{}, err
		}
	}

	start := time.Now()
	ops := 0
	var byteCount int64
	shouldContinue := func() bool {
		if cfg.iterations > 0 {
			return ops < cfg.iterations
		}
		return time.Since(start) < cfg.duration
	}

	rng := rand.New(rand.NewPCG(cfg.seed, 1))
	for shouldContinue() {
		switch cfg.mode {
		case "scan":
			if _, err := scanOnce(); err != nil {
				return profileStats{}, err
			}
			byteCount += data.size
		case "split":
			r, err := p.Split(ctx, idx, data.categories)
			if err != nil {
				return profileStats{}, err
			}
			byteCount += int64(len(r.Train) + len(r.Val))
		case "lookup":
			e := idx.At(rng.IntN(idx.Len()))
			img, err := a.Image(e.EntityID, rng.IntN(int(e.NumItems)))
			if err != nil {
				return profileStats{}, err
			}
			byteCount += int64(len(img))
		case "export":
			sink := &discardSink{}
			if _, err := p.Export(ctx, a, export.FromItems(res.Train), sink, "discard"); err != nil {
				return profileStats{}, err
			}
			byteCount += sink.bytes.Load()
		default:
			return profileStats{}, fmt.Errorf("unknown mode %q", cfg.mode)
		}
		ops++
	}
	if ops == 0 {
		return profileStats{}, errors.New("no iterations ran")
	}
	return profileStats{ops: ops, bytes: byteCount, elapsed: time.Since(start)}, nil
}

// discardSink counts exported bytes and keeps nothing.
type discardSink struct {
	bytes atomic.Int64
}

func (*discardSink) ShouldProcess(int, export.Row) bool { return true }

func (s *discardSink) Put(_ context.Context, sample export.Sample) error {
	s.bytes.Add(int64(len(sample.Image)))
	return nil
}
