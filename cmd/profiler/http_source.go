package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	corehttp "github.com/meigma/bsonsplit/core/http"
)

// archiveURL returns the URL to read the archive from. "local" serves the
// generated archive from an in-process server.
func archiveURL(cfg config, path string) (string, func(), error) {
	if cfg.dataURL == "" {
		return "", nil, errors.New("data-url is required for HTTP sources")
	}
	if cfg.dataURL != "local" {
		return cfg.dataURL, func() {}, nil
	}
	server := httptest.NewServer(nethttp.FileServer(nethttp.Dir(filepath.Dir(path))))
	return server.URL + "/" + filepath.Base(path), server.Close, nil
}

func newHTTPSource(ctx context.Context, cfg config, url string) (*corehttp.Source, error) {
	return corehttp.NewSource(ctx, url, corehttp.WithClient(newHTTPClient(cfg)))
}

func newHTTPClient(cfg config) *nethttp.Client {
	transport := nethttp.DefaultTransport
	if base, ok := transport.(*nethttp.Transport); ok {
		transport = base.Clone()
	}
	if cfg.httpLatency > 0 || cfg.httpBPS > 0 {
		transport = &throttle{
			base:           transport,
			latency:        cfg.httpLatency,
			bytesPerSecond: cfg.httpBPS,
		}
	}
	return &nethttp.Client{Transport: transport}
}

// throttle delays each request and paces response bodies.
type throttle struct {
	base           nethttp.RoundTripper
	latency        time.Duration
	bytesPerSecond int64
}

func (t *throttle) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if t.latency > 0 {
		time.Sleep(t.latency)
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if t.bytesPerSecond > 0 && resp.Body != nil {
		resp.Body = &pacedBody{rc: resp.Body, bytesPerSecond: t.bytesPerSecond, start: time.Now()}
	}
	return resp, nil
}

type pacedBody struct {
	rc             io.ReadCloser
	bytesPerSecond int64
	start          time.Time
	read           int64
}

func (b *pacedBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	if n > 0 {
		b.read += int64(n)
		due := time.Duration(float64(b.read) / float64(b.bytesPerSecond) * float64(time.Second))
		if wait := due - time.Since(b.start); wait > 0 {
			time.Sleep(wait)
		}
	}
	return n, err
}

func (b *pacedBody) Close() error {
	return b.rc.Close()
}

// parseBytesPerSecond parses rates such as "512k", "10MBps" or "1g/s".
func parseBytesPerSecond(value string) (int64, error) {
	text := strings.TrimSpace(value)
	for _, suffix := range []string{"Bps", "bps", "/s"} {
		text = strings.TrimSuffix(text, suffix)
	}
	lower := strings.ToLower(strings.TrimSpace(text))

	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		scale  int64
	}{
		{"kb", 1 << 10}, {"k", 1 << 10},
		{"mb", 1 << 20}, {"m", 1 << 20},
		{"gb", 1 << 30}, {"g", 1 << 30},
	} {
		if strings.HasSuffix(lower, unit.suffix) {
			multiplier = unit.scale
			lower = strings.TrimSuffix(lower, unit.suffix)
			break
		}
	}

	raw, err := strconv.ParseInt(strings.TrimSpace(lower), 10, 64)
	if err != nil || raw <= 0 {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}
	return raw * multiplier, nil
}
