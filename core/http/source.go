// Package http reads archives served over HTTP.
//
// A Source performs positioned reads with range requests, so an offset index
// can serve random access to a remote archive, and Open streams the whole
// archive for a sequential scan.
package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"strconv"
	"strings"
)

// ErrRangeUnsupported is returned when the server ignores range requests.
var ErrRangeUnsupported = errors.New("http: range requests not supported")

// ErrChanged is returned when the remote archive changed after the Source
// was created.
var ErrChanged = errors.New("http: remote archive changed")

// IsURL reports whether path names an HTTP or HTTPS resource.
func IsURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// Source reads a remote archive with HTTP range requests.
//
// It implements io.ReaderAt and Size, the ByteSource contract of the index
// package, and is safe for concurrent use.
type Source struct {
	ctx     context.Context
	url     string
	client  *nethttp.Client
	headers nethttp.Header
	size    int64
	etag    string
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeader sets a header on every request, e.g. Authorization.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// NewSource probes url for its size and validator.
//
// ctx bounds the probe and every later read made through ReadAt.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{ctx: ctx, url: url}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if err := s.probe(); err != nil {
		return nil, fmt.Errorf("probe %s: %w", url, err)
	}
	return s, nil
}

// Size returns the size of the remote archive.
func (s *Source) Size() int64 {
	return s.size
}

// ETag returns the entity tag the server reported, if any.
func (s *Source) ETag() string {
	return s.etag
}

// ReadAt reads len(p) bytes at off with one range request. Fewer bytes are
// returned with io.EOF when the range extends past the end of the archive.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	want := int64(len(p))
	if want > s.size-off {
		want = s.size - off
	}

	resp, err := s.get(s.ctx, fmt.Sprintf("bytes=%d-%d", off, off+want-1))
	if err != nil {
		return 0, err
	}
	defer drain(resp.Body)

	if err := rangeStatus(resp); err != nil {
		return 0, err
	}
	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil {
		return n, err
	}
	if want < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// Open streams the whole archive.
func (s *Source) Open(ctx context.Context) (io.ReadCloser, error) {
	resp, err := s.get(ctx, "")
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case nethttp.StatusOK:
		return resp.Body, nil
	case nethttp.StatusPreconditionFailed:
		drain(resp.Body)
		return nil, ErrChanged
	default:
		drain(resp.Body)
		return nil, fmt.Errorf("http: get failed: %s", resp.Status)
	}
}

// probe reads the first byte to learn the size and check range support.
func (s *Source) probe() error {
	resp, err := s.get(s.ctx, "bytes=0-0")
	if err != nil {
		return err
	}
	defer drain(resp.Body)

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusRequestedRangeNotSatisfiable:
		// Empty archives cannot satisfy any range.
		s.etag = resp.Header.Get("ETag")
		return nil
	case nethttp.StatusOK:
		return ErrRangeUnsupported
	default:
		return fmt.Errorf("http: range probe failed: %s", resp.Status)
	}
	size, err := parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return err
	}
	s.size = size
	s.etag = resp.Header.Get("ETag")
	return nil
}

// get issues a GET, adding the range and the entity tag validator.
func (s *Source) get(ctx context.Context, byteRange string) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodGet, s.url, nethttp.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	req.Header.Set("Accept-Encoding", "identity")
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}
	if s.etag != "" {
		req.Header.Set("If-Match", s.etag)
	}
	return s.client.Do(req)
}

func rangeStatus(resp *nethttp.Response) error {
	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
		return nil
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return io.EOF
	case nethttp.StatusPreconditionFailed:
		return ErrChanged
	case nethttp.StatusOK:
		return ErrRangeUnsupported
	default:
		return fmt.Errorf("http: range request failed: %s", resp.Status)
	}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body) //nolint:errcheck // best-effort drain for connection reuse
	_ = body.Close()                 //nolint:errcheck // best-effort cleanup
}

// parseContentRange returns the total size from "bytes start-end/size".
func parseContentRange(value string) (int64, error) {
	value = strings.TrimSpace(value)
	rest, ok := strings.CutPrefix(value, "bytes ")
	if !ok {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	return size, nil
}
