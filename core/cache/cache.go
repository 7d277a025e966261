// Package cache keeps byte ranges of remote archives on local disk.
//
// Export reads each record with exactly one positioned read, so a cached
// range is a whole record. Repeated exports of the same table over a slow
// source hit the disk instead of the network. Entries are keyed by the
// archive identity and the range, never by content.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
	filePerm              = 0o600
)

// ByteSource is a sized random-access source.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// Disk is a size-bounded directory of cached ranges. It is safe for
// concurrent use.
type Disk struct {
	dir            string
	shardPrefixLen int
	maxBytes       int64
	bytes          atomic.Int64
	hits           atomic.Int64
	misses         atomic.Int64
	group          singleflight.Group
	pruneMu        sync.Mutex
}

// Option configures a Disk.
type Option func(*Disk)

// WithMaxBytes bounds the cache size. Values <= 0 disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Disk) {
		c.maxBytes = n
	}
}

// WithShardPrefixLen sets how many hex characters of a key name its
// subdirectory. 0 stores every entry in dir. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Disk) {
		c.shardPrefixLen = n
	}
}

// New opens or creates a cache rooted at dir.
func New(dir string, opts ...Option) (*Disk, error) {
	if dir == "" {
		return nil, errors.New("cache: dir is empty")
	}
	c := &Disk{dir: dir, shardPrefixLen: defaultShardPrefixLen}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 || c.shardPrefixLen > sha256.Size*2 {
		return nil, fmt.Errorf("cache: shard prefix length %d out of range", c.shardPrefixLen)
	}
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return nil, err
	}
	files, err := c.files()
	if err != nil {
		return nil, err
	}
	var size int64
	for _, f := range files {
		size += f.size
	}
	c.bytes.Store(size)
	return c, nil
}

// Wrap returns a ByteSource that serves reads of src from the cache.
//
// id must identify the content of src, e.g. an entity tag or digest;
// sources with equal ids share entries.
func (c *Disk) Wrap(src ByteSource, id string) (ByteSource, error) {
	if src == nil {
		return nil, errors.New("cache: source is nil")
	}
	if id == "" {
		return nil, errors.New("cache: source id is empty")
	}
	return &cachedSource{src: src, cache: c, id: id}, nil
}

// SizeBytes returns the current cache size.
func (c *Disk) SizeBytes() int64 {
	return c.bytes.Load()
}

// Hits returns the number of reads served from disk.
func (c *Disk) Hits() int64 {
	return c.hits.Load()
}

// Misses returns the number of reads forwarded to the source.
func (c *Disk) Misses() int64 {
	return c.misses.Load()
}

// Prune removes the least recently written entries until the cache holds at
// most target bytes, and returns the bytes freed.
func (c *Disk) Prune(target int64) (int64, error) {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	files, err := c.files()
	if err != nil {
		return 0, err
	}
	slices.SortFunc(files, func(a, b entry) int {
		return a.modTime.Compare(b.modTime)
	})
	var total int64
	for _, f := range files {
		total += f.size
	}
	var freed int64
	for _, f := range files {
		if total <= max(target, 0) {
			break
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return freed, err
		}
		total -= f.size
		freed += f.size
	}
	c.bytes.Store(total)
	return freed, nil
}

type cachedSource struct {
	src   ByteSource
	cache *Disk
	id    string
}

func (s *cachedSource) Size() int64 {
	return s.src.Size()
}

// ReadAt serves full reads from the cache. Reads that run past the end of
// the source bypass it.
func (s *cachedSource) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off+int64(len(p)) > s.src.Size() {
		return s.src.ReadAt(p, off)
	}
	data, err := s.cache.get(s.key(off, len(p)), len(p), func() ([]byte, error) {
		buf := make([]byte, len(p))
		n, err := s.src.ReadAt(buf, off)
		if n == len(buf) {
			return buf, nil
		}
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	})
	if err != nil {
		return 0, err
	}
	return copy(p, data), nil
}

func (s *cachedSource) key(off int64, n int) string {
	h := sha256.New()
	_, _ = h.Write([]byte(s.id)) //nolint:errcheck // hash writes never fail
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(off)) //nolint:gosec // off validated >= 0
	binary.BigEndian.PutUint64(buf[8:], uint64(n))   //nolint:gosec // n > 0
	_, _ = h.Write(buf[:])                           //nolint:errcheck // hash writes never fail
	return hex.EncodeToString(h.Sum(nil))
}

func (c *Disk) get(key string, n int, fetch func() ([]byte, error)) ([]byte, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		path := c.path(key)
		data, err := os.ReadFile(path) //nolint:gosec // path is derived from a hash
		switch {
		case err == nil && len(data) == n:
			c.hits.Add(1)
			return data, nil
		case err == nil:
			c.bytes.Add(-int64(len(data)))
			_ = os.Remove(path) //nolint:errcheck // replaced below
		case !errors.Is(err, fs.ErrNotExist):
			return nil, err
		}

		c.misses.Add(1)
		data, err = fetch()
		if err != nil {
			return nil, err
		}
		// A failed write leaves the entry uncached; the read still succeeds.
		_ = c.write(path, data) //nolint:errcheck // cache writes are best-effort
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil //nolint:errcheck,forcetypeassert // always []byte when err is nil
}

func (c *Disk) write(path string, data []byte) error {
	need := int64(len(data))
	if c.maxBytes > 0 {
		if need > c.maxBytes {
			return nil
		}
		if c.SizeBytes()+need > c.maxBytes {
			if _, err := c.Prune(c.maxBytes - need); err != nil {
				return err
			}
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, defaultDirPerm); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".range-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()        //nolint:errcheck // best-effort cleanup
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()        //nolint:errcheck // best-effort cleanup
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return err
	}
	c.bytes.Add(need)
	return nil
}

func (c *Disk) path(key string) string {
	if c.shardPrefixLen == 0 {
		return filepath.Join(c.dir, key)
	}
	return filepath.Join(c.dir, key[:c.shardPrefixLen], key)
}

type entry struct {
	path    string
	size    int64
	modTime time.Time
}

// files lists the committed entries under the cache directory.
func (c *Disk) files() ([]entry, error) {
	var out []entry
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Base(path)[0] == '.' {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		out = append(out, entry{path: path, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	return out, err
}
