// Package compression provides the codecs used for outbound payloads and
// compressed inbound request bodies.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Type represents a compression algorithm.
type Type string

const (
	// TypeNone means no compression.
	TypeNone Type = "none"
	// TypeGzip uses gzip compression. Collector payloads are always gzip.
	TypeGzip Type = "gzip"
	// TypeZstd uses zstd compression.
	TypeZstd Type = "zstd"
	// TypeZlib uses zlib compression.
	TypeZlib Type = "zlib"
	// TypeDeflate uses raw deflate compression.
	TypeDeflate Type = "deflate"
)

// Level is an algorithm-specific compression level. Zero selects the default.
type Level int

const (
	LevelDefault Level = 0
	LevelFastest Level = 1
	LevelBest    Level = 9
)

// Config holds compression configuration.
type Config struct {
	Type  Type
	Level Level
}

// ParseType parses a compression type string.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "identity":
		return TypeNone, nil
	case "gzip", "x-gzip":
		return TypeGzip, nil
	case "zstd":
		return TypeZstd, nil
	case "zlib":
		return TypeZlib, nil
	case "deflate":
		return TypeDeflate, nil
	default:
		return TypeNone, fmt.Errorf("unsupported compression type: %s", s)
	}
}

// gzip writers are comparatively expensive to allocate and every flush
// creates one, so they are pooled per level.
var (
	gzipPoolsMu sync.Mutex
	gzipPools   = map[int]*sync.Pool{}
)

func gzipPool(level int) *sync.Pool {
	gzipPoolsMu.Lock()
	defer gzipPoolsMu.Unlock()
	p, ok := gzipPools[level]
	if !ok {
		p = &sync.Pool{}
		gzipPools[level] = p
	}
	return p
}

func gzipLevel(level Level) int {
	if level == LevelDefault {
		return gzip.DefaultCompression
	}
	return int(level)
}

// Compress compresses data with cfg. Only TypeNone and TypeGzip are
// supported for encoding.
func Compress(data []byte, cfg Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data) / 2)
	if err := compressTo(&buf, data, cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func compressTo(w io.Writer, data []byte, cfg Config) error {
	switch cfg.Type {
	case TypeNone, "":
		_, err := w.Write(data)
		return err
	case TypeGzip:
		return compressGzip(w, data, cfg.Level)
	default:
		return fmt.Errorf("unsupported compression type: %s", cfg.Type)
	}
}

// Decompress decompresses data of the given type.
func Decompress(data []byte, t Type) ([]byte, error) {
	if t == TypeNone || t == "" {
		return data, nil
	}
	r, err := NewReader(bytes.NewReader(data), t)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress %s data: %w", t, err)
	}
	return out, nil
}

// NewReader wraps r with a decompressing reader for t.
func NewReader(r io.Reader, t Type) (io.ReadCloser, error) {
	switch t {
	case TypeNone, "":
		return io.NopCloser(r), nil
	case TypeGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gr, nil
	case TypeZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return zr.IOReadCloser(), nil
	case TypeZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zlib reader: %w", err)
		}
		return zr, nil
	case TypeDeflate:
		return flate.NewReader(r), nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}

func compressGzip(w io.Writer, data []byte, level Level) error {
	lvl := gzipLevel(level)
	pool := gzipPool(lvl)

	poolGets.Inc()
	var gw *gzip.Writer
	if v := pool.Get(); v != nil {
		gw = v.(*gzip.Writer)
		gw.Reset(w)
	} else {
		poolNews.Inc()
		var err error
		gw, err = gzip.NewWriterLevel(w, lvl)
		if err != nil {
			return fmt.Errorf("failed to create gzip writer: %w", err)
		}
	}

	if _, err := gw.Write(data); err != nil {
		poolDiscards.Inc()
		return fmt.Errorf("failed to write gzip data: %w", err)
	}
	if err := gw.Close(); err != nil {
		poolDiscards.Inc()
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	pool.Put(gw)
	poolPuts.Inc()
	return nil
}
