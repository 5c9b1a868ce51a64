// Package spool stages query inputs into a per-request temp directory.
// Remote objects are downloaded and compressed files are decompressed
// here so the rest of the pipeline only ever sees plain local files.
package spool

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Codec identifies a supported compression wrapper around a columnar
// file, detected by extension the way the file was selected.
type Codec string

const (
	CodecGzip  Codec = "gzip"
	CodecBzip2 Codec = "bzip2"
	CodecXZ    Codec = "xz"
	CodecZstd  Codec = "zstd"
)

// DetectCodec reports the compression codec implied by the path's final
// extension, if any.
func DetectCodec(path string) (Codec, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		return CodecGzip, true
	case ".bz2":
		return CodecBzip2, true
	case ".xz":
		return CodecXZ, true
	case ".zst":
		return CodecZstd, true
	default:
		return "", false
	}
}

// Spool is one request's staging directory. It is removed as a whole
// when the request ends.
type Spool struct {
	dir  string
	next atomic.Int64
}

func New() (*Spool, error) {
	dir, err := os.MkdirTemp("", "flockql-query-")
	if err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{dir: dir}, nil
}

func (s *Spool) Dir() string {
	return s.dir
}

func (s *Spool) Close() error {
	return os.RemoveAll(s.dir)
}

// StageReader copies reader into the spool under a unique name derived
// from base and returns the staged path and byte count.
func (s *Spool) StageReader(base string, reader io.Reader) (string, int64, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("%04d_%s", s.next.Add(1), sanitizeBase(base)))
	file, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create staged file %q: %w", path, err)
	}
	written, err := io.Copy(file, reader)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("stage %q: %w", base, err)
	}
	return path, written, nil
}

// StageDecompressed decompresses src into the spool according to its
// extension and returns the staged path and decompressed size.
func (s *Spool) StageDecompressed(src string, codec Codec) (string, int64, error) {
	file, err := os.Open(src)
	if err != nil {
		return "", 0, fmt.Errorf("open %q: %w", src, err)
	}
	defer func() { _ = file.Close() }()

	var reader io.Reader
	switch codec {
	case CodecGzip:
		gz, err := gzip.NewReader(file)
		if err != nil {
			return "", 0, fmt.Errorf("gzip reader for %q: %w", src, err)
		}
		defer func() { _ = gz.Close() }()
		reader = gz
	case CodecBzip2:
		reader = bzip2.NewReader(file)
	case CodecXZ:
		xzReader, err := xz.NewReader(file)
		if err != nil {
			return "", 0, fmt.Errorf("xz reader for %q: %w", src, err)
		}
		reader = xzReader
	case CodecZstd:
		zstdReader, err := zstd.NewReader(file)
		if err != nil {
			return "", 0, fmt.Errorf("zstd reader for %q: %w", src, err)
		}
		defer zstdReader.Close()
		reader = zstdReader
	default:
		return "", 0, fmt.Errorf("unsupported compression codec %q", codec)
	}

	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return s.StageReader(base, reader)
}

func sanitizeBase(base string) string {
	base = filepath.Base(base)
	base = strings.ReplaceAll(base, "..", "_")
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "file.parquet"
	}
	return base
}
