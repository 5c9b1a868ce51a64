package spool

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func TestDetectCodec(t *testing.T) {
	cases := []struct {
		path  string
		codec Codec
		ok    bool
	}{
		{"data.parquet.gz", CodecGzip, true},
		{"data.parquet.bz2", CodecBzip2, true},
		{"data.parquet.xz", CodecXZ, true},
		{"data.parquet.zst", CodecZstd, true},
		{"data.parquet", "", false},
		{"archive.GZ", CodecGzip, true},
	}
	for _, tc := range cases {
		codec, ok := DetectCodec(tc.path)
		if ok != tc.ok || codec != tc.codec {
			t.Fatalf("DetectCodec(%q) = %q, %v", tc.path, codec, ok)
		}
	}
}

func TestStageReaderWritesUniqueFiles(t *testing.T) {
	s := newSpool(t)

	first, n, err := s.StageReader("file.parquet", strings.NewReader("aaa"))
	if err != nil {
		t.Fatalf("StageReader() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("written = %d, want 3", n)
	}
	second, _, err := s.StageReader("file.parquet", strings.NewReader("bbb"))
	if err != nil {
		t.Fatalf("StageReader() error = %v", err)
	}
	if first == second {
		t.Fatalf("staged paths collide: %q", first)
	}
	body, err := os.ReadFile(second)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(body) != "bbb" {
		t.Fatalf("body = %q", body)
	}
}

func TestStageDecompressedGzip(t *testing.T) {
	s := newSpool(t)

	src := filepath.Join(t.TempDir(), "rows.parquet.gz")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte("parquet bytes")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := os.WriteFile(src, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	staged, n, err := s.StageDecompressed(src, CodecGzip)
	if err != nil {
		t.Fatalf("StageDecompressed() error = %v", err)
	}
	if n != int64(len("parquet bytes")) {
		t.Fatalf("decompressed size = %d", n)
	}
	body, err := os.ReadFile(staged)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(body) != "parquet bytes" {
		t.Fatalf("body = %q", body)
	}
	if !strings.HasSuffix(staged, "rows.parquet") {
		t.Fatalf("staged name = %q, want compression extension stripped", staged)
	}
}

func TestStageDecompressedZstd(t *testing.T) {
	s := newSpool(t)

	src := filepath.Join(t.TempDir(), "rows.parquet.zst")
	var buf bytes.Buffer
	encoder, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("NewWriter() error = %v", err)
	}
	if _, err := encoder.Write([]byte("zstd body")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := encoder.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := os.WriteFile(src, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	staged, _, err := s.StageDecompressed(src, CodecZstd)
	if err != nil {
		t.Fatalf("StageDecompressed() error = %v", err)
	}
	body, err := os.ReadFile(staged)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(body) != "zstd body" {
		t.Fatalf("body = %q", body)
	}
}

func TestCloseRemovesSpoolDir(t *testing.T) {
	s, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, _, err := s.StageReader("f.parquet", strings.NewReader("x")); err != nil {
		t.Fatalf("StageReader() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := os.Stat(s.Dir()); !os.IsNotExist(err) {
		t.Fatalf("spool dir still present after Close: %v", err)
	}
}

func newSpool(t *testing.T) *Spool {
	t.Helper()
	s, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
