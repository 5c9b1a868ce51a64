// Package resolve expands path patterns into the concrete, ordered,
// deduplicated set of files one query runs over.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flockql/flockql/internal/fault"
	"github.com/flockql/flockql/internal/spool"
	"github.com/flockql/flockql/internal/storage"
)

const s3Scheme = "s3://"

// File is one resolved input. Path is the file's stable identity (the
// canonical local path or the s3 URL); LocalPath is where the engine
// reads it, which differs from Path when the file was staged into the
// spool (downloaded or decompressed). SizeBytes is the readable size
// after staging.
type File struct {
	Path      string
	LocalPath string
	SizeBytes int64
}

// FileSet is the ordered result of pattern resolution. It is non-empty
// by construction: empty resolution fails, it never yields an empty set.
type FileSet struct {
	Files []File
}

func (fs FileSet) TotalBytes() int64 {
	var total int64
	for _, file := range fs.Files {
		total += file.SizeBytes
	}
	return total
}

// Resolver expands patterns. Store and Bucket are only consulted for
// s3:// patterns and may be left zero for purely local use.
type Resolver struct {
	Spool  *spool.Spool
	Store  storage.ObjectStore
	Bucket string
}

// Resolve expands each pattern independently, merges the expansions in
// pattern order (lexicographic within one pattern), and deduplicates by
// canonical identity. A literal path that does not exist or cannot be
// opened fails immediately; a merged result with no files fails with
// the not-found kind rather than producing an empty set.
func (r *Resolver) Resolve(ctx context.Context, patterns []string) (FileSet, error) {
	if len(patterns) == 0 {
		return FileSet{}, fault.New(fault.KindNotFound, "at least one path pattern is required")
	}

	var fileSet FileSet
	seen := map[string]bool{}
	add := func(file File) {
		if seen[file.Path] {
			return
		}
		seen[file.Path] = true
		fileSet.Files = append(fileSet.Files, file)
	}

	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			return FileSet{}, fault.New(fault.KindNotFound, "empty path pattern")
		}

		if strings.HasPrefix(pattern, s3Scheme) {
			files, err := r.resolveRemote(ctx, pattern)
			if err != nil {
				return FileSet{}, err
			}
			for _, file := range files {
				add(file)
			}
			continue
		}

		files, err := r.resolveLocal(pattern)
		if err != nil {
			return FileSet{}, err
		}
		for _, file := range files {
			add(file)
		}
	}

	if len(fileSet.Files) == 0 {
		return FileSet{}, fault.New(fault.KindNotFound, "no files matched patterns %q", patterns)
	}
	return fileSet, nil
}

func (r *Resolver) resolveLocal(pattern string) ([]File, error) {
	var matches []string
	if hasMeta(pattern) {
		expanded, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fault.Wrap(fault.KindNotFound, err, "invalid pattern %q", pattern)
		}
		sort.Strings(expanded)
		matches = expanded
	} else {
		// A literal path must exist and be readable; a wildcard that
		// matches nothing is only fatal once all patterns are merged.
		if err := checkReadable(pattern); err != nil {
			return nil, err
		}
		matches = []string{pattern}
	}

	files := make([]File, 0, len(matches))
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			return nil, fault.Wrap(fault.KindNotFound, err, "stat %q", match)
		}
		if info.IsDir() {
			continue
		}
		file, err := r.stageLocal(match, info.Size())
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func (r *Resolver) stageLocal(match string, size int64) (File, error) {
	canonical := canonicalPath(match)
	codec, compressed := spool.DetectCodec(match)
	if !compressed {
		return File{Path: canonical, LocalPath: match, SizeBytes: size}, nil
	}
	if r.Spool == nil {
		return File{}, fmt.Errorf("compressed input %q requires a spool", match)
	}
	staged, stagedSize, err := r.Spool.StageDecompressed(match, codec)
	if err != nil {
		return File{}, fmt.Errorf("decompress %q: %w", match, err)
	}
	return File{Path: canonical, LocalPath: staged, SizeBytes: stagedSize}, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, pattern string) ([]File, error) {
	if r.Store == nil {
		return nil, fault.New(fault.KindNotFound, "pattern %q requires a configured object store", pattern)
	}
	bucket, key, err := splitS3Pattern(pattern)
	if err != nil {
		return nil, fault.Wrap(fault.KindNotFound, err, "invalid pattern %q", pattern)
	}
	if r.Bucket != "" && bucket != r.Bucket {
		return nil, fault.New(fault.KindNotFound, "pattern %q targets bucket %q, configured bucket is %q", pattern, bucket, r.Bucket)
	}

	var keys []storage.ObjectInfo
	if hasMeta(key) {
		prefix := key[:strings.IndexAny(key, "*?[")]
		objects, err := r.Store.List(ctx, prefix)
		if err != nil {
			return nil, fault.Wrap(fault.KindNotFound, err, "list %q", pattern)
		}
		for _, object := range objects {
			ok, err := path.Match(key, object.Key)
			if err != nil {
				return nil, fault.Wrap(fault.KindNotFound, err, "invalid pattern %q", pattern)
			}
			if ok {
				keys = append(keys, object)
			}
		}
	} else {
		info, err := r.Store.Stat(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return nil, fault.New(fault.KindNotFound, "object %q does not exist", pattern)
			}
			return nil, fault.Wrap(fault.KindNotFound, err, "stat %q", pattern)
		}
		keys = []storage.ObjectInfo{info}
	}

	files := make([]File, 0, len(keys))
	for _, object := range keys {
		file, err := r.stageRemote(ctx, bucket, object)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func (r *Resolver) stageRemote(ctx context.Context, bucket string, object storage.ObjectInfo) (File, error) {
	if r.Spool == nil {
		return File{}, fmt.Errorf("remote input %q requires a spool", object.Key)
	}
	reader, err := r.Store.Get(ctx, object.Key)
	if err != nil {
		return File{}, fault.Wrap(fault.KindNotFound, err, "download %q", object.Key)
	}
	staged, size, err := r.Spool.StageReader(path.Base(object.Key), reader)
	closeErr := reader.Close()
	if err != nil {
		return File{}, fmt.Errorf("stage %q: %w", object.Key, err)
	}
	if closeErr != nil {
		return File{}, fmt.Errorf("close %q: %w", object.Key, closeErr)
	}

	identity := s3Scheme + bucket + "/" + object.Key
	if codec, compressed := spool.DetectCodec(object.Key); compressed {
		decompressed, decompressedSize, err := r.Spool.StageDecompressed(staged, codec)
		if err != nil {
			return File{}, fmt.Errorf("decompress %q: %w", object.Key, err)
		}
		return File{Path: identity, LocalPath: decompressed, SizeBytes: decompressedSize}, nil
	}
	return File{Path: identity, LocalPath: staged, SizeBytes: size}, nil
}

func checkReadable(pathname string) error {
	info, err := os.Stat(pathname)
	if err != nil {
		return fault.Wrap(fault.KindNotFound, err, "path %q", pathname)
	}
	if info.IsDir() {
		return fault.New(fault.KindNotFound, "path %q is a directory, not a file", pathname)
	}
	file, err := os.Open(pathname)
	if err != nil {
		return fault.Wrap(fault.KindNotFound, err, "path %q is not readable", pathname)
	}
	return file.Close()
}

func canonicalPath(pathname string) string {
	absolute, err := filepath.Abs(pathname)
	if err != nil {
		return filepath.Clean(pathname)
	}
	if resolved, err := filepath.EvalSymlinks(absolute); err == nil {
		return resolved
	}
	return absolute
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[")
}

func splitS3Pattern(pattern string) (bucket, key string, err error) {
	rest := strings.TrimPrefix(pattern, s3Scheme)
	bucket, key, found := strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", fmt.Errorf("expected s3://bucket/key")
	}
	return bucket, key, nil
}
