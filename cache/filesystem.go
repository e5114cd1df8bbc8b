package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/readahead"
	"github.com/natefinch/atomic"

	"github.com/ardnew/talc/lang"
)

// keyPlaceholder is replaced by the hexadecimal key in a filename pattern.
const keyPlaceholder = "{key}"

// FileSystem is a [TemplateCache] that stores one artifact file per key
// in a directory.
type FileSystem struct {
	flight

	cfg    config
	dir    string
	loader Loader
}

// NewFileSystem returns a cache of artifacts in dir, restored by loader.
// In [GenerateAndStore] mode dir is created if it does not exist.
func NewFileSystem(dir string, loader Loader, opts ...Option) (*FileSystem, error) {
	cfg := makeConfig(opts...)

	if err := validatePattern(cfg.pattern); err != nil {
		return nil, err
	}

	if cfg.mode == GenerateAndStore {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, ErrStorage.Wrap(err).With(slog.String("dir", dir))
		}
	}

	return &FileSystem{cfg: cfg, dir: dir, loader: loader}, nil
}

func validatePattern(pattern string) error {
	switch {
	case strings.Count(pattern, keyPlaceholder) != 1:
		return ErrInvalidPattern.Wrap(
			fmt.Errorf("%q must contain %s exactly once", pattern, keyPlaceholder))
	case strings.ContainsAny(pattern, `/\`):
		return ErrInvalidPattern.Wrap(
			fmt.Errorf("%q must not contain a path separator", pattern))
	}

	return nil
}

// Dir returns the directory holding the artifacts.
func (f *FileSystem) Dir() string { return f.dir }

// Mode returns the mode of the cache.
func (f *FileSystem) Mode() Mode { return f.cfg.mode }

// ReadOnly reports whether the cache is in [LoadOnly] mode.
func (f *FileSystem) ReadOnly() bool { return f.cfg.mode == LoadOnly }

// Path returns the artifact file path of key.
func (f *FileSystem) Path(key lang.Key) string {
	return filepath.Join(f.dir,
		strings.Replace(f.cfg.pattern, keyPlaceholder, key.String(), 1))
}

// Get restores the artifact stored under key. In [LoadOnly] mode a
// missing artifact is reported as [ErrArtifactMissing].
func (f *FileSystem) Get(ctx context.Context, key lang.Key) (*lang.CompiledTemplate, bool, error) {
	path := f.Path(key)

	data, err := readFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		f.cfg.logger.TraceContext(ctx, "file cache miss",
			slog.String("key", key.String()),
			slog.String("path", path))

		if f.cfg.mode == LoadOnly {
			return nil, false, ErrArtifactMissing.With(
				slog.String("key", key.String()),
				slog.String("path", path))
		}

		return nil, false, nil
	}

	if err != nil {
		return nil, false, ErrStorage.Wrap(err).With(slog.String("path", path))
	}

	t, err := restore(ctx, f.loader, key, data)
	if err != nil {
		var ce *lang.CorruptionError
		if errors.As(err, &ce) {
			ce.Path = path
		}

		return nil, false, err
	}

	f.cfg.logger.TraceContext(ctx, "file cache hit",
		slog.String("key", key.String()),
		slog.String("path", path))

	return t, true, nil
}

// Put writes the artifact of t atomically, replacing any file stored
// under key.
func (f *FileSystem) Put(ctx context.Context, key lang.Key, t *lang.CompiledTemplate) error {
	path := f.Path(key)

	if f.cfg.mode == LoadOnly {
		return ErrReadOnly.With(slog.String("path", path))
	}

	if err := atomic.WriteFile(path, bytes.NewReader(t.Artifact())); err != nil {
		return ErrStorage.Wrap(err).With(slog.String("path", path))
	}

	f.cfg.logger.DebugContext(ctx, "file cache store",
		slog.String("key", key.String()),
		slog.String("path", path))

	return nil
}

func readFile(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	ra := readahead.NewReader(file)
	defer ra.Close()

	return io.ReadAll(ra)
}

// restore loads data and checks that it holds the template of key.
func restore(ctx context.Context, loader Loader, key lang.Key, data []byte) (*lang.CompiledTemplate, error) {
	t, err := loader.Load(ctx, data)
	if err != nil {
		return nil, err
	}

	if t.Key() != key {
		return nil, &lang.CorruptionError{Err: lang.ErrCorrupt.Wrap(
			fmt.Errorf("artifact has key %s", t.Key()))}
	}

	return t, nil
}
