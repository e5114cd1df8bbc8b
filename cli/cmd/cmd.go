package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/klauspost/readahead"

	"github.com/ardnew/talc/cache"
	"github.com/ardnew/talc/lang"
	"github.com/ardnew/talc/log"
)

// ContextKey is used to store a [kong.Context] value in [context.Context].
type contextKey struct{}

// WithContext returns a new context.Context containing the given kong.Context.
func WithContext(ctx context.Context, ktx *kong.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, ktx)
}

func kongContextFrom(ctx context.Context) *kong.Context {
	ktx, ok := ctx.Value(contextKey{}).(*kong.Context)
	if !ok || ktx == nil {
		return nil
	}

	return ktx
}

// Env is the state shared by all commands.
type Env struct {
	Cache    cache.TemplateCache
	Registry *lang.Registry
	Logger   log.Logger
	Stdin    io.Reader
	Stdout   io.Writer
}

type envKey struct{}

// WithEnv returns a new context.Context containing env.
func WithEnv(ctx context.Context, env Env) context.Context {
	return context.WithValue(ctx, envKey{}, env)
}

func envFrom(ctx context.Context) (Env, error) {
	env, ok := ctx.Value(envKey{}).(Env)
	if !ok || env.Cache == nil {
		return Env{}, ErrNoEnv
	}

	if env.Registry == nil {
		env.Registry = lang.NewRegistry()
	}

	if env.Stdin == nil {
		env.Stdin = os.Stdin
	}

	if env.Stdout == nil {
		env.Stdout = os.Stdout
	}

	return env, nil
}

// stdinSource is the special source indicator for reading from stdin.
const stdinSource = "-"

// readSource reads the file at path, or stdin when path is "-".
func readSource(path string, stdin io.Reader) (string, error) {
	r := stdin

	if path != stdinSource {
		file, err := os.Open(path)
		if err != nil {
			return "", ErrReadTemplate.With(slog.String("file", path)).Wrap(err)
		}
		defer file.Close()

		r = file
	}

	ra := readahead.NewReader(r)
	defer ra.Close()

	data, err := io.ReadAll(ra)
	if err != nil {
		return "", ErrReadTemplate.With(slog.String("file", path)).Wrap(err)
	}

	return string(data), nil
}

// fileKey uniquely identifies a file by its device and inode numbers.
// This handles deduplication across symlinks, absolute/relative paths, and
// special device files.
// Files on systems without inode numbers are keyed by resolved path.
type fileKey struct {
	dev  uint64
	ino  uint64
	path string
}

// uniquePaths removes paths that name the same file as an earlier path.
// Symlinks are resolved and files are compared by device and inode. All
// occurrences of "-" collapse to a single stdin entry placed last.
func uniquePaths(paths []string) ([]string, error) {
	var (
		unique   = make([]string, 0, len(paths))
		seen     = make(map[fileKey]struct{})
		hasStdin bool
	)

	for _, path := range paths {
		if path == stdinSource {
			hasStdin = true

			continue
		}

		key, err := statFile(path)
		if err != nil {
			return nil, ErrReadTemplate.With(slog.String("file", path)).Wrap(err)
		}

		if _, exists := seen[key]; exists {
			continue
		}

		seen[key] = struct{}{}
		unique = append(unique, path)
	}

	if hasStdin {
		unique = append(unique, stdinSource)
	}

	return unique, nil
}

func statFile(path string) (fileKey, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fileKey{}, err
	}

	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return fileKey{}, err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return fileKey{}, err
	}

	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		return fileKey{dev: uint64(stat.Dev), ino: stat.Ino}, nil //nolint:unconvert
	}

	return fileKey{path: resolved}, nil
}
