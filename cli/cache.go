package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/alecthomas/kong"

	"github.com/ardnew/talc/cache"
	"github.com/ardnew/talc/cli/cmd"
	"github.com/ardnew/talc/lang"
	"github.com/ardnew/talc/log"
	"github.com/ardnew/talc/pkg"
)

// Cache backends selectable with --cache-backend.
const (
	backendMemory = "memory"
	backendFS     = "fs"
	backendSQLite = "sqlite"
)

// Cache modes selectable with --cache-mode.
const (
	modeGenerate = "generate"
	modeLoad     = "load"
)

type cacheConfig struct {
	Backend string `default:"fs"              enum:"memory,fs,sqlite" help:"Compiled template store."                              placeholder:"${enum}"`
	Dir     string `default:"${cacheDir}"                             help:"Directory of the fs and sqlite stores."                                      type:"path"`
	Mode    string `default:"generate"        enum:"generate,load"    help:"Compile missing artifacts, or only load stored ones." placeholder:"${enum}"`
	Pattern string `default:"${cachePattern}"                         help:"Artifact file name pattern of the fs store."`
}

func (*cacheConfig) vars() kong.Vars {
	return kong.Vars{
		cmd.CacheIdentifier: pkg.CacheDir(),
		"cachePattern":      cache.DefaultPattern,
	}
}

func (*cacheConfig) group() kong.Group {
	var group kong.Group

	group.Key = "cache"
	group.Title = "Template cache options"

	return group
}

func (f *cacheConfig) mode() cache.Mode {
	if f.Mode == modeLoad {
		return cache.LoadOnly
	}

	return cache.GenerateAndStore
}

// open constructs the configured cache. Artifacts are loaded with modules
// from registry. The returned close function releases the backend.
func (f *cacheConfig) open(
	ctx context.Context,
	registry *lang.Registry,
	logger log.Logger,
) (cache.TemplateCache, func(), error) {
	opts := []cache.Option{
		cache.WithLogger(logger),
		cache.WithMode(f.mode()),
	}

	loader := lang.NewCompiler(
		lang.WithRegistry(registry),
		lang.WithLogger(logger),
	)

	logger.DebugContext(ctx, "cache open",
		slog.String("backend", f.Backend),
		slog.String("dir", f.Dir),
		slog.String("mode", f.mode().String()),
	)

	switch f.Backend {
	case backendMemory:
		return cache.NewMemory(opts...), func() {}, nil

	case backendSQLite:
		if f.mode() == cache.GenerateAndStore {
			if err := os.MkdirAll(f.Dir, defaultDirMode); err != nil {
				return nil, nil, cache.ErrStorage.Wrap(err)
			}
		}

		db, err := cache.NewSQLite(ctx,
			filepath.Join(f.Dir, pkg.Name+".db"), loader, opts...)
		if err != nil {
			return nil, nil, err
		}

		return db, func() {
			if err := db.Close(); err != nil {
				logger.WarnContext(ctx, "cache close", slog.Any("error", err))
			}
		}, nil
	}

	fs, err := cache.NewFileSystem(f.Dir, loader,
		append(opts, cache.WithPattern(f.Pattern))...)
	if err != nil {
		return nil, nil, err
	}

	return fs, func() {}, nil
}
