//go:build pprof

package cli

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/ardnew/talc/log"
	"github.com/ardnew/talc/pkg"
	"github.com/ardnew/talc/profile"
)

type pprofConfig struct {
	Mode string `default:""            enum:",${pprofModeEnum}" help:"Enable profiling"         placeholder:"${enum}" short:"p"`
	Dir  string `default:"${pprofDir}"                          help:"Profile output directory"                                 type:"path"`
}

func (pprofConfig) vars() kong.Vars {
	return kong.Vars{
		"pprofModeEnum": strings.Join(profile.Modes(), ","),
		"pprofDir":      filepath.Join(pkg.CacheDir(), profile.Tag),
	}
}

func (pprofConfig) group() kong.Group {
	var group kong.Group

	group.Key = "pprof"
	group.Title = "Profiling (pprof)"

	return group
}

// start profiles the selected command into its own subdirectory of Dir, so
// that profiles of render and compile runs do not overwrite each other.
func (f pprofConfig) start(ctx context.Context, command string) (stop func()) {
	if f.Mode == "" {
		return func() {}
	}

	dir := f.Dir
	if name, _, _ := strings.Cut(command, " "); name != "" {
		dir = filepath.Join(dir, name)
	}

	attrs := []slog.Attr{
		slog.String("mode", f.Mode),
		slog.String("dir", dir),
		slog.String("command", command),
	}

	log.DebugContext(ctx, "pprof start", attrs...)

	profiler := profile.Config{Mode: f.Mode, Dir: dir, Quiet: true}.Start()

	return func() {
		profiler.Stop()
		log.DebugContext(ctx, "pprof stop", attrs...)
	}
}
