// Package cli contains the command line interface for talc.
//
// # Usage
//
//	talc [flags] <command>
//
//	talc page.html -V values.yaml          # render (the default command)
//	talc compile templates/*.html          # populate the cache
//	talc key page.html -m page.hcl         # print the cache key
//	talc code page.html                    # print the generated code
//
// # Configuration
//
// Flag defaults are read from config.hcl and config.json in the user
// configuration directory. The HCL file holds one attribute per flag, with
// hyphens written as underscores:
//
//	log_level     = "debug"
//	cache_backend = "sqlite"
//
// The init command writes the current flag values to config.hcl.
// Command-line flags override config file values.
//
// # Logging Options
//
//   - --log-level: Set minimum log level (trace, debug, info, warn, error)
//   - --log-format: Set log output format (text, json)
//   - --log-time-layout: Set timestamp format (RFC3339, Kitchen, none, etc.)
//   - --log-caller: Include caller information in log output
//   - --log-pretty: Colorize text output on terminals
//
// # Cache Options
//
//   - --cache-backend: memory, fs (one file per artifact) or sqlite
//   - --cache-dir: Directory of the fs and sqlite stores
//   - --cache-mode: generate compiles and stores misses, load only loads
//   - --cache-pattern: Artifact file name pattern, containing "{key}"
//
// # Profiling Options
//
// Profiling is only available when built with the pprof build tag:
//
//	go build -tags pprof
//
//   - --pprof-mode: Enable profiling (allocs, block, clock, cpu, goroutine,
//     heap, mem, mutex, thread, trace)
//   - --pprof-dir: Set profile output directory (default: ~/.cache/talc/pprof).
//     Each command profiles into its own subdirectory, e.g. pprof/render.
package cli
