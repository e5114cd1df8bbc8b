// Package profile starts optional runtime profiling with
// [github.com/pkg/profile].
//
// Profiling is compiled in only with the "pprof" build tag:
//
//	go build -tags pprof .
//	talc --pprof-mode cpu render page.html
//	go tool pprof talc $XDG_CACHE_HOME/talc/pprof/cpu.pprof
//
// Without the tag, [Modes] is empty and [Config.Start] does nothing.
package profile
