package profile

// Tag is the build tag enabling profiling and the name of the default
// output directory.
const Tag = "pprof"

// Config selects a profiling mode and where profiles are written.
type Config struct {
	Mode  string
	Dir   string
	Quiet bool
}

// Stopper stops a running profile and flushes it to disk.
type Stopper interface{ Stop() }

// Start starts profiling in c.Mode. Without the pprof build tag, an empty
// mode, or an unknown mode, the returned Stopper does nothing.
func (c Config) Start() Stopper {
	if c.Mode == "" {
		return ignore{}
	}

	return start(c)
}

type ignore struct{}

func (ignore) Stop() {}
