package lang

import "github.com/ardnew/talc/log"

// DefaultMaxDepth is the default limit on nested macro expansion.
const DefaultMaxDepth = 100

type config struct {
	logger   log.Logger
	registry *Registry
	filename string
	maxDepth int
}

// Option configures the parser, generator, and compiler.
type Option func(*config)

func makeConfig(opts ...Option) config {
	cfg := config{maxDepth: DefaultMaxDepth}

	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	if cfg.registry == nil {
		cfg.registry = NewRegistry()
	}

	return cfg
}

// WithLogger sets the logger used for trace and debug output.
// The zero [log.Logger] discards everything.
func WithLogger(logger log.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithFilename names the template source in locations and diagnostics.
func WithFilename(name string) Option {
	return func(c *config) { c.filename = name }
}

// WithRegistry sets the registry used to resolve module identifiers.
// By default a fresh registry holding the builtin modules is used.
func WithRegistry(r *Registry) Option {
	return func(c *config) { c.registry = r }
}

// WithMaxDepth limits nested macro expansion during rendering.
// Non-positive values restore [DefaultMaxDepth].
func WithMaxDepth(depth int) Option {
	return func(c *config) {
		if depth <= 0 {
			depth = DefaultMaxDepth
		}

		c.maxDepth = depth
	}
}
