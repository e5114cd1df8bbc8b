package template

import (
	"maps"
	"slices"

	"github.com/ardnew/talc/cache"
	"github.com/ardnew/talc/lang"
	"github.com/ardnew/talc/log"
)

type config struct {
	filename    string
	globals     lang.GlobalsTypes
	modules     []string
	registry    *lang.Registry
	cache       cache.TemplateCache
	logger      log.Logger
	maxDepth    int
	allowAbsent bool
}

// Option configures a [Template].
type Option func(*config)

// WithFilename sets the name reported in diagnostics.
func WithFilename(name string) Option {
	return func(c *config) { c.filename = name }
}

// WithGlobals declares the names and types of the globals.
func WithGlobals(globals lang.GlobalsTypes) Option {
	return func(c *config) { c.globals = maps.Clone(globals) }
}

// WithModules sets the modules expressions may call.
func WithModules(ids ...string) Option {
	return func(c *config) { c.modules = slices.Clone(ids) }
}

// WithRegistry sets the registry resolving module identifiers.
func WithRegistry(r *lang.Registry) Option {
	return func(c *config) { c.registry = r }
}

// WithCache sets the cache of compiled templates. By default each
// Template has its own [cache.Memory].
func WithCache(c cache.TemplateCache) Option {
	return func(cfg *config) { cfg.cache = c }
}

// WithLogger sets the logger.
func WithLogger(logger log.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMaxDepth limits the nesting of macro uses at render time.
func WithMaxDepth(depth int) Option {
	return func(c *config) { c.maxDepth = depth }
}

// AllowAbsentGlobals renders globals missing from Render's values as the
// zero value of their declared type instead of failing.
func AllowAbsentGlobals() Option {
	return func(c *config) { c.allowAbsent = true }
}

func (c *config) langOptions() []lang.Option {
	opts := []lang.Option{
		lang.WithFilename(c.filename),
		lang.WithLogger(c.logger),
		lang.WithMaxDepth(c.maxDepth),
	}

	if c.registry != nil {
		opts = append(opts, lang.WithRegistry(c.registry))
	}

	return opts
}
