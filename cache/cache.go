package cache

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/ardnew/talc/lang"
	"github.com/ardnew/talc/log"
)

// Predefined errors (sentinel values).
var (
	ErrArtifactMissing = lang.NewError("artifact missing from load-only cache")
	ErrReadOnly        = lang.NewError("cache is load-only")
	ErrInvalidPattern  = lang.NewError("invalid filename pattern")
	ErrStorage         = lang.NewError("cache storage failed")
)

// TemplateCache stores compiled templates by key.
//
// Get reports a miss with a nil error. A stored artifact that cannot be
// restored is returned as [*lang.CorruptionError].
type TemplateCache interface {
	Get(ctx context.Context, key lang.Key) (*lang.CompiledTemplate, bool, error)
	Put(ctx context.Context, key lang.Key, t *lang.CompiledTemplate) error
}

// Shared is implemented by caches that collapse concurrent work on the
// same key.
type Shared interface {
	Do(key lang.Key, fn func() (*lang.CompiledTemplate, error)) (*lang.CompiledTemplate, error)
}

// Loader restores a compiled template from its artifact.
type Loader interface {
	Load(ctx context.Context, data []byte) (*lang.CompiledTemplate, error)
}

// IsReadOnly reports whether c rejects Put.
func IsReadOnly(c TemplateCache) bool {
	ro, ok := c.(interface{ ReadOnly() bool })

	return ok && ro.ReadOnly()
}

// Mode selects how a persistent cache treats misses.
type Mode int

const (
	// GenerateAndStore reports misses so callers can compile and Put.
	GenerateAndStore Mode = iota
	// LoadOnly treats a miss as an error and rejects Put.
	LoadOnly
)

func (m Mode) String() string {
	switch m {
	case GenerateAndStore:
		return "generate-and-store"
	case LoadOnly:
		return "load-only"
	}

	return "unknown"
}

// DefaultPattern names artifact files of a [FileSystem] cache.
const DefaultPattern = "{key}.talc"

type config struct {
	logger  log.Logger
	mode    Mode
	pattern string
}

// Option configures a cache.
type Option func(*config)

func makeConfig(opts ...Option) config {
	cfg := config{pattern: DefaultPattern}

	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg
}

// WithLogger sets the logger for cache events.
func WithLogger(logger log.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// WithMode sets the mode of a persistent cache.
func WithMode(mode Mode) Option {
	return func(c *config) { c.mode = mode }
}

// WithPattern sets the artifact filename pattern of a [FileSystem] cache.
// The pattern must contain "{key}".
func WithPattern(pattern string) Option {
	return func(c *config) { c.pattern = pattern }
}

// flight implements [Shared].
type flight struct {
	group singleflight.Group
}

// Do calls fn and returns its result. Concurrent calls with the same key
// wait for the first and share its result.
func (f *flight) Do(
	key lang.Key,
	fn func() (*lang.CompiledTemplate, error),
) (*lang.CompiledTemplate, error) {
	v, err, _ := f.group.Do(key.String(), func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}

	return v.(*lang.CompiledTemplate), nil
}
