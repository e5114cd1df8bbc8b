package template

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/ardnew/talc/cache"
	"github.com/ardnew/talc/lang"
)

// State is the compilation state of a [Template].
type State int

const (
	Uncompiled State = iota
	Compiled
)

func (s State) String() string {
	if s == Compiled {
		return "compiled"
	}

	return "uncompiled"
}

// Template is a template body with its declared globals and modules.
// It is safe for concurrent use.
type Template struct {
	mu       sync.Mutex
	cfg      config
	body     string
	compiled *lang.CompiledTemplate
}

// New returns an uncompiled Template of body.
func New(body string, opts ...Option) *Template {
	var cfg config

	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.cache == nil {
		cfg.cache = cache.NewMemory(cache.WithLogger(cfg.logger))
	}

	return &Template{cfg: cfg, body: body}
}

// Body returns the template body.
func (t *Template) Body() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.body
}

// SetBody replaces the body.
func (t *Template) SetBody(body string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.body = body
	t.compiled = nil
}

// SetGlobals replaces the declared globals.
func (t *Template) SetGlobals(globals lang.GlobalsTypes) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cfg.globals = maps.Clone(globals)
	t.compiled = nil
}

// SetModules replaces the modules.
func (t *Template) SetModules(ids ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cfg.modules = slices.Clone(ids)
	t.compiled = nil
}

// SetCache replaces the cache.
func (t *Template) SetCache(c cache.TemplateCache) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cfg.cache = c
	t.compiled = nil
}

// State returns the compilation state.
func (t *Template) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.compiled == nil {
		return Uncompiled
	}

	return Compiled
}

// Key returns the key of the current body, globals and modules.
func (t *Template) Key() lang.Key {
	t.mu.Lock()
	defer t.mu.Unlock()

	return lang.ComputeKey(t.body, t.cfg.globals, t.cfg.modules)
}

// Compile makes the template [Compiled], restoring it from the cache or
// generating and storing it.
func (t *Template) Compile(ctx context.Context) error {
	_, err := t.Compiled(ctx)

	return err
}

// Compiled returns the compiled template, compiling it first if needed.
func (t *Template) Compiled(ctx context.Context) (*lang.CompiledTemplate, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.compiled != nil {
		return t.compiled, nil
	}

	key := lang.ComputeKey(t.body, t.cfg.globals, t.cfg.modules)
	build := func() (*lang.CompiledTemplate, error) { return t.build(ctx, key) }

	var (
		ct  *lang.CompiledTemplate
		err error
	)

	if s, ok := t.cfg.cache.(cache.Shared); ok {
		ct, err = s.Do(key, build)
	} else {
		ct, err = build()
	}

	if err != nil {
		return nil, err
	}

	t.compiled = ct

	return ct, nil
}

// build returns the template stored under key, or generates, compiles and
// stores it. A corrupt artifact is replaced unless the cache is read-only.
func (t *Template) build(ctx context.Context, key lang.Key) (*lang.CompiledTemplate, error) {
	c, logger := t.cfg.cache, t.cfg.logger

	ct, ok, err := c.Get(ctx, key)
	if err != nil {
		var ce *lang.CorruptionError
		if !errors.As(err, &ce) || cache.IsReadOnly(c) {
			return nil, err
		}

		logger.WarnContext(ctx, "regenerating corrupt artifact",
			slog.String("key", key.String()),
			slog.Any("error", ce))
	} else if ok {
		logger.DebugContext(ctx, "template cache hit",
			slog.String("key", key.String()))

		return ct, nil
	}

	opts := t.cfg.langOptions()

	info, err := lang.NewGenerator(opts...).Generate(ctx,
		t.body, t.cfg.globals, t.cfg.modules)
	if err != nil {
		return nil, err
	}

	if ct, err = lang.NewCompiler(opts...).Compile(ctx, info); err != nil {
		return nil, err
	}

	if err := c.Put(ctx, key, ct); err != nil {
		return nil, err
	}

	return ct, nil
}

// Render compiles the template if needed and renders it with globals.
func (t *Template) Render(ctx context.Context, globals map[string]any) (string, error) {
	ct, err := t.Compiled(ctx)
	if err != nil {
		return "", err
	}

	return ct.Execute(ctx, globals, t.renderOptions()...)
}

// renderOptions returns this template's render settings. The compiled
// template may come from a cache shared with other templates, so they are
// passed on every execution.
func (t *Template) renderOptions() []lang.RenderOption {
	t.mu.Lock()
	defer t.mu.Unlock()

	opts := []lang.RenderOption{
		lang.RenderFilename(t.cfg.filename),
		lang.RenderMaxDepth(t.cfg.maxDepth),
	}

	if t.cfg.allowAbsent {
		opts = append(opts, lang.AllowAbsent())
	}

	return opts
}
