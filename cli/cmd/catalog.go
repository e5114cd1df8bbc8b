package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ardnew/talc/cache"
	"github.com/ardnew/talc/lang"
)

// ErrNoCatalog reports a cache backend that cannot enumerate its entries.
var ErrNoCatalog = lang.NewError("cache backend does not support listing (use --cache-backend=sqlite)")

// catalog is a cache that can enumerate and expire its entries.
type catalog interface {
	cache.TemplateCache
	Keys(ctx context.Context) ([]lang.Key, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

func catalogFrom(env Env) (catalog, error) {
	c, ok := env.Cache.(catalog)
	if !ok {
		return nil, ErrNoCatalog
	}

	return c, nil
}

// List prints the keys of all cached artifacts, newest first.
type List struct{}

// Run executes the ls command.
func (List) Run(ctx context.Context) error {
	env, err := envFrom(ctx)
	if err != nil {
		return err
	}

	c, err := catalogFrom(env)
	if err != nil {
		return err
	}

	keys, err := c.Keys(ctx)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if _, err := fmt.Fprintln(env.Stdout, key); err != nil {
			return ErrWriteOutput.Wrap(err)
		}
	}

	return nil
}

// Prune removes cached artifacts older than a given age.
type Prune struct {
	OlderThan time.Duration `default:"720h" help:"Remove artifacts created longer ago than this"`
}

// Run executes the prune command.
func (p *Prune) Run(ctx context.Context) error {
	env, err := envFrom(ctx)
	if err != nil {
		return err
	}

	c, err := catalogFrom(env)
	if err != nil {
		return err
	}

	n, err := c.Prune(ctx, time.Now().Add(-p.OlderThan))
	if err != nil {
		return err
	}

	env.Logger.InfoContext(ctx, "pruned cache",
		slog.Int64("removed", n),
		slog.Duration("older_than", p.OlderThan),
	)

	return nil
}
