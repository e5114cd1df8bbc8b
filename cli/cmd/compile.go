package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ardnew/talc/cache"
)

// Compile compiles templates into the cache.
type Compile struct {
	Templates []string `arg:"" help:"Template files or '-' for stdin"          type:"path"`
	Manifest  string   `       help:"HCL manifest shared by all templates" short:"m" type:"path"`
}

// Run executes the compile command. For each template it prints the key,
// the template name, and the artifact path when the cache is a directory.
func (c *Compile) Run(ctx context.Context) error {
	env, err := envFrom(ctx)
	if err != nil {
		return err
	}

	paths, err := uniquePaths(c.Templates)
	if err != nil {
		return err
	}

	for _, path := range paths {
		src := Source{Template: path, Manifest: c.Manifest}

		tmpl, err := src.template(env)
		if err != nil {
			return err
		}

		ct, err := tmpl.Compiled(ctx)
		if err != nil {
			return err
		}

		line := ct.Key().String() + "\t" + src.filename()
		if fs, ok := env.Cache.(*cache.FileSystem); ok {
			line += "\t" + fs.Path(ct.Key())
		}

		if _, err := fmt.Fprintln(env.Stdout, line); err != nil {
			return ErrWriteOutput.Wrap(err)
		}

		env.Logger.DebugContext(ctx, "compiled",
			slog.String("template", src.filename()),
			slog.String("key", ct.Key().String()),
		)
	}

	return nil
}

// Key prints the cache key of a template.
type Key struct {
	Source `embed:""`
}

// Run executes the key command.
func (k *Key) Run(ctx context.Context) error {
	env, err := envFrom(ctx)
	if err != nil {
		return err
	}

	tmpl, err := k.template(env)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintln(env.Stdout, tmpl.Key()); err != nil {
		return ErrWriteOutput.Wrap(err)
	}

	return nil
}
