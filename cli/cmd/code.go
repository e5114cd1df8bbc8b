package cmd

import (
	"context"

	"github.com/ardnew/talc/lang"
)

// Code prints the code generated for a template without compiling it.
type Code struct {
	Source `embed:""`
}

// Run executes the code command.
func (c *Code) Run(ctx context.Context) error {
	env, err := envFrom(ctx)
	if err != nil {
		return err
	}

	body, manifest, err := c.load(env)
	if err != nil {
		return err
	}

	gen := lang.NewGenerator(
		lang.WithFilename(c.filename()),
		lang.WithRegistry(env.Registry),
		lang.WithLogger(env.Logger),
	)

	info, err := gen.Generate(ctx, body, manifest.Globals, manifest.Modules)
	if err != nil {
		return err
	}

	if _, err := env.Stdout.Write(info.Generated); err != nil {
		return ErrWriteOutput.Wrap(err)
	}

	return nil
}
