package cmd

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/ardnew/talc/template"
)

// Render renders a template with global values.
type Render struct {
	Source `embed:""`

	Values      string            `help:"YAML or JSON file of global values, or '-' for stdin" short:"V" type:"path"`
	Set         map[string]string `help:"Set a global value"                                 short:"D" placeholder:"NAME=VALUE"`
	Output      string            `help:"Write output to file instead of stdout"              short:"o" type:"path"`
	AllowAbsent bool              `help:"Bind the zero value of globals missing from values"`
	MaxDepth    int               `help:"Maximum nested macro expansion" default:"${maxDepth}"`
}

// Run executes the render command.
func (r *Render) Run(ctx context.Context) error {
	env, err := envFrom(ctx)
	if err != nil {
		return err
	}

	if r.Template == stdinSource && r.Values == stdinSource {
		return ErrValues.With(slog.String("reason", "template and values both read from stdin"))
	}

	opts := []template.Option{template.WithMaxDepth(r.MaxDepth)}
	if r.AllowAbsent {
		opts = append(opts, template.AllowAbsentGlobals())
	}

	tmpl, err := r.template(env, opts...)
	if err != nil {
		return err
	}

	values, err := LoadValues(r.Values, env.Stdin)
	if err != nil {
		return err
	}

	if err := applySets(values, r.Set); err != nil {
		return err
	}

	out, err := tmpl.Render(ctx, values)
	if err != nil {
		return err
	}

	if r.Output == "" {
		_, err = io.WriteString(env.Stdout, out)
	} else {
		err = atomic.WriteFile(r.Output, strings.NewReader(out))
	}

	if err != nil {
		return ErrWriteOutput.With(slog.String("file", r.Output)).Wrap(err)
	}

	env.Logger.DebugContext(ctx, "rendered",
		slog.String("template", r.filename()),
		slog.Int("bytes", len(out)),
	)

	return nil
}
