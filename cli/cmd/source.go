package cmd

import (
	"log/slog"

	"github.com/ardnew/talc/template"
)

// stdinName is the filename reported for templates read from stdin.
const stdinName = "<stdin>"

// Source names a template file and its manifest.
type Source struct {
	Template string `arg:""  default:"-"                                     help:"Template file or '-' for stdin" type:"path"`
	Manifest string `        help:"HCL manifest declaring globals and modules" short:"m"                          type:"path"`
}

func (s Source) filename() string {
	if s.Template == stdinSource {
		return stdinName
	}

	return s.Template
}

// load reads the template body and its manifest.
func (s Source) load(env Env) (string, Manifest, error) {
	body, err := readSource(s.Template, env.Stdin)
	if err != nil {
		return "", Manifest{}, err
	}

	manifest, err := LoadManifest(manifestFor(s.Template, s.Manifest))
	if err != nil {
		return "", Manifest{}, err
	}

	env.Logger.Trace("template loaded",
		slog.String("template", s.filename()),
		slog.Int("bytes", len(body)),
		slog.String("globals", manifest.Globals.String()),
		slog.Any("modules", manifest.Modules),
	)

	return body, manifest, nil
}

// template returns the template bound to the shared cache and registry.
func (s Source) template(env Env, opts ...template.Option) (*template.Template, error) {
	body, manifest, err := s.load(env)
	if err != nil {
		return nil, err
	}

	return template.New(body, append([]template.Option{
		template.WithFilename(s.filename()),
		template.WithGlobals(manifest.Globals),
		template.WithModules(manifest.Modules...),
		template.WithRegistry(env.Registry),
		template.WithCache(env.Cache),
		template.WithLogger(env.Logger),
	}, opts...)...), nil
}
