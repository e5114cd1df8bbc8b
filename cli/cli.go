package cli

import (
	"context"
	"io"
	"os"
	"strconv"

	"github.com/alecthomas/kong"

	"github.com/ardnew/talc/cli/cmd"
	"github.com/ardnew/talc/lang"
	"github.com/ardnew/talc/log"
	"github.com/ardnew/talc/pkg"
)

// CLI is the top-level command-line interface for talc.
type CLI struct {
	Log   logConfig   `embed:"" group:"log"   prefix:"log-"`
	Pprof pprofConfig `embed:"" group:"pprof" prefix:"pprof-"`
	Cache cacheConfig `embed:"" group:"cache" prefix:"cache-"`

	Version kong.VersionFlag `help:"Print version and exit"`

	Init    cmd.Init    `cmd:"" help:"Initialize configuration file"`
	Compile cmd.Compile `cmd:"" help:"Compile templates into the cache"`
	Key     cmd.Key     `cmd:"" help:"Print the cache key of a template"`
	Code    cmd.Code    `cmd:"" help:"Print the code generated for a template"`
	List    cmd.List    `cmd:"" help:"List cached artifacts (sqlite backend)"       name:"ls"`
	Prune   cmd.Prune   `cmd:"" help:"Remove old cached artifacts (sqlite backend)"`

	Render cmd.Render `cmd:"" default:"withargs" help:"Render a template"`
}

// Run executes the talc CLI with the given context and arguments.
// The exit function is called with the appropriate exit code upon completion.
func Run(
	ctx context.Context,
	exit func(code int),
	args ...string,
) error {
	return run(ctx, exit, os.Stdin, os.Stdout, args...)
}

func run(
	ctx context.Context,
	exit func(code int),
	stdin io.Reader,
	stdout io.Writer,
	args ...string,
) error {
	var cli CLI

	err := mkdirAllRequired()
	if err != nil {
		return err
	}

	configFilePath := configPath(baseConfig)

	vars := kong.Vars{
		"version":              pkg.Version,
		cmd.ConfigIdentifier:   configFilePath + ".hcl",
		cmd.MaxDepthIdentifier: strconv.Itoa(lang.DefaultMaxDepth),
	}.
		CloneWith(cli.Log.vars()).
		CloneWith(cli.Pprof.vars()).
		CloneWith(cli.Cache.vars())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Pre-scan for logger flags to ensure early configuration regardless of
	// flag position. TextUnmarshaler on logFormat/logLevel handles those flags
	// during normal parsing, but this early scan also catches boolean flags
	// like --log-pretty.
	cli.Log.scan(args)

	// Parse command line
	parser, err := kong.New(&cli,
		kong.Name(pkg.Name),
		kong.Description(pkg.Description),
		kong.UsageOnError(),
		kong.Exit(exit),
		kong.Writers(stdout, os.Stderr),
		kong.ExplicitGroups(
			[]kong.Group{cli.Log.group(), cli.Pprof.group(), cli.Cache.group()},
		),
		kong.BindSingletonProvider(func() context.Context {
			return ctx
		}),
		kong.ConfigureHelp(
			kong.HelpOptions{
				Compact:             true,
				Summary:             true,
				Tree:                true,
				FlagsLast:           false,
				NoAppSummary:        false,
				NoExpandSubcommands: true,
			}),
		kong.Configuration(kong.JSON, configFilePath+".json"),
		kong.Configuration(resolve(configFilePath+".hcl"), configFilePath+".hcl"),
		vars,
	)
	if err != nil {
		return err
	}

	ktx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	// Finalize logger configuration with all parsed values including
	// TimeLayout and Caller which don't use TextUnmarshaler.
	cli.Log.start(ctx)

	// [pprofConfig.start] is no-op unless built with tag pprof and enabled.
	defer cli.Pprof.start(ctx, ktx.Command())()

	registry := lang.NewRegistry()
	logger := log.Default()

	store, closeStore, err := cli.Cache.open(ctx, registry, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	// Stuff additional context values for use by commands
	ctx = cmd.WithContext(ctx, ktx)
	ctx = cmd.WithEnv(ctx, cmd.Env{
		Cache:    store,
		Registry: registry,
		Logger:   logger,
		Stdin:    stdin,
		Stdout:   stdout,
	})

	// Execute the selected command
	return ktx.Run()
}
