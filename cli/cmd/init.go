package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/natefinch/atomic"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/ardnew/talc/log"
	"github.com/ardnew/talc/profile"
)

// Init generates a configuration file with current flag values.
type Init struct {
	Force bool `help:"Overwrite existing configuration file" short:"f"`
}

// Run executes the init command.
func (i *Init) Run(ctx context.Context) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	ktx := kongContextFrom(ctx)
	if ktx == nil {
		return ErrNoEnv
	}

	confPath, ok := ktx.Model.Vars()[ConfigIdentifier]
	if !ok || confPath == "" {
		return ErrWriteConfig.With(slog.String("reason", "configuration path undefined"))
	}

	// Check if file exists and force not set
	_, err = os.Stat(confPath)
	if err == nil && !i.Force {
		return ErrWriteConfig.
			With(slog.String("file", confPath)).
			With(slog.Bool("exists", true)).
			Wrap(ErrFileExists)
	}

	file := i.buildFile(ktx)

	err = atomic.WriteFile(confPath, bytes.NewReader(file.Bytes()))
	if err != nil {
		return ErrWriteConfig.
			With(slog.String("file", confPath)).
			Wrap(err)
	}

	log.DebugContext(
		ctx,
		"initialized configuration file",
		slog.String("path", confPath),
	)

	return nil
}

// buildFile constructs the HCL configuration from current flag values.
// Flag names are written with underscores.
func (i *Init) buildFile(ktx *kong.Context) *hclwrite.File {
	file := hclwrite.NewEmptyFile()
	body := file.Body()

	prefixIgnore := []string{"help", profile.Tag}

	for _, flag := range ktx.Model.Flags {
		if flag.Hidden || slices.ContainsFunc(prefixIgnore, func(s string) bool {
			return strings.HasPrefix(flag.Name, s)
		}) {
			continue
		}

		val, ok := flagValue(ktx.FlagValue(flag))
		if !ok {
			continue
		}

		body.SetAttributeValue(strings.ReplaceAll(flag.Name, "-", "_"), val)
	}

	return file
}

// flagValue converts a flag value to a cty value. Empty strings, empty
// collections and values with no HCL representation are omitted.
func flagValue(v any) (cty.Value, bool) {
	if v == nil {
		return cty.NilVal, false
	}

	if d, ok := v.(time.Duration); ok {
		return cty.StringVal(d.String()), true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Map:
		if rv.Len() == 0 {
			return cty.NilVal, false
		}
	}

	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, false
	}

	val, err := gocty.ToCtyValue(v, ty)
	if err != nil {
		return cty.NilVal, false
	}

	return val, true
}
