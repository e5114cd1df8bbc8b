package lang

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// TemplateInfo is the result of generating code for a template.
type TemplateInfo struct {
	Body      string
	Filename  string
	Globals   GlobalsTypes
	Modules   []string
	Code      *Code
	Generated []byte
	Key       Key
}

// Generator parses templates and generates their code.
// It has no side effects beyond logging.
type Generator struct {
	cfg config
}

// NewGenerator returns a Generator configured by opts.
func NewGenerator(opts ...Option) *Generator {
	return &Generator{cfg: makeConfig(opts...)}
}

// Generate parses body, checks that every name it uses is bound by
// globals, modules, or an enclosing directive, and generates its code.
//
// Syntax errors and unbound names are returned as [*ParseError].
func (g *Generator) Generate(
	ctx context.Context,
	body string,
	globals GlobalsTypes,
	modules []string,
) (*TemplateInfo, error) {
	mods := normalizeModules(modules)

	if err := checkNames(globals, mods); err != nil {
		return nil, err
	}

	prog, err := Parse(ctx, body,
		WithFilename(g.cfg.filename), WithLogger(g.cfg.logger))
	if err != nil {
		return nil, err
	}

	if err := bind(prog, globals, mods); err != nil {
		return nil, err
	}

	g.checkMacros(ctx, prog)

	main, macros := emitter{}.program(prog)
	key := ComputeKey(body, globals, mods)

	code := &Code{
		Version: codeVersion,
		Key:     key.String(),
		Modules: mods,
		Main:    main,
		Macros:  macros,
	}

	for _, name := range globals.Names() {
		code.Globals = append(code.Globals,
			Global{Name: name, Type: TypeString(globals[name])})
	}

	generated, err := code.Marshal()
	if err == nil {
		err = checkDecode(code, generated)
	}

	if err != nil {
		return nil, WrapError(err).With(slog.String("key", key.String()))
	}

	g.cfg.logger.DebugContext(ctx, "generated template",
		slog.String("file", g.cfg.filename),
		slog.String("key", key.String()),
		slog.Int("globals", len(globals)),
		slog.Any("modules", mods),
		slog.Int("bytes", len(generated)))

	return &TemplateInfo{
		Body:      body,
		Filename:  g.cfg.filename,
		Globals:   globals,
		Modules:   mods,
		Code:      code,
		Generated: generated,
		Key:       key,
	}, nil
}

// checkNames rejects globals that would be shadowed by a module or the
// implicit repeat variable.
func checkNames(globals GlobalsTypes, modules []string) error {
	for _, name := range globals.Names() {
		if !isIdent(name) {
			return ErrInvalidType.Wrap(fmt.Errorf("invalid global name %q", name))
		}

		if name == repeatName {
			return ErrInvalidType.Wrap(
				fmt.Errorf("global %q uses a reserved name", name))
		}

		if slices.Contains(modules, name) {
			return ErrInvalidType.Wrap(
				fmt.Errorf("global %q has the same name as a module", name))
		}
	}

	return nil
}

// checkMacros warns about macros that are used but never defined. Such a
// use fails when it is executed.
func (g *Generator) checkMacros(ctx context.Context, prog *Program) {
	defined := make([]string, 0, len(prog.Macros))
	for _, m := range prog.Macros {
		defined = append(defined, m.Name)
	}

	Walk(prog.Nodes, func(n Node) bool {
		use, ok := n.(*MacroUse)
		if !ok || slices.Contains(defined, use.Name) {
			return true
		}

		attrs := []slog.Attr{
			slog.String("macro", use.Name),
			slog.String("at", position(prog.Filename, use.Loc)),
		}

		if hint, ok := suggest(use.Name, defined); ok {
			attrs = append(attrs, slog.String("suggest", hint))
		}

		g.cfg.logger.WarnContext(ctx, "use of undefined macro", attrs...)

		return true
	})
}

// checkDecode verifies that generated decodes to code, so that a compiled
// template reproduces the literal text of its source exactly.
func checkDecode(code *Code, generated []byte) error {
	decoded, err := UnmarshalCode(generated)
	if err != nil {
		return err
	}

	diff := cmp.Diff(code, decoded,
		cmpopts.IgnoreUnexported(Op{}, Attr{}), cmpopts.EquateEmpty())
	if diff != "" {
		return errors.New("generated code does not decode to itself:\n" + diff)
	}

	return nil
}
