package lang

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/types"
	"github.com/expr-lang/expr/vm"
)

// Compiler links generated code into a [CompiledTemplate].
type Compiler struct {
	cfg config
}

// NewCompiler returns a Compiler configured by opts. Modules referenced by
// generated code are resolved through the configured [Registry].
func NewCompiler(opts ...Option) *Compiler {
	return &Compiler{cfg: makeConfig(opts...)}
}

// Compile links the generated code of info.
//
// Failures are returned as [*CompileError] carrying the generated code:
// an expression that does not type-check against the declared globals, an
// expression iterated by a repeat that is not iterable, or a module that
// is not registered.
func (c *Compiler) Compile(
	ctx context.Context,
	info *TemplateInfo,
) (*CompiledTemplate, error) {
	if info == nil || len(info.Generated) == 0 {
		return nil, &CompileError{Err: ErrExprCompile.Wrap(
			errors.New("no generated code"))}
	}

	code, err := UnmarshalCode(info.Generated)
	if err != nil {
		return nil, &CompileError{
			Err:      ErrExprCompile.Wrap(err),
			Code:     string(info.Generated),
			Filename: info.Filename,
		}
	}

	if code.Key != info.Key.String() {
		return nil, &CompileError{
			Err: ErrExprCompile.Wrap(fmt.Errorf(
				"generated code has key %s, want %s", code.Key, info.Key)),
			Code:     string(info.Generated),
			Filename: info.Filename,
		}
	}

	filename := info.Filename
	if filename == "" {
		filename = c.cfg.filename
	}

	t, err := c.link(code, info.Generated, filename)
	if err != nil {
		return nil, err
	}

	t.key = info.Key
	t.created = time.Now()
	t.artifact = encodeArtifact(t.key, info.Generated, t.created)

	c.cfg.logger.DebugContext(ctx, "compiled template",
		slog.String("key", t.key.String()),
		slog.String("file", filename),
		slog.Int("macros", len(t.macros)))

	return t, nil
}

// Load restores a [CompiledTemplate] from an artifact produced by
// [CompiledTemplate.Artifact]. Any failure, including code that no longer
// links, is returned as [*CorruptionError].
func (c *Compiler) Load(ctx context.Context, data []byte) (*CompiledTemplate, error) {
	h, generated, err := decodeArtifact(data)
	if err != nil {
		return nil, corrupt(err)
	}

	code, err := UnmarshalCode(generated)
	if err != nil {
		return nil, corrupt(err)
	}

	if code.Key != h.key.String() {
		return nil, corrupt(fmt.Errorf("code has key %s, header has %s",
			code.Key, h.key))
	}

	t, err := c.link(code, generated, c.cfg.filename)
	if err != nil {
		return nil, corrupt(err)
	}

	t.key = h.key
	t.created = h.created
	t.artifact = append([]byte(nil), data...)

	c.cfg.logger.DebugContext(ctx, "loaded template",
		slog.String("key", t.key.String()),
		slog.Time("created", t.created))

	return t, nil
}

func corrupt(err error) error {
	return &CorruptionError{Err: ErrCorrupt.Wrap(err)}
}

// linker compiles every expression of generated code against the static
// types of the names in its scope.
type linker struct {
	code      *Code
	generated string
	filename  string
}

func (c *Compiler) link(code *Code, generated []byte, filename string) (*CompiledTemplate, error) {
	l := &linker{code: code, generated: string(generated), filename: filename}

	if code.Version != codeVersion {
		return nil, l.errorf(nil, "", ErrExprCompile.Wrap(fmt.Errorf(
			"code version %d, want %d", code.Version, codeVersion)))
	}

	t := &CompiledTemplate{
		code:      code,
		generated: generated,
		globals:   make(GlobalsTypes, len(code.Globals)),
		modules:   make(map[string]Module, len(code.Modules)),
		macros:    make(map[string]*Macro, len(code.Macros)),
		filename:  filename,
		maxDepth:  c.cfg.maxDepth,
		logger:    c.cfg.logger,
	}

	base := types.Map{repeatName: types.TypeOf(map[string]RepeatInfo{})}

	for _, g := range code.Globals {
		ty, err := ParseType(g.Type)
		if err != nil {
			return nil, l.errorf(nil, "", WrapError(err).
				With(slog.String("global", g.Name)))
		}

		t.globals[g.Name] = ty
		base[g.Name] = exprType(goType(ty))
	}

	for _, id := range code.Modules {
		m, ok := c.cfg.registry.Lookup(id)
		if !ok {
			err := ErrUnknownModule.Wrap(fmt.Errorf("%q", id))
			if hint, ok := suggest(id, c.cfg.registry.Names()); ok {
				err = err.With(slog.String("suggest", hint))
			}

			return nil, l.errorf(nil, "", err)
		}

		t.modules[id] = m
		base[id] = types.TypeOf(m)
	}

	if err := l.ops(code.Main, base); err != nil {
		return nil, err
	}

	for _, m := range code.Macros {
		if err := l.ops(m.Body, base); err != nil {
			return nil, err
		}

		t.macros[m.Name] = m
	}

	t.main = code.Main

	return t, nil
}

func (l *linker) ops(ops []*Op, scope types.Map) error {
	for _, op := range ops {
		if err := l.op(op, scope); err != nil {
			return err
		}
	}

	return nil
}

func (l *linker) op(op *Op, scope types.Map) error {
	var err error

	switch op.Code {
	case OpText:
		return nil

	case OpValue:
		op.prog, err = l.compile(op, op.Expr, scope)

		return err

	case OpIf:
		if op.prog, err = l.compile(op, op.Expr, scope); err != nil {
			return err
		}

		return l.ops(op.Body, scope)

	case OpRepeat:
		if op.prog, err = l.compile(op, op.Expr, scope); err != nil {
			return err
		}

		item, ok := itemType(op.prog.Node().Type())
		if !ok {
			return l.errorf(op, op.Expr, ErrNotIterable.Wrap(
				fmt.Errorf("cannot repeat over %s", op.prog.Node().Type())))
		}

		return l.ops(op.Body, bindScope(scope, op.Var, item))

	case OpDefine:
		if op.prog, err = l.compile(op, op.Expr, scope); err != nil {
			return err
		}

		return l.ops(op.Body, bindScope(scope, op.Var, exprType(op.prog.Node().Type())))

	case OpElement:
		for _, a := range op.Attrs {
			if a.Expr != "" {
				if a.prog, err = l.compile(op, a.Expr, scope); err != nil {
					return err
				}

				continue
			}

			if err := l.ops(a.Parts, scope); err != nil {
				return err
			}
		}

		if op.OmitIf != "" {
			if op.omitProg, err = l.compile(op, op.OmitIf, scope); err != nil {
				return err
			}
		}

		if op.Content != nil {
			if err := l.op(op.Content, scope); err != nil {
				return err
			}
		}

		return l.ops(op.Body, scope)

	case OpMacro:
		for _, s := range op.Slots {
			if err := l.ops(s.Body, scope); err != nil {
				return err
			}
		}

		return nil

	case OpSlot:
		return l.ops(op.Body, scope)
	}

	return l.errorf(op, "", ErrExprCompile.Wrap(
		fmt.Errorf("unknown instruction %q", op.Code)))
}

func (l *linker) compile(op *Op, src string, scope types.Map) (*vm.Program, error) {
	prog, err := expr.Compile(src, expr.Env(scope))
	if err != nil {
		return nil, l.errorf(op, src, ErrExprCompile.Wrap(err))
	}

	return prog, nil
}

func (l *linker) errorf(op *Op, src string, err error) error {
	ce := &CompileError{
		Err:      err,
		Code:     l.generated,
		Expr:     src,
		Filename: l.filename,
	}

	if op != nil {
		ce.Location = op.Location()
	}

	return ce
}

func bindScope[M ~map[string]V, V any](scope M, name string, v V) M {
	s := maps.Clone(scope)
	s[name] = v

	return s
}

// itemType returns the type of the items produced by repeating over a value
// of type rt. Values of unknown type may be iterable at run time.
func itemType(rt reflect.Type) (types.Type, bool) {
	if rt == nil {
		return types.Any, true
	}

	switch rt.Kind() {
	case reflect.Interface:
		return types.Any, true
	case reflect.Slice, reflect.Array, reflect.Map:
		return exprType(rt.Elem()), true
	}

	return nil, false
}
