package lang

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"maps"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/ardnew/talc/log"
)

// CompiledTemplate is linked, executable template code. It is immutable
// and safe for concurrent use.
type CompiledTemplate struct {
	key       Key
	created   time.Time
	code      *Code
	generated []byte
	artifact  []byte
	globals   GlobalsTypes
	modules   map[string]Module
	main      []*Op
	macros    map[string]*Macro
	filename  string
	maxDepth  int
	logger    log.Logger
}

// Key returns the Key the template was generated for.
func (t *CompiledTemplate) Key() Key { return t.key }

// Created returns the time the template was compiled.
func (t *CompiledTemplate) Created() time.Time { return t.created }

// Filename returns the name of the template source given to the compiler
// that linked t, if any.
func (t *CompiledTemplate) Filename() string { return t.filename }

// Generated returns the generated code.
func (t *CompiledTemplate) Generated() string { return string(t.generated) }

// Globals returns the declared types of the template's globals.
func (t *CompiledTemplate) Globals() GlobalsTypes { return maps.Clone(t.globals) }

// Artifact returns the persisted form of t, which [Compiler.Load]
// restores.
func (t *CompiledTemplate) Artifact() []byte {
	return append([]byte(nil), t.artifact...)
}

// MarshalBinary implements [encoding.BinaryMarshaler].
func (t *CompiledTemplate) MarshalBinary() ([]byte, error) {
	return t.Artifact(), nil
}

// RepeatInfo describes the current iteration of a tal:repeat. It is
// available to expressions as repeat.<var>.
type RepeatInfo struct {
	Index  int  `expr:"index"`
	Number int  `expr:"number"`
	Even   bool `expr:"even"`
	Odd    bool `expr:"odd"`
	Start  bool `expr:"start"`
	End    bool `expr:"end"`
	Length int  `expr:"length"`
	Key    any  `expr:"key"`
}

type renderConfig struct {
	allowAbsent bool
	filename    string
	maxDepth    int
}

// RenderOption configures a single execution.
type RenderOption func(*renderConfig)

// AllowAbsent binds globals missing from the values passed to
// [CompiledTemplate.Execute] to the zero value of their declared type
// instead of failing.
func AllowAbsent() RenderOption {
	return func(c *renderConfig) { c.allowAbsent = true }
}

// RenderFilename names the template source in render errors. A compiled
// template may be shared by every template with the same Key, so the
// caller's name takes precedence over [CompiledTemplate.Filename].
func RenderFilename(name string) RenderOption {
	return func(c *renderConfig) {
		if name != "" {
			c.filename = name
		}
	}
}

// RenderMaxDepth limits nested macro expansion for one execution.
// Non-positive values keep the limit the template was compiled with.
func RenderMaxDepth(depth int) RenderOption {
	return func(c *renderConfig) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// Execute renders the template with the given global values.
//
// Every declared global must be present unless [AllowAbsent] is given, and
// every value must convert to its declared type. Failures are returned as
// [*RenderError] located at the instruction being executed.
func (t *CompiledTemplate) Execute(
	ctx context.Context,
	values map[string]any,
	opts ...RenderOption,
) (string, error) {
	rc := renderConfig{filename: t.filename, maxDepth: t.maxDepth}

	for _, opt := range opts {
		if opt != nil {
			opt(&rc)
		}
	}

	env, err := t.env(values, rc)
	if err != nil {
		return "", err
	}

	r := &renderer{t: t, base: env, filename: rc.filename, maxDepth: rc.maxDepth}

	var b strings.Builder

	if err := r.ops(&b, t.main, env, nil); err != nil {
		return "", err
	}

	t.logger.TraceContext(ctx, "rendered template",
		slog.String("key", t.key.String()),
		slog.Int("bytes", b.Len()))

	return b.String(), nil
}

func (t *CompiledTemplate) env(values map[string]any, rc renderConfig) (map[string]any, error) {
	env := make(map[string]any, len(t.globals)+len(t.modules)+1)
	env[repeatName] = map[string]RepeatInfo{}

	for id, m := range t.modules {
		env[id] = m
	}

	for _, name := range t.globals.Names() {
		ty := t.globals[name]

		v, ok := values[name]
		if !ok {
			if !rc.allowAbsent {
				return nil, &RenderError{
					Err:      ErrMissingGlobal.Wrap(fmt.Errorf("%q", name)),
					Filename: rc.filename,
				}
			}

			env[name] = exemplar(ty)

			continue
		}

		nv, err := coerce(v, ty)
		if err != nil {
			return nil, &RenderError{
				Err: ErrGlobalType.Wrap(fmt.Errorf("%q: %w", name, err)).With(
					slog.String("global", name),
					slog.String("type", TypeString(ty))),
				Filename: rc.filename,
			}
		}

		env[name] = nv
	}

	return env, nil
}

// frame is an active macro expansion.
type frame struct {
	fills  map[string]*Slot
	env    map[string]any // scope of the use-macro element
	caller *frame
	depth  int
}

type renderer struct {
	t        *CompiledTemplate
	base     map[string]any
	filename string
	maxDepth int
}

func (r *renderer) ops(b *strings.Builder, ops []*Op, env map[string]any, fr *frame) error {
	for _, op := range ops {
		if err := r.op(b, op, env, fr); err != nil {
			return err
		}
	}

	return nil
}

func (r *renderer) op(b *strings.Builder, op *Op, env map[string]any, fr *frame) error {
	switch op.Code {
	case OpText:
		b.WriteString(op.Text)

	case OpValue:
		v, err := r.eval(op, op.prog, op.Expr, env)
		if err != nil {
			return err
		}

		writeValue(b, v, op.Raw)

	case OpIf:
		v, err := r.eval(op, op.prog, op.Expr, env)
		if err != nil {
			return err
		}

		if truthy(v) {
			return r.ops(b, op.Body, env, fr)
		}

	case OpRepeat:
		return r.repeat(b, op, env, fr)

	case OpDefine:
		v, err := r.eval(op, op.prog, op.Expr, env)
		if err != nil {
			return err
		}

		return r.ops(b, op.Body, bindScope(env, op.Var, v), fr)

	case OpElement:
		return r.element(b, op, env, fr)

	case OpMacro:
		return r.macro(b, op, env, fr)

	case OpSlot:
		if fr != nil {
			if fill, ok := fr.fills[op.Name]; ok {
				return r.ops(b, fill.Body, fr.env, fr.caller)
			}
		}

		return r.ops(b, op.Body, env, fr)
	}

	return nil
}

func (r *renderer) repeat(b *strings.Builder, op *Op, env map[string]any, fr *frame) error {
	v, err := r.eval(op, op.prog, op.Expr, env)
	if err != nil {
		return err
	}

	keys, items, err := iterate(v)
	if err != nil {
		return r.errorf(op, ErrNotIterable.Wrap(err))
	}

	outer, _ := env[repeatName].(map[string]RepeatInfo)

	for i, item := range items {
		info := RepeatInfo{
			Index:  i,
			Number: i + 1,
			Even:   i%2 == 0,
			Odd:    i%2 == 1,
			Start:  i == 0,
			End:    i == len(items)-1,
			Length: len(items),
			Key:    keys[i],
		}

		meta := maps.Clone(outer)
		if meta == nil {
			meta = make(map[string]RepeatInfo, 1)
		}

		meta[op.Var] = info

		inner := maps.Clone(env)
		inner[op.Var] = item
		inner[repeatName] = meta

		if err := r.ops(b, op.Body, inner, fr); err != nil {
			return err
		}
	}

	return nil
}

func (r *renderer) element(b *strings.Builder, op *Op, env map[string]any, fr *frame) error {
	omit := op.Omit

	if op.omitProg != nil {
		v, err := r.eval(op, op.omitProg, op.OmitIf, env)
		if err != nil {
			return err
		}

		omit = omit || truthy(v)
	}

	if !omit {
		b.WriteByte('<')
		b.WriteString(op.Text)

		for _, a := range op.Attrs {
			if err := r.attr(b, op, a, env, fr); err != nil {
				return err
			}
		}

		if op.SelfClose && op.Content == nil {
			b.WriteString("/>")

			return nil
		}

		b.WriteByte('>')

		if op.Void {
			return nil
		}
	}

	if op.Content != nil {
		if err := r.op(b, op.Content, env, fr); err != nil {
			return err
		}
	} else if err := r.ops(b, op.Body, env, fr); err != nil {
		return err
	}

	if !omit {
		b.WriteString("</")
		b.WriteString(op.Text)
		b.WriteByte('>')
	}

	return nil
}

// attr writes one attribute. A dynamic attribute whose value is nil or
// false is dropped, and one whose value is true is written as name="name".
func (r *renderer) attr(b *strings.Builder, op *Op, a *Attr, env map[string]any, fr *frame) error {
	if a.prog != nil {
		v, err := r.eval(op, a.prog, a.Expr, env)
		if err != nil {
			return err
		}

		switch v {
		case nil, false:
			return nil
		case true:
			v = a.Name
		}

		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		b.WriteString(html.EscapeString(stringify(v)))
		b.WriteByte('"')

		return nil
	}

	b.WriteByte(' ')
	b.WriteString(a.Name)

	if a.Bare {
		return nil
	}

	quote := a.Quote
	if quote == "" {
		quote = `"`
	}

	b.WriteByte('=')
	b.WriteString(quote)

	if err := r.ops(b, a.Parts, env, fr); err != nil {
		return err
	}

	b.WriteString(quote)

	return nil
}

func (r *renderer) macro(b *strings.Builder, op *Op, env map[string]any, fr *frame) error {
	m, ok := r.t.macros[op.Name]
	if !ok {
		err := ErrUndefinedMacro.Wrap(fmt.Errorf("%q", op.Name))
		if hint, ok := suggest(op.Name, sortedKeys(r.t.macros)); ok {
			err = err.With(slog.String("suggest", hint))
		}

		return r.errorf(op, err)
	}

	depth := 1
	if fr != nil {
		depth = fr.depth + 1
	}

	if depth > r.maxDepth {
		return r.errorf(op, ErrMaxDepth.Wrap(
			fmt.Errorf("macro %q nested %d levels deep", op.Name, depth)))
	}

	next := &frame{
		fills:  make(map[string]*Slot, len(op.Slots)),
		env:    env,
		caller: fr,
		depth:  depth,
	}

	for _, s := range op.Slots {
		next.fills[s.Name] = s
	}

	return r.ops(b, m.Body, r.base, next)
}

func (r *renderer) eval(op *Op, prog *vm.Program, src string, env map[string]any) (any, error) {
	v, err := expr.Run(prog, env)
	if err != nil {
		return nil, r.errorf(op, ErrExprEvaluate.Wrap(err).
			With(slog.String("expr", src)))
	}

	return v, nil
}

func (r *renderer) errorf(op *Op, err error) error {
	return &RenderError{
		Err:      err,
		Filename: r.filename,
		Location: op.Location(),
	}
}

// iterate returns the items of a list or map value with their keys. Map
// items are ordered by key. A nil value has no items.
func iterate(v any) (keys, items []any, err error) {
	if v == nil {
		return nil, nil, nil
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		n := rv.Len()
		keys, items = make([]any, n), make([]any, n)

		for i := range n {
			keys[i], items[i] = i, rv.Index(i).Interface()
		}

		return keys, items, nil

	case reflect.Map:
		mk := rv.MapKeys()
		sort.Slice(mk, func(i, j int) bool {
			return fmt.Sprint(mk[i].Interface()) < fmt.Sprint(mk[j].Interface())
		})

		keys, items = make([]any, len(mk)), make([]any, len(mk))

		for i, k := range mk {
			keys[i], items[i] = k.Interface(), rv.MapIndex(k).Interface()
		}

		return keys, items, nil
	}

	return nil, nil, fmt.Errorf("cannot repeat over %s", typeName(v))
}

// truthy reports whether v counts as true in a condition: nil, false,
// zero numbers, and empty strings and collections do not.
func truthy(v any) bool {
	if v == nil {
		return false
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32,
		reflect.Uint64, reflect.Uintptr:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}

	return true
}

func writeValue(b *strings.Builder, v any, raw bool) {
	s := stringify(v)
	if !raw {
		s = html.EscapeString(s)
	}

	b.WriteString(s)
}

func stringify(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	}

	return fmt.Sprint(v)
}
