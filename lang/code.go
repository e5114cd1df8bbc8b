package lang

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/expr-lang/expr/vm"
	"github.com/goccy/go-yaml"
)

// OpCode identifies the kind of an instruction.
type OpCode string

const (
	OpText    OpCode = "text"    // write Text
	OpValue   OpCode = "value"   // write the value of Expr
	OpElement OpCode = "element" // write element Text with dynamic parts
	OpIf      OpCode = "if"      // run Body when Expr is truthy
	OpRepeat  OpCode = "repeat"  // run Body per item of Expr bound to Var
	OpDefine  OpCode = "define"  // run Body with Var bound to Expr
	OpMacro   OpCode = "macro"   // run macro Name with Slots
	OpSlot    OpCode = "slot"    // run the fill of slot Name, or Body
)

// Code is the generated form of a template: a tree of instructions with
// the binding shape it was generated for. It is serialized as YAML.
type Code struct {
	Version int      `yaml:"version"`
	Key     string   `yaml:"key"`
	Globals []Global `yaml:"globals,omitempty"`
	Modules []string `yaml:"modules,omitempty"`
	Main    []*Op    `yaml:"main"`
	Macros  []*Macro `yaml:"macros,omitempty"`
}

// Global is the declared type of one global.
type Global struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Macro is a named instruction sequence.
type Macro struct {
	Name string `yaml:"name"`
	Body []*Op  `yaml:"body"`
}

// Slot is the caller-supplied content of a macro slot.
type Slot struct {
	Name string `yaml:"name"`
	Body []*Op  `yaml:"body"`
}

// Attr is an attribute of an [OpElement]. Static attributes hold Parts,
// dynamic ones hold Expr.
type Attr struct {
	Name  string `yaml:"name"`
	Quote string `yaml:"quote,omitempty"`
	Parts []*Op  `yaml:"parts,omitempty"`
	Expr  string `yaml:"expr,omitempty"`
	Bare  bool   `yaml:"bare,omitempty"`

	prog *vm.Program
}

// Op is one instruction.
type Op struct {
	Code      OpCode  `yaml:"op"`
	Line      int     `yaml:"line,omitempty"`
	Column    int     `yaml:"column,omitempty"`
	Text      string  `yaml:"text,omitempty"`
	Expr      string  `yaml:"expr,omitempty"`
	Var       string  `yaml:"var,omitempty"`
	Name      string  `yaml:"name,omitempty"`
	Raw       bool    `yaml:"raw,omitempty"`
	Omit      bool    `yaml:"omit,omitempty"`
	OmitIf    string  `yaml:"omit_if,omitempty"`
	SelfClose bool    `yaml:"self_close,omitempty"`
	Void      bool    `yaml:"void,omitempty"`
	Attrs     []*Attr `yaml:"attrs,omitempty"`
	Content   *Op     `yaml:"content,omitempty"`
	Body      []*Op   `yaml:"body,omitempty"`
	Slots     []*Slot `yaml:"slots,omitempty"`

	prog     *vm.Program
	omitProg *vm.Program
}

// Text, Expr and OmitIf are written in Go string syntax when YAML would
// not preserve them, which is when they hold whitespace other than inner
// spaces, a control character, or a leading double quote.
type (
	yamlOp   Op
	yamlAttr Attr
)

// MarshalYAML implements [yaml.InterfaceMarshaler].
func (op *Op) MarshalYAML() (any, error) {
	out := yamlOp(*op)
	out.Text = escapeScalar(op.Text)
	out.Expr = escapeScalar(op.Expr)
	out.OmitIf = escapeScalar(op.OmitIf)

	return &out, nil
}

// UnmarshalYAML implements [yaml.InterfaceUnmarshaler].
func (op *Op) UnmarshalYAML(unmarshal func(any) error) error {
	var in yamlOp
	if err := unmarshal(&in); err != nil {
		return err
	}

	var err error

	if in.Text, err = unescapeScalar(in.Text); err != nil {
		return err
	}

	if in.Expr, err = unescapeScalar(in.Expr); err != nil {
		return err
	}

	if in.OmitIf, err = unescapeScalar(in.OmitIf); err != nil {
		return err
	}

	*op = Op(in)

	return nil
}

// MarshalYAML implements [yaml.InterfaceMarshaler].
func (a *Attr) MarshalYAML() (any, error) {
	out := yamlAttr(*a)
	out.Expr = escapeScalar(a.Expr)

	return &out, nil
}

// UnmarshalYAML implements [yaml.InterfaceUnmarshaler].
func (a *Attr) UnmarshalYAML(unmarshal func(any) error) error {
	var in yamlAttr
	if err := unmarshal(&in); err != nil {
		return err
	}

	var err error
	if in.Expr, err = unescapeScalar(in.Expr); err != nil {
		return err
	}

	*a = Attr(in)

	return nil
}

func escapeScalar(s string) string {
	if s == "" || !needsEscape(s) {
		return s
	}

	return strconv.Quote(s)
}

func unescapeScalar(s string) (string, error) {
	if !strings.HasPrefix(s, `"`) {
		return s, nil
	}

	return strconv.Unquote(s)
}

func needsEscape(s string) bool {
	if s[0] == '"' || s[0] == ' ' || s[len(s)-1] == ' ' {
		return true
	}

	for _, r := range s {
		if r == utf8.RuneError || !unicode.IsPrint(r) {
			return true
		}
	}

	return false
}

// Location returns the template position the instruction came from.
func (op *Op) Location() Location {
	return Location{Line: op.Line, Column: op.Column}
}

// Marshal returns the YAML form of c.
func (c *Code) Marshal() ([]byte, error) {
	return yaml.MarshalWithOptions(c, yaml.IndentSequence(true))
}

// UnmarshalCode decodes the YAML form of generated code.
func UnmarshalCode(data []byte) (*Code, error) {
	c := &Code{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}

	return c, nil
}

// emitter lowers a [Program] to instructions.
type emitter struct{}

func (e emitter) program(prog *Program) (main []*Op, macros []*Macro) {
	main = e.nodes(prog.Nodes)

	for _, m := range prog.Macros {
		macros = append(macros, &Macro{Name: m.Name, Body: e.nodes(m.Body)})
	}

	return main, macros
}

func (e emitter) nodes(nodes []Node) []*Op {
	var ops []*Op

	for _, n := range nodes {
		ops = e.node(ops, n)
	}

	return ops
}

// node appends the instructions of n to ops.
func (e emitter) node(ops []*Op, n Node) []*Op {
	switch n := n.(type) {
	case *Literal:
		return appendText(ops, n.Text, n.Loc)

	case *Content:
		return append(ops, e.value(n))

	case *Repeat:
		return append(ops, &Op{
			Code: OpRepeat, Var: n.Var, Expr: n.Expr.Source,
			Line: n.Expr.Loc.Line, Column: n.Expr.Loc.Column,
			Body: e.nodes(n.Body),
		})

	case *Condition:
		return append(ops, &Op{
			Code: OpIf, Expr: n.Expr.Source,
			Line: n.Expr.Loc.Line, Column: n.Expr.Loc.Column,
			Body: e.nodes(n.Body),
		})

	case *Define:
		return append(ops, &Op{
			Code: OpDefine, Var: n.Var, Expr: n.Expr.Source,
			Line: n.Expr.Loc.Line, Column: n.Expr.Loc.Column,
			Body: e.nodes(n.Body),
		})

	case *Element:
		return e.element(ops, n)

	case *MacroDef:
		// The body is emitted once, into the macro table. In place it
		// renders as a use of itself without fills.
		return append(ops, &Op{
			Code: OpMacro, Name: n.Name, Line: n.Loc.Line, Column: n.Loc.Column,
		})

	case *MacroUse:
		op := &Op{Code: OpMacro, Name: n.Name, Line: n.Loc.Line, Column: n.Loc.Column}
		for _, name := range sortedKeys(n.Slots) {
			op.Slots = append(op.Slots, &Slot{Name: name, Body: e.nodes(n.Slots[name])})
		}

		return append(ops, op)

	case *SlotDef:
		return append(ops, &Op{
			Code: OpSlot, Name: n.Name, Line: n.Loc.Line, Column: n.Loc.Column,
			Body: e.nodes(n.Body),
		})
	}

	return ops
}

func (e emitter) value(c *Content) *Op {
	return &Op{
		Code:   OpValue,
		Expr:   c.Expr.Source,
		Raw:    c.Structure,
		Line:   c.Expr.Loc.Line,
		Column: c.Expr.Loc.Column,
	}
}

// element emits el as text when nothing about it is dynamic, and as an
// [OpElement] otherwise.
func (e emitter) element(ops []*Op, el *Element) []*Op {
	if !isStatic(el) {
		return append(ops, e.dynamic(el))
	}

	if !el.Omit {
		var b strings.Builder

		b.WriteByte('<')
		b.WriteString(el.Tag)

		for _, a := range el.Attrs {
			writeStaticAttr(&b, a)
		}

		if el.SelfClose {
			b.WriteString("/>")
		} else {
			b.WriteByte('>')
		}

		ops = appendText(ops, b.String(), el.Loc)
	}

	for _, n := range el.Body {
		ops = e.node(ops, n)
	}

	if !el.Omit && !el.SelfClose && !el.Void {
		ops = appendText(ops, "</"+el.Tag+">", el.Loc)
	}

	return ops
}

func (e emitter) dynamic(el *Element) *Op {
	op := &Op{
		Code:      OpElement,
		Text:      el.Tag,
		Line:      el.Loc.Line,
		Column:    el.Loc.Column,
		Omit:      el.Omit,
		SelfClose: el.SelfClose,
		Void:      el.Void,
		Body:      e.nodes(el.Body),
	}

	if el.OmitIf != nil {
		op.OmitIf = el.OmitIf.Source
	}

	if el.Content != nil {
		op.Content = e.value(el.Content)
	}

	for _, a := range el.Attrs {
		attr := &Attr{Name: a.Name, Bare: a.Bare}
		if a.Quote != 0 {
			attr.Quote = string(a.Quote)
		}

		for _, part := range a.Value {
			attr.Parts = e.node(attr.Parts, part)
		}

		op.Attrs = append(op.Attrs, attr)
	}

	// Dynamic attributes replace static ones of the same name in place.
	for _, set := range el.Sets {
		attr := &Attr{Name: set.Name, Expr: set.Expr.Source}

		replaced := false

		for i, a := range op.Attrs {
			if strings.EqualFold(a.Name, set.Name) {
				op.Attrs[i], replaced = attr, true

				break
			}
		}

		if !replaced {
			op.Attrs = append(op.Attrs, attr)
		}
	}

	return op
}

func isStatic(el *Element) bool {
	if len(el.Sets) > 0 || el.Content != nil || el.OmitIf != nil {
		return false
	}

	for _, a := range el.Attrs {
		for _, part := range a.Value {
			if _, ok := part.(*Literal); !ok {
				return false
			}
		}
	}

	return true
}

func writeStaticAttr(b *strings.Builder, a *Attribute) {
	b.WriteByte(' ')
	b.WriteString(a.Name)

	if a.Bare {
		return
	}

	quote := a.Quote
	if quote == 0 {
		quote = '"'
	}

	b.WriteByte('=')
	b.WriteRune(quote)

	for _, part := range a.Value {
		if lit, ok := part.(*Literal); ok {
			b.WriteString(lit.Text)
		}
	}

	b.WriteRune(quote)
}

// appendText appends text to ops, merging it into a trailing text
// instruction when there is one.
func appendText(ops []*Op, text string, loc Location) []*Op {
	if text == "" {
		return ops
	}

	if n := len(ops); n > 0 && ops[n-1].Code == OpText {
		ops[n-1].Text += text

		return ops
	}

	return append(ops, &Op{
		Code: OpText, Text: text, Line: loc.Line, Column: loc.Column,
	})
}
