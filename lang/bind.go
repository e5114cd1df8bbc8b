package lang

import (
	"fmt"
	"maps"

	"github.com/expr-lang/expr/ast"
	"github.com/sahilm/fuzzy"
)

// repeatName is the implicit variable exposing loop metadata.
const repeatName = "repeat"

type scope map[string]struct{}

func (s scope) with(name string) scope {
	c := maps.Clone(s)
	c[name] = struct{}{}

	return c
}

// binder checks that every name used by an expression is bound.
type binder struct {
	prog *Program
	base scope
}

// bind resolves the free names of every expression in prog. Names resolve
// to globals, modules, the implicit repeat variable, or an enclosing
// repeat or define variable. Macro bodies see only globals and modules,
// since they may be used anywhere. Slot fills see the scope of the
// use-macro element that holds them.
func bind(prog *Program, globals GlobalsTypes, modules []string) error {
	base := scope{repeatName: {}}

	for name := range globals {
		base[name] = struct{}{}
	}

	for _, id := range modules {
		base[id] = struct{}{}
	}

	b := &binder{prog: prog, base: base}

	return b.nodes(prog.Nodes, base)
}

func (b *binder) nodes(nodes []Node, s scope) error {
	for _, n := range nodes {
		if err := b.node(n, s); err != nil {
			return err
		}
	}

	return nil
}

func (b *binder) node(n Node, s scope) error {
	switch n := n.(type) {
	case *Content:
		return b.expr(n.Expr, s)

	case *Repeat:
		if err := b.expr(n.Expr, s); err != nil {
			return err
		}

		return b.nodes(n.Body, s.with(n.Var))

	case *Condition:
		if err := b.expr(n.Expr, s); err != nil {
			return err
		}

		return b.nodes(n.Body, s)

	case *Define:
		if err := b.expr(n.Expr, s); err != nil {
			return err
		}

		return b.nodes(n.Body, s.with(n.Var))

	case *Element:
		for _, a := range n.Attrs {
			if err := b.nodes(a.Value, s); err != nil {
				return err
			}
		}

		for _, set := range n.Sets {
			if err := b.expr(set.Expr, s); err != nil {
				return err
			}
		}

		if n.Content != nil {
			if err := b.expr(n.Content.Expr, s); err != nil {
				return err
			}
		}

		if n.OmitIf != nil {
			if err := b.expr(*n.OmitIf, s); err != nil {
				return err
			}
		}

		return b.nodes(n.Body, s)

	case *MacroDef:
		return b.nodes(n.Body, b.base)

	case *MacroUse:
		for _, name := range sortedKeys(n.Slots) {
			if err := b.nodes(n.Slots[name], s); err != nil {
				return err
			}
		}

	case *SlotDef:
		return b.nodes(n.Body, s)
	}

	return nil
}

func (b *binder) expr(e Expr, s scope) error {
	tree, err := exprTree(e)
	if err != nil {
		return b.errorf(e, ErrExprSyntax, "%s", firstLine(err.Error()))
	}

	for _, name := range freeNames(tree) {
		if _, ok := s[name]; ok {
			continue
		}

		msg := fmt.Sprintf("%q is not defined", name)
		if hint, ok := suggest(name, sortedKeys(s)); ok {
			msg += fmt.Sprintf(" (did you mean %q?)", hint)
		}

		return b.errorf(e, ErrUndefinedName, "%s", msg)
	}

	return nil
}

func (b *binder) errorf(e Expr, sentinel *Error, format string, args ...any) error {
	return &ParseError{
		Err:    sentinel.Wrap(fmt.Errorf(format, args...)),
		Source: b.prog.Source,
		Token: Token{
			Kind:     TokenInterp,
			Text:     e.Source,
			Filename: b.prog.Filename,
			Location: e.Loc,
		},
	}
}

// nameCollector gathers identifiers that are not declared inside the
// expression itself.
type nameCollector struct {
	seen     map[string]bool
	declared map[string]bool
	names    []string
}

func (c *nameCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if n.Value == "$env" || c.seen[n.Value] {
			return
		}

		c.seen[n.Value] = true
		c.names = append(c.names, n.Value)

	case *ast.VariableDeclaratorNode:
		c.declared[n.Name] = true
	}
}

// freeNames returns the identifiers referenced by tree in the order they
// are visited, excluding names bound with let.
func freeNames(tree ast.Node) []string {
	c := &nameCollector{
		seen:     make(map[string]bool),
		declared: make(map[string]bool),
	}

	ast.Walk(&tree, c)

	free := c.names[:0]

	for _, name := range c.names {
		if !c.declared[name] {
			free = append(free, name)
		}
	}

	return free
}

// suggest returns the candidate that best matches name.
func suggest(name string, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}

	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		return "", false
	}

	return matches[0].Str, true
}
