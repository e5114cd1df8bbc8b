package lang

import "github.com/expr-lang/expr/ast"

// Node is an element of a [Program] tree.
type Node interface {
	Pos() Location
}

// Expr is an expression source with its position in the template.
type Expr struct {
	tree   ast.Node
	Source string
	Loc    Location
}

func (e Expr) Pos() Location { return e.Loc }

// Literal is text copied to the output verbatim.
type Literal struct {
	Text string
	Loc  Location
}

// Content substitutes the value of an expression.
//
// Structure disables HTML escaping. Inline marks a "${...}" interpolation
// as opposed to a tal:content or tal:replace directive.
type Content struct {
	Expr      Expr
	Structure bool
	Inline    bool
}

// Repeat renders Body once per item of Expr with Var bound to the item.
type Repeat struct {
	Var  string
	Expr Expr
	Body []Node
	Loc  Location
}

// Condition renders Body only when Expr is truthy.
type Condition struct {
	Expr Expr
	Body []Node
	Loc  Location
}

// Define binds Var to the value of Expr for the duration of Body.
type Define struct {
	Var  string
	Expr Expr
	Body []Node
	Loc  Location
}

// Attribute is a static attribute of an element. Value holds literal and
// inline [Content] parts. Bare attributes such as "checked" have no value.
type Attribute struct {
	Name  string
	Value []Node
	Quote rune
	Bare  bool
	Loc   Location
}

// AttributeSet replaces or adds attribute Name with the value of Expr.
type AttributeSet struct {
	Name string
	Expr Expr
}

// Element is a markup element carrying dynamic behavior.
//
// Content, when set, replaces Body. OmitTag drops the start and end tags and
// renders only the children: always when Omit is set, otherwise when the
// OmitIf expression is truthy.
type Element struct {
	Tag       string
	Attrs     []*Attribute
	Sets      []*AttributeSet
	Content   *Content
	OmitIf    *Expr
	Body      []Node
	Loc       Location
	Omit      bool
	SelfClose bool
	Void      bool
}

// MacroDef defines a reusable subtree. Definitions also render in place.
type MacroDef struct {
	Name string
	Body []Node
	Loc  Location
}

// MacroUse renders the macro Name with Slots filled by the caller.
type MacroUse struct {
	Name  string
	Slots map[string][]Node
	Loc   Location
}

// SlotDef is a named insertion point of a macro with default content.
type SlotDef struct {
	Name string
	Body []Node
	Loc  Location
}

func (n *Literal) Pos() Location      { return n.Loc }
func (n *Content) Pos() Location      { return n.Expr.Loc }
func (n *Repeat) Pos() Location       { return n.Loc }
func (n *Condition) Pos() Location    { return n.Loc }
func (n *Define) Pos() Location       { return n.Loc }
func (n *Attribute) Pos() Location    { return n.Loc }
func (n *AttributeSet) Pos() Location { return n.Expr.Loc }
func (n *Element) Pos() Location      { return n.Loc }
func (n *MacroDef) Pos() Location     { return n.Loc }
func (n *MacroUse) Pos() Location     { return n.Loc }
func (n *SlotDef) Pos() Location      { return n.Loc }

// Program is the parsed form of a template.
type Program struct {
	Filename string
	Source   string
	Nodes    []Node
	Macros   []*MacroDef
}

// Macro returns the macro definition with the given name.
func (p *Program) Macro(name string) (*MacroDef, bool) {
	for _, m := range p.Macros {
		if m.Name == name {
			return m, true
		}
	}

	return nil, false
}

// Walk calls fn for each node of the tree in depth-first order. Returning
// false from fn skips the node's children.
func Walk(nodes []Node, fn func(Node) bool) {
	for _, n := range nodes {
		if !fn(n) {
			continue
		}

		switch n := n.(type) {
		case *Repeat:
			Walk(n.Body, fn)
		case *Condition:
			Walk(n.Body, fn)
		case *Define:
			Walk(n.Body, fn)
		case *Element:
			for _, a := range n.Attrs {
				Walk([]Node{a}, fn)
			}

			for _, s := range n.Sets {
				Walk([]Node{s}, fn)
			}

			if n.Content != nil {
				Walk([]Node{n.Content}, fn)
			}

			Walk(n.Body, fn)
		case *Attribute:
			Walk(n.Value, fn)
		case *MacroDef:
			Walk(n.Body, fn)
		case *MacroUse:
			for _, name := range sortedKeys(n.Slots) {
				Walk(n.Slots[name], fn)
			}
		case *SlotDef:
			Walk(n.Body, fn)
		}
	}
}
