package lang

import (
	"errors"
	"strings"
	"testing"
)

func TestParse_DirectiveOrder(t *testing.T) {
	src := `<div tal:define="a 1" tal:condition="a" tal:repeat="x xs" ` +
		`tal:content="x" tal:attributes="title x" tal:omit-tag="">body</div>`

	prog, err := Parse(t.Context(), src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if len(prog.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(prog.Nodes))
	}

	def, ok := prog.Nodes[0].(*Define)
	if !ok {
		t.Fatalf("expected *Define, got %T", prog.Nodes[0])
	}

	if def.Var != "a" || def.Expr.Source != "1" {
		t.Errorf("unexpected define %q = %q", def.Var, def.Expr.Source)
	}

	cond, ok := def.Body[0].(*Condition)
	if !ok {
		t.Fatalf("expected *Condition, got %T", def.Body[0])
	}

	rep, ok := cond.Body[0].(*Repeat)
	if !ok {
		t.Fatalf("expected *Repeat, got %T", cond.Body[0])
	}

	if rep.Var != "x" || rep.Expr.Source != "xs" {
		t.Errorf("unexpected repeat %q in %q", rep.Var, rep.Expr.Source)
	}

	el, ok := rep.Body[0].(*Element)
	if !ok {
		t.Fatalf("expected *Element, got %T", rep.Body[0])
	}

	if el.Content == nil || el.Content.Expr.Source != "x" {
		t.Errorf("expected content x, got %+v", el.Content)
	}

	if len(el.Sets) != 1 || el.Sets[0].Name != "title" {
		t.Errorf("expected title attribute set, got %+v", el.Sets)
	}

	if !el.Omit {
		t.Error("expected omitted tags")
	}
}

func TestParse_ExpressionLocations(t *testing.T) {
	src := "<p\n  tal:define=\"a 1; b  a + 1\">${b}</p>"

	prog, err := Parse(t.Context(), src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	outer := prog.Nodes[0].(*Define)
	inner := outer.Body[0].(*Define)

	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"first clause", outer.Expr, "2:17"},
		{"second clause", inner.Expr, "2:23"},
		{"interpolation", inner.Body[0].(*Element).Body[0].(*Content).Expr, "2:30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.expr.Loc.String(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParse_LocationsAfterReferences(t *testing.T) {
	prog, err := Parse(t.Context(), `<p tal:define="a 'x&amp;y'; b a + 1" tal:condition="&#32;b">${a}</p>`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	outer := prog.Nodes[0].(*Define)
	inner := outer.Body[0].(*Define)
	cond := inner.Body[0].(*Condition)

	if outer.Expr.Source != "'x&y'" {
		t.Errorf("expected decoded source, got %q", outer.Expr.Source)
	}

	tests := []struct {
		name string
		expr Expr
		want string
	}{
		{"before reference", outer.Expr, "1:18"},
		{"after reference", inner.Expr, "1:31"},
		{"after leading reference", cond.Expr, "1:58"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.expr.Loc.String(); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestParse_ReplaceOnVoidElement(t *testing.T) {
	prog, err := Parse(t.Context(), `<br tal:replace="x"/>`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	el := prog.Nodes[0].(*Element)
	if el.Content == nil || !el.Omit {
		t.Errorf("expected replaced element, got %+v", el)
	}
}

func TestParse_Macros(t *testing.T) {
	src := `<div metal:use-macro="page"><p metal:fill-slot="main">hi</p></div>` +
		`<html metal:define-macro="page"><main metal:define-slot="main"/></html>`

	prog, err := Parse(t.Context(), src)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	use, ok := prog.Nodes[0].(*MacroUse)
	if !ok {
		t.Fatalf("expected *MacroUse, got %T", prog.Nodes[0])
	}

	if use.Name != "page" {
		t.Errorf("expected use of page, got %q", use.Name)
	}

	if _, ok := use.Slots["main"]; !ok {
		t.Errorf("expected fill for slot main, got %v", use.Slots)
	}

	def, ok := prog.Macro("page")
	if !ok {
		t.Fatal("expected macro page")
	}

	if prog.Nodes[1] != Node(def) {
		t.Error("expected macro definition to render in place")
	}
}

func TestParse_StripsNamespaceDeclarations(t *testing.T) {
	prog, err := Parse(t.Context(),
		`<p xmlns:tal="http://xml.zope.org/namespaces/tal" class="c">x</p>`)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	el := prog.Nodes[0].(*Element)
	if len(el.Attrs) != 1 || el.Attrs[0].Name != "class" {
		t.Errorf("expected only class attribute, got %+v", el.Attrs)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want *Error
		at   string
	}{
		{"unterminated interpolation", "Hello ${w!", ErrUnterminated, "1:7"},
		{"unclosed element", "<p>", ErrUnclosedElement, "1:1"},
		{"stray end tag", "</p>", ErrUnmatchedTag, "1:1"},
		{"mismatched end tag", "<p></b>", ErrUnmatchedTag, "1:4"},
		{"unknown directive", `<p tal:bogus="x"></p>`, ErrDirective, "1:4"},
		{"content and replace", `<p tal:content="a" tal:replace="b"></p>`, ErrDirective, "1:20"},
		{"define and use macro", `<p metal:define-macro="a" metal:use-macro="b"></p>`, ErrDirective, "1:27"},
		{"duplicate directive", `<p tal:content="a" tal:content="b"></p>`, ErrDirective, "1:20"},
		{"slot outside macro", `<p metal:define-slot="s"></p>`, ErrMacroNesting, "1:4"},
		{"fill outside use", `<p metal:fill-slot="s"></p>`, ErrMacroNesting, "1:4"},
		{"nested macro", `<p metal:define-macro="a"><i metal:define-macro="b"></i></p>`, ErrMacroNesting, "1:30"},
		{"duplicate macro", `<p metal:define-macro="a"></p><i metal:define-macro="a"></i>`, ErrDirective, "1:34"},
		{"duplicate fill", `<p metal:use-macro="m"><i metal:fill-slot="s"></i><b metal:fill-slot="s"></b></p>`, ErrDirective, "1:54"},
		{"malformed repeat", `<p tal:repeat="x"></p>`, ErrDirective, "1:16"},
		{"empty condition", `<p tal:condition=""></p>`, ErrDirective, "1:4"},
		{"reserved repeat name", `<p tal:define="repeat 1"></p>`, ErrDirective, "1:16"},
		{"expression syntax", "<p>${1 +}</p>", ErrExprSyntax, "1:4"},
		{"unterminated comment", "<!-- x", ErrUnterminated, "1:1"},
		{"content on void element", `<input tal:content="x"/>`, ErrDirective, "1:8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(t.Context(), tt.src, WithFilename("t.html"))
			if err == nil {
				t.Fatal("expected error")
			}

			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T: %v", err, err)
			}

			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}

			if got := pe.Location().String(); got != tt.at {
				t.Errorf("expected location %s, got %s (%v)", tt.at, got, err)
			}

			if !strings.HasPrefix(err.Error(), "parse error at t.html:"+tt.at) {
				t.Errorf("unexpected message %q", err.Error())
			}
		})
	}
}

func TestParseError_WrapsLexError(t *testing.T) {
	_, err := Parse(t.Context(), "Hello ${w!")

	var le *LexError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LexError in chain, got %T", err)
	}

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}

	if pe.Token.Text != "${w!" {
		t.Errorf("expected token text %q, got %q", "${w!", pe.Token.Text)
	}

	want := "  1 | Hello ${w!\n" + strings.Repeat(" ", 12) + "^\n"
	if got := pe.Snippet(); got != want {
		t.Errorf("expected snippet:\n%s\ngot:\n%s", want, got)
	}
}
