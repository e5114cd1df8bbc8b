package lang

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/expr-lang/expr/ast"
	exprparser "github.com/expr-lang/expr/parser"
)

const (
	talPrefix   = "tal:"
	metalPrefix = "metal:"
)

// voidElements never have an end tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// directiveNames lists every recognized directive attribute.
var directiveNames = map[string]bool{
	"tal:define":         true,
	"tal:condition":      true,
	"tal:repeat":         true,
	"tal:content":        true,
	"tal:replace":        true,
	"tal:attributes":     true,
	"tal:omit-tag":       true,
	"metal:define-macro": true,
	"metal:use-macro":    true,
	"metal:define-slot":  true,
	"metal:fill-slot":    true,
}

// Parse parses template text into a [Program].
//
// Errors are returned as [*ParseError]. When scanning fails the
// [*ParseError] wraps the underlying [*LexError].
func Parse(ctx context.Context, src string, opts ...Option) (*Program, error) {
	cfg := makeConfig(opts...)

	p := &parser{
		lex:      NewLexer(src, cfg.filename),
		src:      src,
		filename: cfg.filename,
		prog:     &Program{Filename: cfg.filename, Source: src},
		macros:   make(map[string]Token),
	}

	nodes, err := p.parseNodes(nil)
	if err != nil {
		return nil, err
	}

	p.prog.Nodes = nodes

	cfg.logger.TraceContext(ctx, "parse complete",
		slog.String("file", cfg.filename),
		slog.Int("nodes", len(nodes)),
		slog.Int("macros", len(p.prog.Macros)))

	return p.prog, nil
}

// parser holds the parser state.
type parser struct {
	lex      *Lexer
	src      string
	filename string
	prog     *Program
	macros   map[string]Token
	fills    map[string][]Node // slot fills of the innermost use-macro
	fillTok  map[string]Token
	tok      Token
	peeked   bool
	inMacro  bool
}

type attr struct {
	name  Token
	value *Token
}

// directives holds the directive attributes of one element.
type directives map[string]attr

func (d directives) has(name string) bool {
	_, ok := d[name]

	return ok
}

func (p *parser) next() (Token, error) {
	if p.peeked {
		p.peeked = false

		return p.tok, nil
	}

	tok, err := p.lex.Next()
	if err != nil {
		return Token{}, p.lexError(err)
	}

	return tok, nil
}

func (p *parser) peek() (Token, error) {
	if !p.peeked {
		tok, err := p.lex.Next()
		if err != nil {
			return Token{}, p.lexError(err)
		}

		p.tok, p.peeked = tok, true
	}

	return p.tok, nil
}

// parseNodes parses content until the end tag matching open, or until EOF
// when open is nil.
func (p *parser) parseNodes(open *Token) ([]Node, error) {
	var nodes []Node

	for {
		tok, err := p.next()
		if err != nil {
			return nil, err
		}

		switch tok.Kind {
		case TokenEOF:
			if open != nil {
				return nil, p.errorf(*open, ErrUnclosedElement,
					"<%s> has no matching </%s>", open.Text, open.Text)
			}

			return nodes, nil

		case TokenText, TokenComment, TokenDecl:
			nodes = append(nodes, &Literal{Text: tok.Text, Loc: tok.Location})

		case TokenInterp:
			e, err := p.expr(tok, tok.Text, tok.Location)
			if err != nil {
				return nil, err
			}

			nodes = append(nodes, &Content{Expr: e, Inline: true})

		case TokenTagOpen:
			node, err := p.parseElement(tok)
			if err != nil {
				return nil, err
			}

			if node != nil {
				nodes = append(nodes, node)
			}

		case TokenEndTag:
			if open == nil {
				return nil, p.errorf(tok, ErrUnmatchedTag,
					"</%s> closes nothing", tok.Text)
			}

			if !strings.EqualFold(tok.Text, open.Text) {
				return nil, p.errorf(tok, ErrUnmatchedTag,
					"</%s> does not close <%s> opened at %s",
					tok.Text, open.Text, open.Location)
			}

			return nodes, nil

		default:
			return nil, p.errorf(tok, ErrMalformed, "unexpected %s", tok.Kind)
		}
	}
}

// parseAttrs consumes the attributes of a start tag through its closing
// '>' or '/>'.
func (p *parser) parseAttrs() (attrs []attr, selfClose bool, err error) {
	for {
		tok, err := p.next()
		if err != nil {
			return nil, false, err
		}

		switch tok.Kind {
		case TokenTagClose:
			return attrs, false, nil

		case TokenTagSelfClose:
			return attrs, true, nil

		case TokenAttrName:
			a := attr{name: tok}

			next, err := p.peek()
			if err != nil {
				return nil, false, err
			}

			if next.Kind == TokenAttrValue {
				p.peeked = false
				a.value = &next
			}

			attrs = append(attrs, a)

		default:
			return nil, false, p.errorf(tok, ErrMalformed, "unexpected %s in tag",
				tok.Kind)
		}
	}
}

func (p *parser) parseElement(open Token) (Node, error) {
	attrs, selfClose, err := p.parseAttrs()
	if err != nil {
		return nil, err
	}

	el := &Element{
		Tag:       open.Text,
		Loc:       open.Location,
		SelfClose: selfClose,
		Void:      voidElements[strings.ToLower(open.Text)],
	}

	dirs := make(directives)

	for _, a := range attrs {
		name := strings.ToLower(a.name.Text)

		switch {
		case name == "xmlns:tal", name == "xmlns:metal":
			continue

		case strings.HasPrefix(name, talPrefix), strings.HasPrefix(name, metalPrefix):
			if !directiveNames[name] {
				return nil, p.errorf(a.name, ErrDirective, "unknown attribute %s",
					a.name.Text)
			}

			if dirs.has(name) {
				return nil, p.errorf(a.name, ErrDirective, "duplicate attribute %s",
					a.name.Text)
			}

			dirs[name] = a

		default:
			sa, err := p.staticAttr(a)
			if err != nil {
				return nil, err
			}

			el.Attrs = append(el.Attrs, sa)
		}
	}

	if err := p.validate(open, dirs); err != nil {
		return nil, err
	}

	tag := strings.ToLower(open.Text)
	if strings.HasPrefix(tag, talPrefix) || strings.HasPrefix(tag, metalPrefix) {
		el.Omit = true
	}

	// Macro state applies to the children, so it is set up before they are
	// parsed and restored afterwards.
	restore := p.enterMacroScope(dirs)

	if !selfClose && !el.Void {
		el.Body, err = p.parseNodes(&open)
		if err != nil {
			return nil, err
		}
	}

	fills := p.fills
	restore()

	var core Node = el

	if a, ok := dirs["metal:use-macro"]; ok {
		name, err := p.name(a)
		if err != nil {
			return nil, err
		}

		core = &MacroUse{Name: name, Slots: fills, Loc: open.Location}
	} else if err := p.applyTAL(el, dirs); err != nil {
		return nil, err
	}

	node, err := p.wrapTAL(core, dirs, open.Location)
	if err != nil {
		return nil, err
	}

	return p.wrapMETAL(node, dirs, open.Location)
}

// validate rejects illegal directive combinations on a single element.
func (p *parser) validate(open Token, dirs directives) error {
	exclusive := [][2]string{
		{"tal:content", "tal:replace"},
		{"metal:define-macro", "metal:use-macro"},
		{"metal:use-macro", "tal:content"},
		{"metal:use-macro", "tal:replace"},
		{"metal:use-macro", "tal:attributes"},
		{"metal:define-slot", "metal:fill-slot"},
	}

	for _, pair := range exclusive {
		if dirs.has(pair[0]) && dirs.has(pair[1]) {
			return p.errorf(dirs[pair[1]].name, ErrDirective,
				"%s cannot be combined with %s on <%s>", pair[1], pair[0], open.Text)
		}
	}

	if a, ok := dirs["tal:content"]; ok && voidElements[strings.ToLower(open.Text)] {
		return p.errorf(a.name, ErrDirective,
			"tal:content on void element <%s>, which has no content", open.Text)
	}

	if a, ok := dirs["metal:define-macro"]; ok && p.inMacro {
		return p.errorf(a.name, ErrMacroNesting,
			"metal:define-macro inside another macro definition")
	}

	if a, ok := dirs["metal:define-macro"]; ok && p.fills != nil {
		return p.errorf(a.name, ErrMacroNesting,
			"metal:define-macro inside metal:use-macro")
	}

	if a, ok := dirs["metal:define-slot"]; ok && !p.inMacro {
		return p.errorf(a.name, ErrMacroNesting,
			"metal:define-slot outside metal:define-macro")
	}

	if a, ok := dirs["metal:fill-slot"]; ok && p.fills == nil {
		return p.errorf(a.name, ErrMacroNesting,
			"metal:fill-slot outside metal:use-macro")
	}

	return nil
}

// enterMacroScope updates macro nesting state for the children of an
// element and returns a function restoring the previous state.
func (p *parser) enterMacroScope(dirs directives) (restore func()) {
	inMacro, fills, fillTok := p.inMacro, p.fills, p.fillTok

	if dirs.has("metal:define-macro") {
		p.inMacro = true
	}

	if dirs.has("metal:use-macro") {
		p.fills = make(map[string][]Node)
		p.fillTok = make(map[string]Token)
	}

	return func() {
		p.inMacro, p.fills, p.fillTok = inMacro, fills, fillTok
	}
}

// applyTAL sets the element-level directives: content, replace,
// attributes, and omit-tag.
func (p *parser) applyTAL(el *Element, dirs directives) error {
	for _, name := range []string{"tal:content", "tal:replace"} {
		a, ok := dirs[name]
		if !ok {
			continue
		}

		c, err := p.content(a)
		if err != nil {
			return err
		}

		el.Content = c

		if name == "tal:replace" {
			el.Omit = true
		}
	}

	if a, ok := dirs["tal:attributes"]; ok {
		for _, cl := range p.clauses(a) {
			name, src, ok := splitWord(cl.text)
			if !ok || !isAttrName(name) {
				return p.errorf(p.valueToken(a), ErrDirective,
					"malformed tal:attributes clause %q, want \"name expression\"",
					cl.text)
			}

			e, err := p.expr(p.valueToken(a), src, p.locAt(a, cl.off+len(cl.text)-len(src)))
			if err != nil {
				return err
			}

			el.Sets = append(el.Sets, &AttributeSet{Name: name, Expr: e})
		}
	}

	if a, ok := dirs["tal:omit-tag"]; ok {
		src, off := p.trimmed(a)
		if src == "" {
			el.Omit = true
		} else {
			e, err := p.expr(p.valueToken(a), src, p.locAt(a, off))
			if err != nil {
				return err
			}

			el.OmitIf = &e
		}
	}

	return nil
}

// wrapTAL wraps node in the control directives of its element. The
// outermost is applied first: define, then condition, then repeat.
func (p *parser) wrapTAL(node Node, dirs directives, loc Location) (Node, error) {
	if a, ok := dirs["tal:repeat"]; ok {
		cls := p.clauses(a)
		if len(cls) != 1 {
			return nil, p.errorf(p.valueToken(a), ErrDirective,
				"malformed tal:repeat, want \"name expression\"")
		}

		v, e, err := p.binding(a, cls[0], "tal:repeat")
		if err != nil {
			return nil, err
		}

		node = &Repeat{Var: v, Expr: e, Body: []Node{node}, Loc: loc}
	}

	if a, ok := dirs["tal:condition"]; ok {
		src, off := p.trimmed(a)
		if src == "" {
			return nil, p.errorf(a.name, ErrDirective,
				"tal:condition requires an expression")
		}

		e, err := p.expr(p.valueToken(a), src, p.locAt(a, off))
		if err != nil {
			return nil, err
		}

		node = &Condition{Expr: e, Body: []Node{node}, Loc: loc}
	}

	if a, ok := dirs["tal:define"]; ok {
		cls := p.clauses(a)
		if len(cls) == 0 {
			return nil, p.errorf(a.name, ErrDirective,
				"tal:define requires at least one definition")
		}

		for i := len(cls) - 1; i >= 0; i-- {
			v, e, err := p.binding(a, cls[i], "tal:define")
			if err != nil {
				return nil, err
			}

			node = &Define{Var: v, Expr: e, Body: []Node{node}, Loc: loc}
		}
	}

	return node, nil
}

// wrapMETAL applies slot and macro definitions, which enclose every TAL
// directive of the element.
func (p *parser) wrapMETAL(node Node, dirs directives, loc Location) (Node, error) {
	if a, ok := dirs["metal:define-slot"]; ok {
		name, err := p.name(a)
		if err != nil {
			return nil, err
		}

		node = &SlotDef{Name: name, Body: []Node{node}, Loc: loc}
	}

	if a, ok := dirs["metal:fill-slot"]; ok {
		name, err := p.name(a)
		if err != nil {
			return nil, err
		}

		if prev, dup := p.fillTok[name]; dup {
			return nil, p.errorf(a.name, ErrDirective,
				"slot %q already filled at %s", name, prev.Location)
		}

		p.fills[name] = []Node{node}
		p.fillTok[name] = a.name
	}

	if a, ok := dirs["metal:define-macro"]; ok {
		name, err := p.name(a)
		if err != nil {
			return nil, err
		}

		if prev, dup := p.macros[name]; dup {
			return nil, p.errorf(a.name, ErrDirective,
				"macro %q already defined at %s", name, prev.Location)
		}

		def := &MacroDef{Name: name, Body: []Node{node}, Loc: loc}
		p.macros[name] = a.name
		p.prog.Macros = append(p.prog.Macros, def)
		node = def
	}

	return node, nil
}

func (p *parser) staticAttr(a attr) (*Attribute, error) {
	sa := &Attribute{Name: a.name.Text, Loc: a.name.Location}

	if a.value == nil {
		sa.Bare = true

		return sa, nil
	}

	sa.Quote = a.value.Quote

	lex := newTextLexer(a.value.Text, p.filename, a.value.Location)

	for tok, err := range lex.All() {
		if err != nil {
			return nil, p.lexError(err)
		}

		switch tok.Kind {
		case TokenText:
			if tok.Text != "" {
				sa.Value = append(sa.Value, &Literal{Text: tok.Text, Loc: tok.Location})
			}
		case TokenInterp:
			e, err := p.expr(tok, tok.Text, tok.Location)
			if err != nil {
				return nil, err
			}

			sa.Value = append(sa.Value, &Content{Expr: e, Inline: true})
		}
	}

	return sa, nil
}

func (p *parser) content(a attr) (*Content, error) {
	src := strings.TrimSpace(p.value(a))
	c := &Content{}

	for _, kw := range []string{"structure", "text"} {
		if rest, ok := strings.CutPrefix(src, kw); ok && rest != "" &&
			isSpace(rune(rest[0])) {
			c.Structure = kw == "structure"
			src = strings.TrimSpace(rest)

			break
		}
	}

	if src == "" {
		return nil, p.errorf(a.name, ErrDirective, "%s requires an expression",
			a.name.Text)
	}

	loc := p.valueLoc(a)
	if i := strings.Index(p.value(a), src); i >= 0 {
		loc = p.locAt(a, i)
	}

	e, err := p.expr(p.valueToken(a), src, loc)
	if err != nil {
		return nil, err
	}

	c.Expr = e

	return c, nil
}

// binding parses a "name expression" clause.
func (p *parser) binding(a attr, cl clause, what string) (string, Expr, error) {
	name, src, ok := splitWord(cl.text)
	if !ok || !isIdent(name) {
		return "", Expr{}, p.errorf(p.valueToken(a), ErrDirective,
			"malformed %s clause %q, want \"name expression\"", what, cl.text)
	}

	if name == "repeat" {
		return "", Expr{}, p.errorf(p.valueToken(a), ErrDirective,
			"%s cannot rebind the reserved name \"repeat\"", what)
	}

	e, err := p.expr(p.valueToken(a), src,
		p.locAt(a, cl.off+len(cl.text)-len(src)))
	if err != nil {
		return "", Expr{}, err
	}

	return name, e, nil
}

func (p *parser) name(a attr) (string, error) {
	name := strings.TrimSpace(p.value(a))
	if name == "" {
		return "", p.errorf(a.name, ErrDirective, "%s requires a name", a.name.Text)
	}

	return name, nil
}

// expr checks the syntax of an expression and returns it with its
// position.
func (p *parser) expr(at Token, src string, loc Location) (Expr, error) {
	if strings.TrimSpace(src) == "" {
		return Expr{}, p.errorf(at, ErrExprSyntax, "empty expression")
	}

	tree, err := exprparser.Parse(src)
	if err != nil {
		return Expr{}, p.errorf(Token{
			Kind:     at.Kind,
			Text:     src,
			Filename: p.filename,
			Location: loc,
		}, ErrExprSyntax, "%s", firstLine(err.Error()))
	}

	return Expr{Source: src, Loc: loc, tree: tree.Node}, nil
}

// clause is one ';'-separated part of a directive value. off is the
// offset of text in the decoded value.
type clause struct {
	text string
	off  int
}

// clauses splits a directive value on semicolons that are not nested in
// quotes or brackets. Empty clauses are dropped.
func (p *parser) clauses(a attr) []clause {
	value := p.value(a)

	var (
		out   []clause
		depth int
		start int
	)

	emit := func(end int) {
		part := value[start:end]
		trimmed := strings.TrimSpace(part)

		if trimmed != "" {
			lead := len(part) - len(strings.TrimLeftFunc(part, unicode.IsSpace))
			out = append(out, clause{text: trimmed, off: start + lead})
		}
	}

	for i := 0; i < len(value); i++ {
		switch c := value[i]; c {
		case '"', '\'', '`':
			if j, ok := stringEnd(value, i); ok {
				i = j
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ';':
			if depth == 0 {
				emit(i)
				start = i + 1
			}
		}
	}

	emit(len(value))

	return out
}

// value returns the directive value with character references decoded.
func (p *parser) value(a attr) string {
	return p.decode(a).text
}

// trimmed returns the decoded directive value without surrounding space,
// and the offset where it starts.
func (p *parser) trimmed(a attr) (string, int) {
	value := p.value(a)
	rest := strings.TrimLeftFunc(value, unicode.IsSpace)

	return strings.TrimRightFunc(rest, unicode.IsSpace), len(value) - len(rest)
}

func (p *parser) decode(a attr) attrText {
	if a.value == nil {
		return attrText{offs: []int{0}}
	}

	return decodeAttr(a.value.Text)
}

// locAt returns the location of the byte at offset off of the decoded
// directive value, measured over the raw value in the source.
func (p *parser) locAt(a attr, off int) Location {
	if a.value == nil {
		return a.name.Location
	}

	d := p.decode(a)
	off = min(max(off, 0), len(d.offs)-1)

	return a.value.Location.advance(d.raw[:d.offs[off]])
}

// attrText is an attribute value with character references decoded.
// offs holds the raw offset of each decoded byte, followed by len(raw).
type attrText struct {
	text string
	raw  string
	offs []int
}

// decodeAttr decodes the character references of raw. Each reference is
// decoded on its own, which matches [html.UnescapeString] on the whole
// value since a reference never spans an ampersand.
func decodeAttr(raw string) attrText {
	var b strings.Builder

	offs := make([]int, 0, len(raw)+1)

	for start := 0; start < len(raw); {
		end := len(raw)
		if i := strings.IndexByte(raw[start+1:], '&'); i >= 0 {
			end = start + 1 + i
		}

		seg := raw[start:end]

		dec := seg
		if seg[0] == '&' {
			dec = html.UnescapeString(seg)
		}

		// The text after a reference is copied verbatim. Bytes produced
		// by the reference itself map to its ampersand.
		tail := commonSuffix(seg, dec)
		for j := range len(dec) {
			if j < len(dec)-tail {
				offs = append(offs, start)
			} else {
				offs = append(offs, start+len(seg)-len(dec)+j)
			}
		}

		b.WriteString(dec)

		start = end
	}

	offs = append(offs, len(raw))

	return attrText{text: b.String(), raw: raw, offs: offs}
}

func commonSuffix(a, b string) int {
	n := 0
	for n < len(a) && n < len(b) && a[len(a)-1-n] == b[len(b)-1-n] {
		n++
	}

	return n
}

func (p *parser) valueLoc(a attr) Location {
	if a.value == nil {
		return a.name.Location
	}

	return a.value.Location
}

func (p *parser) valueToken(a attr) Token {
	if a.value == nil {
		return a.name
	}

	return *a.value
}

func (p *parser) errorf(
	at Token,
	sentinel *Error,
	format string,
	args ...any,
) error {
	if at.Filename == "" {
		at.Filename = p.filename
	}

	return &ParseError{
		Err:    sentinel.Wrap(fmt.Errorf(format, args...)),
		Source: p.src,
		Token:  at,
	}
}

// lexError converts a scanning failure into a [*ParseError] positioned at
// the offending construct.
func (p *parser) lexError(err error) error {
	var le *LexError
	if !errors.As(err, &le) {
		return err
	}

	le.Source = p.src

	return &ParseError{
		Err:    le,
		Source: p.src,
		Token: Token{
			Text:     textAt(p.src, le.Location.Offset),
			Filename: le.Filename,
			Location: le.Location,
		},
	}
}

// textAt returns a short excerpt of src starting at offset, ending at the
// first line break.
func textAt(src string, offset int) string {
	const limit = 16

	if offset < 0 || offset >= len(src) {
		return ""
	}

	rest := src[offset:]
	if i := strings.IndexAny(rest, "\r\n"); i >= 0 {
		rest = rest[:i]
	}

	n := 0
	for i := range rest {
		if n == limit {
			return rest[:i]
		}

		n++
	}

	return rest
}

// splitWord splits s into its first whitespace-delimited word and the
// trimmed remainder. Both must be non-empty.
func splitWord(s string) (word, rest string, ok bool) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i <= 0 {
		return "", "", false
	}

	word, rest = s[:i], strings.TrimSpace(s[i:])

	return word, rest, rest != ""
}

func isIdent(s string) bool {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}

		return false
	}

	return s != ""
}

func isAttrName(s string) bool {
	if s == "" {
		return false
	}

	r, _ := utf8.DecodeRuneInString(s)
	if !unicode.IsLetter(r) && r != '_' && r != ':' {
		return false
	}

	for _, r := range s {
		if !isNameRune(r) {
			return false
		}
	}

	return true
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}

	return s
}

// exprTree returns the parsed form of e, parsing it again when e was not
// produced by the parser.
func exprTree(e Expr) (ast.Node, error) {
	if e.tree != nil {
		return e.tree, nil
	}

	tree, err := exprparser.Parse(e.Source)
	if err != nil {
		return nil, err
	}

	return tree.Node, nil
}
