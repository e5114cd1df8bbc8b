package lang

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

type lexState int

const (
	stateText lexState = iota
	stateTag
	stateAttr // after an attribute name, before an optional '='
)

// rawTextElements hold content that is never scanned for markup or
// interpolation.
var rawTextElements = map[string]bool{
	"script": true,
	"style":  true,
}

// Lexer scans template text into a sequence of [Token].
//
// A Lexer is not restartable: once a token has been returned it is consumed.
// The first error is sticky and is returned by every subsequent call to
// [Lexer.Next].
type Lexer struct {
	src      string
	filename string
	tag      Token // the open tag being scanned
	err      error
	raw      string // raw-text element whose content is pending
	at       Location
	pos      int
	state    lexState
	textOnly bool
}

// NewLexer returns a Lexer over src. The filename is attached to every token
// and error for diagnostics and may be empty.
func NewLexer(src, filename string) *Lexer {
	return &Lexer{
		src:      src,
		filename: filename,
		at:       Location{Offset: 0, Line: 1, Column: 1},
	}
}

// newTextLexer returns a Lexer that only recognizes text and interpolation,
// with positions starting at loc. It is used to split attribute values.
func newTextLexer(src, filename string, loc Location) *Lexer {
	return &Lexer{
		src:      src,
		filename: filename,
		at:       loc,
		textOnly: true,
	}
}

// All returns an iterator over the remaining tokens. Iteration stops after
// the first error or the EOF token, both of which are yielded.
func (l *Lexer) All() iter.Seq2[Token, error] {
	return func(yield func(Token, error) bool) {
		for {
			tok, err := l.Next()
			if !yield(tok, err) || err != nil || tok.Kind == TokenEOF {
				return
			}
		}
	}
}

// Next returns the next token. At end of input it returns a [TokenEOF]
// token for every call.
func (l *Lexer) Next() (Token, error) {
	if l.err != nil {
		return Token{}, l.err
	}

	tok, err := l.scan()
	if err != nil {
		l.err = err

		return Token{}, err
	}

	return tok, nil
}

func (l *Lexer) scan() (Token, error) {
	switch l.state {
	case stateTag:
		return l.scanTag()
	case stateAttr:
		return l.scanAttrValue()
	}

	if l.eof() {
		return l.token(TokenEOF, "", l.at), nil
	}

	if l.textOnly {
		if l.hasPrefix("${") {
			return l.scanInterp()
		}

		return l.scanText()
	}

	if l.raw != "" {
		return l.scanRaw()
	}

	switch {
	case l.hasPrefix("<!--"):
		return l.scanUntil(TokenComment, "-->", "comment")
	case l.hasPrefix("<![CDATA["):
		return l.scanUntil(TokenDecl, "]]>", "CDATA section")
	case l.hasPrefix("<!"), l.hasPrefix("<?"):
		return l.scanUntil(TokenDecl, ">", "declaration")
	case l.hasPrefix("</") && l.isMarkupStart():
		return l.scanEndTag()
	case l.isTagStart():
		return l.scanTagOpen()
	case l.hasPrefix("${"):
		return l.scanInterp()
	}

	return l.scanText()
}

// scanText consumes literal text up to the next markup construct or
// interpolation. The sequence "$${" produces a literal "${".
func (l *Lexer) scanText() (Token, error) {
	start := l.at

	var text strings.Builder

	for !l.eof() {
		switch {
		case l.hasPrefix("$${"):
			text.WriteString("${")
			l.skip(3)

			continue
		case l.hasPrefix("${"):
			return l.token(TokenText, text.String(), start), nil
		case !l.textOnly && l.peek() == '<' && l.isMarkupStart():
			return l.token(TokenText, text.String(), start), nil
		}

		r, n := utf8.DecodeRuneInString(l.src[l.pos:])
		text.WriteRune(r)
		l.skip(n)
	}

	return l.token(TokenText, text.String(), start), nil
}

// scanInterp consumes "${ expr }". Braces inside the expression must
// balance and quoted strings may contain any character.
func (l *Lexer) scanInterp() (Token, error) {
	start := l.at
	l.skip(2)

	end, ok := exprEnd(l.src, l.pos)
	if !ok {
		return Token{}, l.errorf(start, ErrUnterminated,
			"interpolation %q never closed", "${")
	}

	src := l.src[l.pos:end]
	l.skip(end - l.pos + 1)

	return l.token(TokenInterp, src, start), nil
}

// exprEnd returns the index of the '}' closing an interpolation whose
// expression starts at src[i].
func exprEnd(src string, i int) (int, bool) {
	depth := 0

	for i < len(src) {
		switch c := src[i]; c {
		case '"', '\'', '`':
			j, ok := stringEnd(src, i)
			if !ok {
				return 0, false
			}

			i = j
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i, true
			}

			depth--
		}

		i++
	}

	return 0, false
}

// stringEnd returns the index of the quote terminating the string literal
// that opens at src[i].
func stringEnd(src string, i int) (int, bool) {
	quote := src[i]

	for i++; i < len(src); i++ {
		switch src[i] {
		case '\\':
			if quote != '`' {
				i++
			}
		case quote:
			return i, true
		}
	}

	return 0, false
}

func (l *Lexer) scanUntil(kind Kind, term, what string) (Token, error) {
	start := l.at

	n := strings.Index(l.src[l.pos:], term)
	if n < 0 {
		return Token{}, l.errorf(start, ErrUnterminated, "%s never closed", what)
	}

	text := l.src[l.pos : l.pos+n+len(term)]
	l.skip(len(text))

	return l.token(kind, text, start), nil
}

func (l *Lexer) scanRaw() (Token, error) {
	start := l.at
	closing := "</" + l.raw
	rest := l.src[l.pos:]

	n := indexFold(rest, closing)
	if n < 0 {
		n = len(rest)
	}

	l.raw = ""
	l.skip(n)

	if n == 0 {
		return l.scan()
	}

	return l.token(TokenText, rest[:n], start), nil
}

func (l *Lexer) scanEndTag() (Token, error) {
	start := l.at
	l.skip(2)

	name := l.scanName()
	l.skipSpace()

	if name == "" || l.eof() || l.peek() != '>' {
		return Token{}, l.errorf(start, ErrMalformed, "malformed end tag")
	}

	l.skip(1)

	return l.token(TokenEndTag, name, start), nil
}

func (l *Lexer) scanTagOpen() (Token, error) {
	start := l.at
	l.skip(1)

	l.tag = l.token(TokenTagOpen, l.scanName(), start)
	l.state = stateTag

	return l.tag, nil
}

func (l *Lexer) scanTag() (Token, error) {
	l.skipSpace()

	if l.eof() {
		return Token{}, l.errorf(l.tag.Location, ErrUnterminated,
			"tag <%s> never closed", l.tag.Text)
	}

	start := l.at

	switch {
	case l.hasPrefix("/>"):
		l.skip(2)
		l.state = stateText

		return l.token(TokenTagSelfClose, "/>", start), nil

	case l.peek() == '>':
		l.skip(1)
		l.state = stateText

		if name := strings.ToLower(l.tag.Text); rawTextElements[name] {
			l.raw = name
		}

		return l.token(TokenTagClose, ">", start), nil
	}

	name := l.scanAttrName()
	if name == "" {
		r, _ := utf8.DecodeRuneInString(l.src[l.pos:])

		return Token{}, l.errorf(start, ErrMalformed,
			"unexpected %q in tag <%s>", r, l.tag.Text)
	}

	l.state = stateAttr

	return l.token(TokenAttrName, name, start), nil
}

// scanAttrValue scans the optional "= value" following an attribute name.
// Without '=' the attribute has no value and scanning resumes in the tag.
func (l *Lexer) scanAttrValue() (Token, error) {
	mark, at := l.pos, l.at

	l.skipSpace()

	if l.eof() || l.peek() != '=' {
		l.pos, l.at = mark, at
		l.state = stateTag

		return l.scanTag()
	}

	eq := l.at
	l.skip(1)
	l.skipSpace()
	l.state = stateTag

	if l.eof() {
		return Token{}, l.errorf(l.tag.Location, ErrUnterminated,
			"tag <%s> never closed", l.tag.Text)
	}

	if q := l.peek(); q == '"' || q == '\'' {
		open := l.at
		l.skip(1)

		n := strings.IndexByte(l.src[l.pos:], q)
		if n < 0 {
			return Token{}, l.errorf(open, ErrUnterminated,
				"attribute value never closed")
		}

		start := l.at
		text := l.src[l.pos : l.pos+n]
		l.skip(n + 1)

		tok := l.token(TokenAttrValue, text, start)
		tok.Quote = rune(q)

		return tok, nil
	}

	start := l.at
	end := l.pos

	for end < len(l.src) {
		c := l.src[end]
		if isSpace(rune(c)) || c == '>' || c == '"' || c == '\'' || c == '<' ||
			c == '=' || c == '`' || strings.HasPrefix(l.src[end:], "/>") {
			break
		}

		end++
	}

	if end == l.pos {
		return Token{}, l.errorf(eq, ErrMalformed, "missing attribute value")
	}

	text := l.src[l.pos:end]
	l.skip(len(text))

	return l.token(TokenAttrValue, text, start), nil
}

func (l *Lexer) scanName() string {
	end := l.pos
	for end < len(l.src) {
		r, n := utf8.DecodeRuneInString(l.src[end:])
		if !isNameRune(r) {
			break
		}

		end += n
	}

	name := l.src[l.pos:end]
	l.skip(len(name))

	return name
}

func (l *Lexer) scanAttrName() string {
	end := l.pos
	for end < len(l.src) {
		r, n := utf8.DecodeRuneInString(l.src[end:])
		if isSpace(r) || strings.ContainsRune("\"'<>/=`", r) {
			break
		}

		end += n
	}

	name := l.src[l.pos:end]
	l.skip(len(name))

	return name
}

func (l *Lexer) token(kind Kind, text string, at Location) Token {
	return Token{
		Kind:     kind,
		Text:     text,
		Filename: l.filename,
		Location: at,
	}
}

func (l *Lexer) errorf(
	at Location,
	sentinel *Error,
	format string,
	args ...any,
) error {
	return &LexError{
		Err:      sentinel.Wrap(fmt.Errorf(format, args...)),
		Source:   l.src,
		Filename: l.filename,
		Location: at,
	}
}

func (l *Lexer) eof() bool { return l.pos >= len(l.src) }

func (l *Lexer) peek() byte { return l.src[l.pos] }

func (l *Lexer) hasPrefix(s string) bool {
	return strings.HasPrefix(l.src[l.pos:], s)
}

// skip advances n bytes, tracking line and column.
func (l *Lexer) skip(n int) {
	l.at = l.at.advance(l.src[l.pos : l.pos+n])
	l.pos += n
}

func (l *Lexer) skipSpace() {
	n := 0
	for l.pos+n < len(l.src) && isSpace(rune(l.src[l.pos+n])) {
		n++
	}

	l.skip(n)
}

// isTagStart reports whether a start tag begins at the current position.
func (l *Lexer) isTagStart() bool {
	if !l.hasPrefix("<") || l.pos+1 >= len(l.src) {
		return false
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.pos+1:])

	return unicode.IsLetter(r) || r == '_'
}

// isMarkupStart reports whether the '<' at the current position opens a
// markup construct rather than being literal text.
func (l *Lexer) isMarkupStart() bool {
	switch {
	case l.hasPrefix("<!"), l.hasPrefix("<?"):
		return true
	case l.hasPrefix("</"):
		if l.pos+2 >= len(l.src) {
			return false
		}

		r, _ := utf8.DecodeRuneInString(l.src[l.pos+2:])

		return unicode.IsLetter(r) || r == '_'
	}

	return l.isTagStart()
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) ||
		r == '-' || r == '_' || r == ':' || r == '.'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\f'
}

func indexFold(s, substr string) int {
	n := len(substr)
	for i := 0; i+n <= len(s); i++ {
		if strings.EqualFold(s[i:i+n], substr) {
			return i
		}
	}

	return -1
}
