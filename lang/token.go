package lang

import "strconv"

// Kind identifies the lexical class of a [Token].
type Kind int

const (
	TokenEOF          Kind = iota // EOF
	TokenText                     // text
	TokenInterp                   // interpolation
	TokenComment                  // comment
	TokenDecl                     // declaration
	TokenTagOpen                  // tag
	TokenAttrName                 // attribute name
	TokenAttrValue                // attribute value
	TokenTagClose                 // '>'
	TokenTagSelfClose             // '/>'
	TokenEndTag                   // end tag
)

var kindName = [...]string{
	TokenEOF:          "EOF",
	TokenText:         "text",
	TokenInterp:       "interpolation",
	TokenComment:      "comment",
	TokenDecl:         "declaration",
	TokenTagOpen:      "tag",
	TokenAttrName:     "attribute name",
	TokenAttrValue:    "attribute value",
	TokenTagClose:     "'>'",
	TokenTagSelfClose: "'/>'",
	TokenEndTag:       "end tag",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindName) {
		return kindName[k]
	}

	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Location is a position in template text.
// Line and Column are 1-based, Column counts runes. Offset is the 0-based
// byte offset.
type Location struct {
	Offset int
	Line   int
	Column int
}

func (l Location) String() string {
	return strconv.Itoa(l.Line) + ":" + strconv.Itoa(l.Column)
}

// IsZero reports whether l was never set.
func (l Location) IsZero() bool { return l.Line == 0 }

// advance returns the location reached after consuming s from l.
func (l Location) advance(s string) Location {
	l.Offset += len(s)

	for _, r := range s {
		if r == '\n' {
			l.Line++
			l.Column = 1
		} else {
			l.Column++
		}
	}

	return l
}

// Token is a lexical unit of template text.
//
// For [TokenTagOpen] and [TokenEndTag], Text is the element name.
// For [TokenInterp], Text is the expression source between "${" and "}".
// For [TokenAttrValue], Text is the raw value without quotes and Quote holds
// the quote character (0 when unquoted).
type Token struct {
	Text     string
	Filename string
	Location
	Kind  Kind
	Quote rune
}

func (t Token) String() string {
	pos := t.Location.String()
	if t.Filename != "" {
		pos = t.Filename + ":" + pos
	}

	return pos + " " + t.Kind.String() + " " + strconv.Quote(t.Text)
}
