package lang

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
)

// Predefined errors (sentinel values).
var (
	ErrUnterminated    = NewError("unterminated construct")
	ErrMalformed       = NewError("malformed markup")
	ErrUnmatchedTag    = NewError("unmatched closing tag")
	ErrUnclosedElement = NewError("unclosed element")
	ErrDirective       = NewError("invalid directive")
	ErrMacroNesting    = NewError("illegal macro nesting")
	ErrExprSyntax      = NewError("invalid expression")
	ErrUndefinedName   = NewError("undefined name")
	ErrInvalidType     = NewError("invalid type descriptor")
	ErrUnknownModule   = NewError("unknown module")
	ErrExprCompile     = NewError("expression compilation failed")
	ErrNotIterable     = NewError("expression is not iterable")
	ErrMissingGlobal   = NewError("missing global")
	ErrGlobalType      = NewError("global value incompatible with declared type")
	ErrUndefinedMacro  = NewError("undefined macro")
	ErrMaxDepth        = NewError("maximum macro depth exceeded")
	ErrExprEvaluate    = NewError("expression evaluation failed")
	ErrCorrupt         = NewError("corrupt artifact")
)

// Error represents an error with optional structured logging attributes.
// It implements both error and slog.LogValuer interfaces.
type Error struct {
	msg   string
	err   error       // Wrapped error (for errors.Unwrap)
	attrs []slog.Attr // Attributes for structured logging
}

// NewError creates a new Error with a message.
func NewError(msg string) *Error {
	return &Error{msg: msg}
}

// WrapError wraps a standard error into an Error.
func WrapError(err error) *Error {
	ee := &Error{}
	if errors.As(err, &ee) {
		return ee
	}

	return &Error{err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	// Build error message using the first available format,
	// depending on which fields are set:
	//
	//   1. "<msg>: <err>" // base and wrapped error both set
	//   2. "<msg>"        // wrapped error is nil
	//   3. "<err>"        // base error message is empty
	//   4. ""             // no fields are set
	part := make([]string, 0, 2)

	if e.msg != "" {
		part = append(part, e.msg)
	}

	if e.err != nil {
		part = append(part, e.err.Error())
	}

	return strings.Join(part, ": ")
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error { return e.err }

// Is reports whether target is the sentinel e was derived from.
// Errors created with [Error.Wrap] or [Error.With] keep the sentinel's
// message, so they match the sentinel itself.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.err != nil || len(t.attrs) > 0 {
		return false
	}

	return t.msg != "" && t.msg == e.msg
}

// LogValue implements slog.LogValuer for rich structured logging.
func (e *Error) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(e.attrs)+2)

	if e.msg != "" {
		attrs = append(attrs, slog.String("error", e.msg))
	}

	if e.err != nil {
		attrs = append(attrs, slog.String("cause", e.err.Error()))
	}

	return slog.GroupValue(append(attrs, e.attrs...)...)
}

// Wrap creates a new Error wrapping another error.
func (e *Error) Wrap(err error) *Error {
	return &Error{
		msg:   e.msg,
		err:   err,
		attrs: e.attrs, // Share attrs
	}
}

// With adds attributes to the error for structured logging.
// This creates a new Error instance to maintain immutability.
func (e *Error) With(attrs ...slog.Attr) *Error {
	newAttrs := make([]slog.Attr, len(e.attrs)+len(attrs))
	copy(newAttrs, e.attrs)
	copy(newAttrs[len(e.attrs):], attrs)

	return &Error{
		msg:   e.msg,
		err:   e.err,
		attrs: newAttrs,
	}
}

// Attrs returns the structured attributes attached to e.
func (e *Error) Attrs() []slog.Attr { return e.attrs }

// LexError reports an unterminated or malformed construct found while
// scanning template text.
type LexError struct {
	Err      error
	Source   string
	Filename string
	Location Location
}

func (e *LexError) Error() string {
	return "lex error at " + position(e.Filename, e.Location) + ": " +
		e.Err.Error()
}

func (e *LexError) Unwrap() error { return e.Err }

// Snippet returns the offending source line with a caret under the column.
func (e *LexError) Snippet() string { return snippet(e.Source, e.Location) }

// LogValue implements slog.LogValuer.
func (e *LexError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("error", e.Err.Error()),
		slog.String("file", e.Filename),
		slog.Int("line", e.Location.Line),
		slog.Int("column", e.Location.Column),
	)
}

// ParseError reports a structural violation in template text.
// Token is the token at the point of the violation.
type ParseError struct {
	Err    error
	Source string
	Token  Token
}

func (e *ParseError) Error() string {
	var b strings.Builder

	b.WriteString("parse error at ")
	b.WriteString(position(e.Token.Filename, e.Token.Location))

	if e.Token.Text != "" {
		b.WriteString(" near ")
		b.WriteString(strconv.Quote(abbreviate(e.Token.Text, 32)))
	}

	b.WriteString(": ")
	b.WriteString(e.Err.Error())

	return b.String()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Location returns the position of the offending token.
func (e *ParseError) Location() Location { return e.Token.Location }

// Snippet returns the offending source line with a caret under the column.
func (e *ParseError) Snippet() string {
	return snippet(e.Source, e.Token.Location)
}

// LogValue implements slog.LogValuer.
func (e *ParseError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("error", e.Err.Error()),
		slog.String("token", e.Token.Text),
		slog.String("file", e.Token.Filename),
		slog.Int("line", e.Token.Line),
		slog.Int("column", e.Token.Column),
	)
}

// CompileError reports generated code rejected while linking it into an
// executable unit. Code holds the complete generated code.
type CompileError struct {
	Err      error
	Code     string
	Expr     string
	Filename string
	Location Location
}

func (e *CompileError) Error() string {
	var b strings.Builder

	b.WriteString("compile error")

	if e.Location.Line > 0 {
		b.WriteString(" at ")
		b.WriteString(position(e.Filename, e.Location))
	}

	if e.Expr != "" {
		b.WriteString(" in ")
		b.WriteString(strconv.Quote(abbreviate(e.Expr, 48)))
	}

	b.WriteString(": ")
	b.WriteString(e.Err.Error())

	return b.String()
}

func (e *CompileError) Unwrap() error { return e.Err }

// Excerpt returns the lines of generated code surrounding the failing
// expression, each prefixed with its line number. The whole code is
// returned when the expression cannot be found.
func (e *CompileError) Excerpt() string {
	const context = 3

	lines := strings.Split(strings.TrimRight(e.Code, "\n"), "\n")
	at := -1

	if e.Expr != "" {
		for i, line := range lines {
			if strings.Contains(line, e.Expr) {
				at = i

				break
			}
		}
	}

	lo, hi := 0, len(lines)
	if at >= 0 {
		lo, hi = max(0, at-context), min(len(lines), at+context+1)
	}

	width := len(strconv.Itoa(hi))

	var b strings.Builder

	for i := lo; i < hi; i++ {
		mark := "  "
		if i == at {
			mark = "> "
		}

		num := strconv.Itoa(i + 1)
		b.WriteString(mark)
		b.WriteString(strings.Repeat(" ", width-len(num)))
		b.WriteString(num)
		b.WriteString(" | ")
		b.WriteString(lines[i])
		b.WriteByte('\n')
	}

	return b.String()
}

// LogValue implements slog.LogValuer.
func (e *CompileError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("error", e.Err.Error()),
		slog.String("expr", e.Expr),
		slog.String("file", e.Filename),
		slog.Int("line", e.Location.Line),
		slog.Int("column", e.Location.Column),
	)
}

// RenderError reports a failure while executing a compiled template.
// Location is the template position of the instruction being executed.
type RenderError struct {
	Err      error
	Filename string
	Location Location
}

func (e *RenderError) Error() string {
	if e.Location.Line == 0 {
		return "render error: " + e.Err.Error()
	}

	return "render error at " + position(e.Filename, e.Location) + ": " +
		e.Err.Error()
}

func (e *RenderError) Unwrap() error { return e.Err }

// LogValue implements slog.LogValuer.
func (e *RenderError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("error", e.Err.Error()),
		slog.String("file", e.Filename),
		slog.Int("line", e.Location.Line),
		slog.Int("column", e.Location.Column),
	)
}

// CorruptionError reports a persisted artifact that could not be loaded.
type CorruptionError struct {
	Err  error
	Path string
}

func (e *CorruptionError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}

	return e.Err.Error() + " (" + e.Path + ")"
}

func (e *CorruptionError) Unwrap() error { return e.Err }

// LogValue implements slog.LogValuer.
func (e *CorruptionError) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("error", e.Err.Error()),
		slog.String("path", e.Path),
	)
}

func position(filename string, loc Location) string {
	if filename == "" {
		return loc.String()
	}

	return filename + ":" + loc.String()
}

func abbreviate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n]) + "…"
}

// snippet formats the source line at loc followed by a marker line
// pointing to the column.
func snippet(source string, loc Location) string {
	lines := strings.Split(source, "\n")
	if loc.Line < 1 || loc.Line > len(lines) {
		return ""
	}

	var src strings.Builder

	line := strings.TrimRight(lines[loc.Line-1], "\r")

	src.WriteString("  ")
	src.WriteString(strconv.Itoa(loc.Line))
	src.WriteString(" | ")
	src.WriteString(line)
	src.WriteRune('\n')

	// +5 accounts for: 2 leading spaces + " | " (3 chars)
	padding := strings.Repeat(" ", len(strconv.Itoa(loc.Line))+5)

	if loc.Column > 0 {
		// Preserve tabs so the caret lines up in terminals.
		for i, r := range []rune(line) {
			if i >= loc.Column-1 {
				break
			}

			if r == '\t' {
				padding += "\t"
			} else {
				padding += " "
			}
		}
	}

	src.WriteString(padding + "^\n")

	return src.String()
}
