package cli

import (
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ardnew/talc/lang"
)

type diagStyles struct {
	title lipgloss.Style
	label lipgloss.Style
	arrow lipgloss.Style
	code  lipgloss.Style
	mark  lipgloss.Style
}

func makeDiagStyles(r *lipgloss.Renderer) diagStyles {
	return diagStyles{
		title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		label: r.NewStyle().Bold(true),
		arrow: r.NewStyle().Foreground(lipgloss.Color("12")),
		code:  r.NewStyle().Faint(true),
		mark:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("11")),
	}
}

type diagnostic struct {
	strings.Builder

	styles diagStyles
}

// Diagnose writes a styled description of err to w if err is a template
// error, and reports whether it did. Colors are used only when w is a
// terminal.
func Diagnose(w io.Writer, err error) bool {
	var (
		parseErr   *lang.ParseError
		compileErr *lang.CompileError
		renderErr  *lang.RenderError
		corruptErr *lang.CorruptionError
	)

	d := diagnostic{styles: makeDiagStyles(lipgloss.NewRenderer(w))}

	switch {
	case errors.As(err, &parseErr):
		d.header("parse error", parseErr.Err)
		d.location(parseErr.Token.Filename, parseErr.Location())

		if parseErr.Token.Text != "" {
			d.field("near", strconv.Quote(parseErr.Token.Text))
		}

		d.block(parseErr.Snippet())

	case errors.As(err, &compileErr):
		d.header("compile error", compileErr.Err)
		d.location(compileErr.Filename, compileErr.Location)

		if compileErr.Expr != "" {
			d.field("expr", compileErr.Expr)
		}

		d.block(compileErr.Excerpt())

	case errors.As(err, &renderErr):
		d.header("render error", renderErr.Err)
		d.location(renderErr.Filename, renderErr.Location)

	case errors.As(err, &corruptErr):
		d.header("cache error", corruptErr.Err)

		if corruptErr.Path != "" {
			d.field("path", corruptErr.Path)
		}

	default:
		return false
	}

	_, werr := io.WriteString(w, d.String())

	return werr == nil
}

// header writes the kind of error and its cause. A lexical error is
// reduced to its cause since the location is written separately.
func (d *diagnostic) header(kind string, err error) {
	var lexErr *lang.LexError
	if errors.As(err, &lexErr) {
		err = lexErr.Err
	}

	d.WriteString(d.styles.title.Render(kind + ":"))
	d.WriteByte(' ')
	d.WriteString(d.styles.label.Render(err.Error()))
	d.WriteByte('\n')
}

func (d *diagnostic) location(filename string, loc lang.Location) {
	if loc.IsZero() {
		return
	}

	pos := loc.String()
	if filename != "" {
		pos = filename + ":" + pos
	}

	d.WriteString(d.styles.arrow.Render("  --> "))
	d.WriteString(pos)
	d.WriteByte('\n')
}

func (d *diagnostic) field(name, value string) {
	d.WriteString("   ")
	d.WriteString(d.styles.arrow.Render(name + ":"))
	d.WriteByte(' ')
	d.WriteString(value)
	d.WriteByte('\n')
}

// block writes source lines. Caret lines and lines marked with "> " are
// highlighted.
func (d *diagnostic) block(text string) {
	if text == "" {
		return
	}

	d.WriteByte('\n')

	for line := range strings.Lines(text) {
		line = strings.TrimSuffix(line, "\n")

		style := d.styles.code
		if strings.HasPrefix(line, "> ") || strings.TrimSpace(line) == "^" {
			style = d.styles.mark
		}

		d.WriteString(style.Render(line))
		d.WriteByte('\n')
	}
}
