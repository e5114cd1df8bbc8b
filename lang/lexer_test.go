package lang

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type lexed struct {
	Kind Kind
	Text string
	At   string
}

func lexAll(t *testing.T, src string) ([]lexed, error) {
	t.Helper()

	var out []lexed

	for tok, err := range NewLexer(src, "").All() {
		if err != nil {
			return out, err
		}

		out = append(out, lexed{tok.Kind, tok.Text, tok.Location.String()})
	}

	return out, nil
}

func TestLexer_Tokens(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []lexed
	}{
		{
			name: "element with interpolation",
			src:  `<a href="x">hi ${n}</a>`,
			want: []lexed{
				{TokenTagOpen, "a", "1:1"},
				{TokenAttrName, "href", "1:4"},
				{TokenAttrValue, "x", "1:10"},
				{TokenTagClose, ">", "1:12"},
				{TokenText, "hi ", "1:13"},
				{TokenInterp, "n", "1:16"},
				{TokenEndTag, "a", "1:20"},
				{TokenEOF, "", "1:24"},
			},
		},
		{
			name: "multi-byte text and newlines",
			src:  "aé\n${x}",
			want: []lexed{
				{TokenText, "aé\n", "1:1"},
				{TokenInterp, "x", "2:1"},
				{TokenEOF, "", "2:5"},
			},
		},
		{
			name: "escaped interpolation",
			src:  "a$${b}",
			want: []lexed{
				{TokenText, "a${b}", "1:1"},
				{TokenEOF, "", "1:7"},
			},
		},
		{
			name: "nested braces and strings",
			src:  `${ {"a": "}"}.a }`,
			want: []lexed{
				{TokenInterp, ` {"a": "}"}.a `, "1:1"},
				{TokenEOF, "", "1:18"},
			},
		},
		{
			name: "raw text element",
			src:  `<script>if (a<b) { ${x} }</script>`,
			want: []lexed{
				{TokenTagOpen, "script", "1:1"},
				{TokenTagClose, ">", "1:8"},
				{TokenText, "if (a<b) { ${x} }", "1:9"},
				{TokenEndTag, "script", "1:26"},
				{TokenEOF, "", "1:35"},
			},
		},
		{
			name: "comment declaration and bare attribute",
			src:  `<!DOCTYPE html><!-- c --><input checked/>`,
			want: []lexed{
				{TokenDecl, "<!DOCTYPE html>", "1:1"},
				{TokenComment, "<!-- c -->", "1:16"},
				{TokenTagOpen, "input", "1:26"},
				{TokenAttrName, "checked", "1:33"},
				{TokenTagSelfClose, "/>", "1:40"},
				{TokenEOF, "", "1:42"},
			},
		},
		{
			name: "unquoted value and literal angle bracket",
			src:  `<td width=5>a < b</td>`,
			want: []lexed{
				{TokenTagOpen, "td", "1:1"},
				{TokenAttrName, "width", "1:5"},
				{TokenAttrValue, "5", "1:11"},
				{TokenTagClose, ">", "1:12"},
				{TokenText, "a < b", "1:13"},
				{TokenEndTag, "td", "1:18"},
				{TokenEOF, "", "1:23"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := lexAll(t, tt.src)
			if err != nil {
				t.Fatalf("lex error: %v", err)
			}

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("tokens mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLexer_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want *Error
		at   string
	}{
		{"unterminated interpolation", "Hello ${w!", ErrUnterminated, "1:7"},
		{"unterminated string in interpolation", `${"abc}`, ErrUnterminated, "1:1"},
		{"unterminated comment", "x<!-- y", ErrUnterminated, "1:2"},
		{"unterminated tag", "<p", ErrUnterminated, "1:1"},
		{"unterminated attribute value", `<p class="x>`, ErrUnterminated, "1:10"},
		{"attribute without name", `<p =x>`, ErrMalformed, "1:4"},
		{"malformed end tag", `<p></p`, ErrMalformed, "1:4"},
		{"missing attribute value", `<p a=>`, ErrMalformed, "1:5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := lexAll(t, tt.src)
			if err == nil {
				t.Fatal("expected error")
			}

			var le *LexError
			if !errors.As(err, &le) {
				t.Fatalf("expected *LexError, got %T: %v", err, err)
			}

			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}

			if got := le.Location.String(); got != tt.at {
				t.Errorf("expected location %s, got %s", tt.at, got)
			}
		})
	}
}

func TestLexer_StickyError(t *testing.T) {
	l := NewLexer("${", "t.html")

	_, first := l.Next()
	if first == nil {
		t.Fatal("expected error")
	}

	_, second := l.Next()
	if second != first {
		t.Errorf("expected the same error, got %v", second)
	}
}

func TestLocation_Advance(t *testing.T) {
	start := Location{Line: 1, Column: 1}

	got := start.advance("ab\ncdé")
	want := Location{Offset: 7, Line: 2, Column: 4}

	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
