package lang

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"testing"
)

func generate(t *testing.T, body string, decl map[string]string, modules ...string) *TemplateInfo {
	t.Helper()

	globals, err := ParseGlobals(decl)
	if err != nil {
		t.Fatalf("globals error: %v", err)
	}

	info, err := NewGenerator().Generate(t.Context(), body, globals, modules)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}

	return info
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		decl    map[string]string
		modules []string
		want    *Error
		at      string
		expr    string
	}{
		{
			name: "mismatched operand types",
			body: "x\n${w + 1}",
			decl: map[string]string{"w": "string"},
			want: ErrExprCompile,
			at:   "2:1",
			expr: "w + 1",
		},
		{
			name: "missing object attribute",
			body: "${p.nick}",
			decl: map[string]string{"p": "object({name=string})"},
			want: ErrExprCompile,
			at:   "1:1",
			expr: "p.nick",
		},
		{
			name: "repeat over number",
			body: `<i tal:repeat="x n">${x}</i>`,
			decl: map[string]string{"n": "number"},
			want: ErrNotIterable,
			at:   "1:18",
			expr: "n",
		},
		{
			name: "define type flows into body",
			body: `<i tal:define="s 'a'">${s * 2}</i>`,
			want: ErrExprCompile,
			at:   "1:23",
			expr: "s * 2",
		},
		{
			name:    "unknown module",
			body:    "${mth.Pi}",
			modules: []string{"mth"},
			want:    ErrUnknownModule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := generate(t, tt.body, tt.decl, tt.modules...)

			_, err := NewCompiler().Compile(t.Context(), info)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}

			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CompileError, got %T", err)
			}

			if ce.Code != string(info.Generated) {
				t.Error("expected the generated code in the error")
			}

			if ce.Expr != tt.expr {
				t.Errorf("expected expression %q, got %q", tt.expr, ce.Expr)
			}

			if tt.at != "" && ce.Location.String() != tt.at {
				t.Errorf("expected location %s, got %s", tt.at, ce.Location)
			}
		})
	}
}

func TestCompileError_Excerpt(t *testing.T) {
	info := generate(t, "${w + 1}", map[string]string{"w": "string"})

	_, err := NewCompiler().Compile(t.Context(), info)

	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CompileError, got %v", err)
	}

	excerpt := ce.Excerpt()

	var marked string

	for line := range strings.Lines(excerpt) {
		if strings.HasPrefix(line, "> ") {
			marked = line
		}
	}

	if !strings.Contains(marked, "w + 1") {
		t.Errorf("expected marked line with expression, got:\n%s", excerpt)
	}
}

func TestCompile_CustomModule(t *testing.T) {
	reg := NewRegistry()

	err := reg.Register("greet", Module{
		"Hi": func(s string) string { return "hi, " + s },
	})
	if err != nil {
		t.Fatalf("register error: %v", err)
	}

	if err := reg.Register("not-an-id", Module{}); err == nil {
		t.Error("expected error for invalid module id")
	}

	ct := compileTemplate(t, "${greet.Hi(n)}", map[string]string{"n": "string"},
		[]string{"greet"}, WithRegistry(reg))

	got, err := ct.Execute(t.Context(), map[string]any{"n": "Ann"})
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if got != "hi, Ann" {
		t.Errorf("expected %q, got %q", "hi, Ann", got)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	ct := compileTemplate(t, `<li tal:repeat="x xs">${x}</li>`,
		map[string]string{"xs": "list(string)"}, nil)

	loaded, err := NewCompiler().Load(t.Context(), ct.Artifact())
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if loaded.Key() != ct.Key() {
		t.Errorf("expected key %s, got %s", ct.Key(), loaded.Key())
	}

	if !loaded.Created().Equal(ct.Created()) {
		t.Errorf("expected created %v, got %v", ct.Created(), loaded.Created())
	}

	if !bytes.Equal(loaded.Artifact(), ct.Artifact()) {
		t.Error("expected identical artifacts")
	}

	values := map[string]any{"xs": []string{"a", "b"}}

	want, err := ct.Execute(t.Context(), values)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	got, err := loaded.Execute(t.Context(), values)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestLoad_Corrupt(t *testing.T) {
	ct := compileTemplate(t, "Hello ${w}!", map[string]string{"w": "string"}, nil)
	artifact := ct.Artifact()
	header, _, _ := bytes.Cut(artifact, []byte{'\n'})

	flipped := bytes.Clone(artifact)
	flipped[len(flipped)-2] ^= 0x20

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"truncated header", artifact[:10]},
		{"header only", append(bytes.Clone(header), '\n')},
		{"flipped byte", flipped},
		{"wrong magic", bytes.Replace(artifact, []byte(artifactMagic), []byte("xxxx"), 1)},
		{"wrong version", bytes.Replace(artifact,
			[]byte(artifactMagic+" "+strconv.Itoa(codeVersion)+" "), []byte(artifactMagic+" 9 "), 1)},
		{"not yaml", []byte("garbage")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCompiler().Load(t.Context(), tt.data)
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("expected %v, got %v", ErrCorrupt, err)
			}

			var ce *CorruptionError
			if !errors.As(err, &ce) {
				t.Errorf("expected *CorruptionError, got %T", err)
			}
		})
	}
}

func TestLoad_UnknownModule(t *testing.T) {
	ct := compileTemplate(t, "${strings.ToUpper(w)}",
		map[string]string{"w": "string"}, []string{"strings"})

	reg := NewRegistry()
	empty := &Registry{}

	if _, err := NewCompiler(WithRegistry(reg)).Load(t.Context(), ct.Artifact()); err != nil {
		t.Fatalf("load error: %v", err)
	}

	_, err := NewCompiler(WithRegistry(empty)).Load(t.Context(), ct.Artifact())
	if !errors.Is(err, ErrCorrupt) || !errors.Is(err, ErrUnknownModule) {
		t.Errorf("expected corrupt artifact with unknown module, got %v", err)
	}
}

func TestCompile_NoCode(t *testing.T) {
	var ce *CompileError
	if _, err := NewCompiler().Compile(t.Context(), nil); !errors.As(err, &ce) {
		t.Errorf("expected *CompileError, got %v", err)
	}
}
