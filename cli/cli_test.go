package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ardnew/talc/lang"
	"github.com/ardnew/talc/log"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "talc-cli-*")
	if err != nil {
		panic(err)
	}

	// The user directories are resolved once per process.
	os.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	os.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	os.Setenv("HOME", dir)

	code := m.Run()

	os.RemoveAll(dir)
	os.Exit(code)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	return path
}

// runCLI runs the CLI with args and returns its standard output.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()

	t.Cleanup(func() { log.Config(log.WithDefaults(os.Stderr)) })

	var out bytes.Buffer

	exited := -1
	err := run(t.Context(), func(code int) { exited = code },
		strings.NewReader(stdin), &out,
		append([]string{"--log-level=error"}, args...)...)

	if exited > 0 && err == nil {
		t.Fatalf("exited with %d", exited)
	}

	return out.String(), err
}

func TestRun_Render(t *testing.T) {
	dir := t.TempDir()
	tmpl := writeFile(t, dir, "hello.html", "Hello ${w}!")
	writeFile(t, dir, "hello.html.hcl", "globals = { w = string }\n")

	tests := []struct {
		name string
		args []string
	}{
		{"explicit command", []string{"--cache-backend=memory", "render", tmpl, "-D", "w=world"}},
		{"default command", []string{"--cache-backend=memory", tmpl, "--set", "w=world"}},
		{"fs backend", []string{"--cache-dir", filepath.Join(dir, "fs"), "render", tmpl, "-D", "w=world"}},
		{"sqlite backend", []string{"--cache-backend=sqlite", "--cache-dir", filepath.Join(dir, "db"), "render", tmpl, "-D", "w=world"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runCLI(t, "", tt.args...)
			if err != nil {
				t.Fatalf("run error: %v", err)
			}

			if got != "Hello world!" {
				t.Errorf("expected %q, got %q", "Hello world!", got)
			}
		})
	}
}

func TestRun_LoadOnly(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "store")
	tmpl := writeFile(t, dir, "hello.html", "Hello ${w}!")
	writeFile(t, dir, "hello.html.hcl", "globals = { w = string }\n")

	_, err := runCLI(t, "", "--cache-dir", store, "--cache-mode=load", "render", tmpl, "-D", "w=x")
	if err == nil {
		t.Fatal("expected a load-only miss to fail")
	}

	out, err := runCLI(t, "", "--cache-dir", store, "compile", tmpl)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}

	key, _, _ := strings.Cut(out, "\t")
	if _, err := lang.ParseKey(key); err != nil {
		t.Fatalf("unexpected compile output %q", out)
	}

	keyOut, err := runCLI(t, "", "--cache-mode=load", "key", tmpl)
	if err != nil {
		t.Fatalf("key error: %v", err)
	}

	if strings.TrimSpace(keyOut) != key {
		t.Errorf("expected key %s, got %s", key, keyOut)
	}

	got, err := runCLI(t, "", "--cache-dir", store, "--cache-mode=load", "render", tmpl, "-D", "w=x")
	if err != nil {
		t.Fatalf("render error: %v", err)
	}

	if got != "Hello x!" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestRun_Code(t *testing.T) {
	out, err := runCLI(t, "<p>${1 + 2}</p>", "--cache-backend=memory", "code", "-")
	if err != nil {
		t.Fatalf("code error: %v", err)
	}

	code, err := lang.UnmarshalCode([]byte(out))
	if err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if len(code.Main) == 0 || code.Key == "" {
		t.Errorf("unexpected code %+v", code)
	}
}

func TestRun_Errors(t *testing.T) {
	if _, err := runCLI(t, "", "--cache-backend=nowhere", "render", "-"); err == nil {
		t.Error("expected error for an unknown backend")
	}

	if _, err := runCLI(t, "", "--cache-backend=memory", "--cache-pattern=flat", "render", "-"); err != nil {
		t.Errorf("pattern applies only to the fs backend, got %v", err)
	}

	if _, err := runCLI(t, "", "--cache-pattern=flat", "--cache-dir", t.TempDir(), "render", "-"); err == nil {
		t.Error("expected error for a pattern without {key}")
	}

	if _, err := runCLI(t, "", "--cache-backend=memory", "ls"); err == nil {
		t.Error("expected ls to require a catalog backend")
	}
}
