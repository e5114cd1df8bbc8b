package cmd

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ardnew/talc/lang"
)

func TestParseManifest(t *testing.T) {
	src := `
modules = ["strings", "math"]
globals = {
  title  = string
  "tags" = list(string)
  people = list(object({name = string, age = number}))
  extra  = any
}
`

	m, err := ParseManifest([]byte(src), "m.hcl")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if diff := cmp.Diff([]string{"strings", "math"}, m.Modules); diff != "" {
		t.Errorf("modules mismatch (-want +got):\n%s", diff)
	}

	want := map[string]string{
		"title":  "string",
		"tags":   "list(string)",
		"people": "list(object({age=number,name=string}))",
		"extra":  "any",
	}
	if diff := cmp.Diff(want, m.Globals.Descriptors()); diff != "" {
		t.Errorf("globals mismatch (-want +got):\n%s", diff)
	}
}

func TestParseManifest_Empty(t *testing.T) {
	m, err := ParseManifest(nil, "empty.hcl")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}

	if len(m.Modules) != 0 || len(m.Globals) != 0 {
		t.Errorf("expected empty manifest, got %+v", m)
	}
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `globals = {`},
		{"unknown attribute", `templates = []`},
		{"modules not a list", `modules = "strings"`},
		{"module not a string", `modules = [1]`},
		{"globals not a map", `globals = string`},
		{"unknown type", `globals = { a = strin }`},
		{"invalid global name", `globals = { "a-b" = string }`},
		{"duplicate global", `globals = { a = string, a = number }`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.src), "m.hcl")
			if !errors.Is(err, ErrManifest) {
				t.Errorf("expected %v, got %v", ErrManifest, err)
			}
		})
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	tmpl := writeFile(t, dir, "page.html", "x")

	if got := manifestFor(tmpl, ""); got != "" {
		t.Errorf("expected no manifest, got %q", got)
	}

	sibling := writeFile(t, dir, "page.html"+ManifestSuffix, `globals = { a = bool }`)

	if got := manifestFor(tmpl, ""); got != sibling {
		t.Errorf("expected %q, got %q", sibling, got)
	}

	if got := manifestFor(tmpl, "other.hcl"); got != "other.hcl" {
		t.Errorf("expected explicit manifest, got %q", got)
	}

	if got := manifestFor(stdinSource, ""); got != "" {
		t.Errorf("expected no manifest for stdin, got %q", got)
	}

	m, err := LoadManifest(sibling)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if got := lang.TypeString(m.Globals["a"]); got != "bool" {
		t.Errorf("expected bool, got %s", got)
	}

	if _, err := LoadManifest(filepath.Join(dir, "missing.hcl")); !errors.Is(err, ErrManifest) {
		t.Errorf("expected %v, got %v", ErrManifest, err)
	}
}
