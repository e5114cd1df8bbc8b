package cmd

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseValues(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want map[string]any
	}{
		{"yaml", "w: world\nok: true\n", map[string]any{"w": "world", "ok": true}},
		{"json", `{"w": "world", "xs": ["a", "b"]}`, map[string]any{"w": "world", "xs": []any{"a", "b"}}},
		{"empty", "", map[string]any{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseValues([]byte(tt.src), "v.yaml")
			if err != nil {
				t.Fatalf("parse error: %v", err)
			}

			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := ParseValues([]byte("- a\n- b\n"), "v.yaml"); !errors.Is(err, ErrValues) {
		t.Errorf("expected %v for a sequence, got %v", ErrValues, err)
	}
}

func TestLoadValues(t *testing.T) {
	got, err := LoadValues("", nil)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no values, got %v, %v", got, err)
	}

	got, err = LoadValues(stdinSource, strings.NewReader("w: stdin"))
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	if got["w"] != "stdin" {
		t.Errorf("expected value from stdin, got %v", got)
	}
}

func TestApplySets(t *testing.T) {
	values := map[string]any{"w": "world", "keep": 1}

	err := applySets(values, map[string]string{
		"w":    "there",
		"ok":   "true",
		"tags": "[a, b]",
	})
	if err != nil {
		t.Fatalf("set error: %v", err)
	}

	want := map[string]any{
		"w":    "there",
		"keep": 1,
		"ok":   true,
		"tags": []any{"a", "b"},
	}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if err := applySets(values, map[string]string{"bad": "[a"}); !errors.Is(err, ErrValues) {
		t.Errorf("expected %v, got %v", ErrValues, err)
	}
}
