package pkg

import (
	"errors"
	"path/filepath"
	"regexp"
	"testing"
)

func TestVersion(t *testing.T) {
	if !regexp.MustCompile(`^\d+\.\d+\.\d+`).MatchString(Version) {
		t.Errorf("expected a semantic version, got %q", Version)
	}
}

func TestPrefixOf(t *testing.T) {
	tests := []struct {
		exe  string
		want string
	}{
		{"/usr/local/bin/talc", "talc"},
		{"/opt/talc.exe", "talc"},
		{"/tmp/.hidden", "hidden"},
		{"/tmp/__debug_bin1234", Name},
		{"/tmp/...", Name},
	}

	for _, tt := range tests {
		t.Run(tt.exe, func(t *testing.T) {
			if got := prefixOf(filepath.FromSlash(tt.exe)); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestUserDir(t *testing.T) {
	dir := userDir(func() (string, error) { return "/base", nil }, ".config")
	if want := filepath.Join("/base", Prefix()); dir != want {
		t.Errorf("expected %q, got %q", want, dir)
	}

	t.Setenv("HOME", "/home/u")

	dir = userDir(func() (string, error) { return "", errors.New("unset") }, ".cache")
	if filepath.Base(filepath.Dir(dir)) != ".cache" {
		t.Errorf("expected fallback under .cache, got %q", dir)
	}
}
