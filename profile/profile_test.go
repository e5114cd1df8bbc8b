package profile

import (
	"slices"
	"testing"
)

func TestConfig_Start(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no mode", Config{}},
		{"unknown mode", Config{Mode: "bogus", Dir: t.TempDir(), Quiet: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.cfg.Start()
			if _, ok := s.(ignore); !ok {
				t.Errorf("expected no-op stopper, got %T", s)
			}

			s.Stop()
		})
	}
}

func TestModes(t *testing.T) {
	modes := Modes()

	if !Enabled {
		if len(modes) != 0 {
			t.Errorf("expected no modes without profiling, got %v", modes)
		}

		return
	}

	if !slices.IsSorted(modes) || !slices.Contains(modes, "cpu") {
		t.Errorf("unexpected modes %v", modes)
	}
}
