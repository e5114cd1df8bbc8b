package cli

import (
	"os"
	"testing"

	"github.com/ardnew/talc/log"
)

func TestLogConfig_Scan(t *testing.T) {
	t.Cleanup(func() { log.Config(log.WithDefaults(os.Stderr)) })

	var f logConfig

	f.scan([]string{
		"render", "--log-level", "debug", "--no-log-pretty",
		"--log-caller=true", "--log-format=json", "page.html",
	})

	if f.Level != "debug" || f.Format != "json" || f.Pretty || !f.Caller {
		t.Errorf("unexpected config %+v", f)
	}

	if got := log.Default().Level(); got != log.LevelDebug {
		t.Errorf("expected level %s, got %s", log.LevelDebug, got)
	}

	if got := log.Default().Format(); got != log.FormatJSON {
		t.Errorf("expected format %s, got %s", log.FormatJSON, got)
	}
}

func TestLogConfig_ScanEdges(t *testing.T) {
	t.Cleanup(func() { log.Config(log.WithDefaults(os.Stderr)) })

	tests := []struct {
		name string
		args []string
		want logConfig
	}{
		{
			name: "negated assignment",
			args: []string{"--no-log-caller=false"},
			want: logConfig{Caller: true},
		},
		{
			name: "invalid boolean ignored",
			args: []string{"--log-pretty=maybe"},
			want: logConfig{},
		},
		{
			name: "missing value",
			args: []string{"--log-level", "--log-caller"},
			want: logConfig{Caller: true},
		},
		{
			name: "time layout",
			args: []string{"--log-time-layout", "none"},
			want: logConfig{TimeLayout: "none"},
		},
		{
			name: "terminator",
			args: []string{"--", "--log-caller"},
			want: logConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f logConfig

			f.scan(tt.args)

			if f != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, f)
			}
		})
	}
}
