package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
)

func TestLogger_ZeroValue(t *testing.T) {
	var l Logger

	l.Info("discarded")
	l.TraceContext(t.Context(), "discarded")

	if l.With(slog.String("a", "b")).Logger != nil {
		t.Error("expected With on the zero value to stay a no-op")
	}

	if l.Level() != DefaultLevel || l.Format() != DefaultFormat {
		t.Errorf("unexpected zero value settings %s %s", l.Level(), l.Format())
	}
}

func TestLogger_Level(t *testing.T) {
	tests := []struct {
		level   Level
		logged  []string
		dropped []string
	}{
		{LevelTrace, []string{"trace", "debug", "error"}, nil},
		{LevelDebug, []string{"debug", "info"}, []string{"trace"}},
		{LevelWarn, []string{"warn", "error"}, []string{"trace", "debug", "info"}},
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			var buf bytes.Buffer

			l := Make(&buf, WithLevel(tt.level), WithFormat(FormatJSON))
			l.Trace("trace")
			l.Debug("debug")
			l.Info("info")
			l.Warn("warn")
			l.Error("error")

			out := buf.String()

			for _, msg := range tt.logged {
				if !strings.Contains(out, `"msg":"`+msg+`"`) {
					t.Errorf("expected %q to be logged", msg)
				}
			}

			for _, msg := range tt.dropped {
				if strings.Contains(out, `"msg":"`+msg+`"`) {
					t.Errorf("expected %q to be dropped", msg)
				}
			}
		})
	}
}

func TestLogger_JSON(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithFormat(FormatJSON), WithLevel(LevelTrace), WithTimeLayout("none"))
	l.With(slog.String("key", "k1")).Trace("cache miss", slog.Bool("hit", false))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if rec["level"] != "TRACE" || rec["key"] != "k1" || rec["hit"] != false {
		t.Errorf("unexpected record %v", rec)
	}

	if _, ok := rec["time"]; ok {
		t.Error("expected no timestamp")
	}
}

func TestLogger_Styled(t *testing.T) {
	var buf bytes.Buffer

	l := Make(&buf, WithPretty(true), WithTimeLayout(""))
	l.With(slog.String("file", "a b.html")).
		WithGroup("render").
		Info("done", slog.Int("bytes", 12))

	// Output to a buffer is not a terminal, so it carries no styling.
	want := `INFO  done file="a b.html" render.bytes=12` + "\n"
	if got := buf.String(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestLogger_Wrap(t *testing.T) {
	var a, b bytes.Buffer

	l := Make(&a, WithLevel(LevelError))
	w := l.Wrap(WithOutput(&b), WithLevel(LevelInfo))

	l.Info("first")
	w.Info("second")

	if a.Len() != 0 {
		t.Errorf("expected nothing logged, got %q", a.String())
	}

	if !strings.Contains(b.String(), "second") {
		t.Errorf("expected wrapped logger output, got %q", b.String())
	}
}

func TestLogger_Caller(t *testing.T) {
	var buf bytes.Buffer

	Make(&buf, WithCaller(true), WithFormat(FormatJSON)).Info("here")

	if !strings.Contains(buf.String(), "log_test.go") {
		t.Errorf("expected caller in %q", buf.String())
	}
}

func TestLogger_Concurrent(t *testing.T) {
	var (
		mu  sync.Mutex
		buf bytes.Buffer
		wg  sync.WaitGroup
	)

	l := Make(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()

		return buf.Write(p)
	}), WithPretty(true))

	for range 8 {
		wg.Go(func() { l.Info("line") })
	}

	wg.Wait()

	if n := strings.Count(buf.String(), "\n"); n != 8 {
		t.Errorf("expected 8 lines, got %d", n)
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"trace", LevelTrace},
		{"TRACE", LevelTrace},
		{"debug", LevelDebug},
		{"Info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"bogus", DefaultLevel},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"json": FormatJSON, " TEXT ": FormatText, "": DefaultFormat} {
		if got := ParseFormat(in); got != want {
			t.Errorf("ParseFormat(%q): expected %s, got %s", in, want, got)
		}
	}
}

func TestConfig_Default(t *testing.T) {
	saved := Default()
	t.Cleanup(func() {
		defaultMu.Lock()
		defaultLog = saved
		defaultMu.Unlock()
	})

	var buf bytes.Buffer

	Config(WithOutput(&buf), WithFormat(FormatJSON), WithLevel(LevelDebug))
	Debug("configured")

	if !strings.Contains(buf.String(), `"msg":"configured"`) {
		t.Errorf("expected default logger output, got %q", buf.String())
	}
}
