package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	time, msg, key, source lipgloss.Style
	levels                 map[Level]lipgloss.Style
}

func makeStyles(r *lipgloss.Renderer) styles {
	level := func(color string) lipgloss.Style {
		return r.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
	}

	return styles{
		time:   r.NewStyle().Foreground(lipgloss.Color("8")),
		msg:    r.NewStyle().Foreground(lipgloss.Color("15")),
		key:    r.NewStyle().Foreground(lipgloss.Color("6")),
		source: r.NewStyle().Faint(true),
		levels: map[Level]lipgloss.Style{
			LevelTrace: level("8"),
			LevelDebug: level("4"),
			LevelInfo:  level("2"),
			LevelWarn:  level("3"),
			LevelError: level("1"),
		},
	}
}

// styledHandler writes one line per record, colored when its output is
// a terminal.
type styledHandler struct {
	mu         *sync.Mutex
	w          io.Writer
	opts       slog.HandlerOptions
	formatTime FormatTime
	styles     styles
	attrs      string
	group      string
}

func newStyledHandler(w io.Writer, formatTime FormatTime, opts *slog.HandlerOptions) *styledHandler {
	return &styledHandler{
		mu:         &sync.Mutex{},
		w:          w,
		opts:       *opts,
		formatTime: formatTime,
		styles:     makeStyles(lipgloss.NewRenderer(w)),
	}
}

func (h *styledHandler) Enabled(_ context.Context, level slog.Level) bool {
	threshold := slog.LevelInfo
	if h.opts.Level != nil {
		threshold = h.opts.Level.Level()
	}

	return level >= threshold
}

func (h *styledHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder

	if !r.Time.IsZero() {
		if ts := h.formatTime(r.Time); ts != "" {
			b.WriteString(h.styles.time.Render(ts))
			b.WriteByte(' ')
		}
	}

	b.WriteString(h.level(Level(r.Level)))

	if h.opts.AddSource && r.PC != 0 {
		f, _ := runtime.CallersFrames([]uintptr{r.PC}).Next()
		if f.File != "" {
			b.WriteByte(' ')
			b.WriteString(h.styles.source.Render(fmt.Sprintf("%s:%d", f.File, f.Line)))
		}
	}

	b.WriteByte(' ')
	b.WriteString(h.styles.msg.Render(r.Message))
	b.WriteString(h.attrs)

	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, h.group, a)

		return true
	})

	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := io.WriteString(h.w, b.String())

	return err
}

func (h *styledHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h

	var b strings.Builder

	b.WriteString(h.attrs)

	for _, a := range attrs {
		h.appendAttr(&b, h.group, a)
	}

	c.attrs = b.String()

	return &c
}

func (h *styledHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	c := *h
	c.group = h.group + name + "."

	return &c
}

func (h *styledHandler) level(l Level) string {
	name := strings.ToUpper(l.String())

	style, ok := h.styles.levels[l]
	if !ok {
		style = h.styles.levels[LevelError]
		if l < LevelInfo {
			style = h.styles.levels[LevelDebug]
		}
	}

	return style.Render(fmt.Sprintf("%-5s", name))
}

func (h *styledHandler) appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()

	if a.Equal(slog.Attr{}) {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}

		for _, ga := range a.Value.Group() {
			h.appendAttr(b, prefix, ga)
		}

		return
	}

	b.WriteByte(' ')
	b.WriteString(h.styles.key.Render(prefix + a.Key))
	b.WriteByte('=')
	b.WriteString(formatValue(a.Value))
}

func formatValue(v slog.Value) string {
	s := v.String()
	if v.Kind() == slog.KindString || v.Kind() == slog.KindAny {
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
	}

	return s
}
