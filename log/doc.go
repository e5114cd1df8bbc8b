// Package log is a small structured logging layer over [log/slog].
//
// A [Logger] is a value. Its zero value discards everything, so library
// packages accept a Logger through their options and log unconditionally:
//
//	logger := log.Make(os.Stderr,
//		log.WithLevel(log.LevelDebug),
//		log.WithFormat(log.FormatText))
//
//	logger.Debug("compiled template", slog.String("key", key.String()))
//
// Attributes added with [Logger.With] are included in every message.
//
// # Levels
//
// [LevelTrace] sits below [LevelDebug] and is used for per-lookup cache
// events. Messages below the configured level are discarded.
//
// # Formats
//
// [FormatJSON] and [FormatText] use the slog handlers. With [WithPretty]
// enabled, text output is styled with lipgloss when the output is a
// terminal.
//
// # Default logger
//
// The package-level functions ([Info], [Debug], ...) write to a default
// logger on standard error, reconfigured with [Config].
package log
