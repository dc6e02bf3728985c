package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/config"
)

// ServiceName is attached to every log entry as the "service" field.
const ServiceName = "neolinkd"

// redacted replaces the value of any secret-bearing attribute.
const redacted = "[redacted]"

// secretKeys are attribute keys whose values never reach the log.
var secretKeys = map[string]bool{
	"password":      true,
	"rtsp_password": true,
	"token":         true,
	"jwt_secret":    true,
}

// Logger wraps slog.Logger with neolinkd defaults.
//
// It satisfies the small Debug/Info/Warn/Error interfaces declared by the
// mqtt, device, neolink and process packages, so one value can be handed to
// every component. Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New creates a Logger writing to the destination named in cfg.Output
// (stdout, stderr or discard).
func New(cfg config.LoggingConfig, version string) *Logger {
	out := io.Writer(os.Stdout)
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		out = os.Stderr
	case "discard", "none":
		out = io.Discard
	}
	return NewWithWriter(out, cfg, version)
}

// NewWithWriter creates a Logger writing to w. cfg.Output is ignored.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(cfg.Level),
		ReplaceAttr: redact,
	}

	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler.WithAttrs([]slog.Attr{
		slog.String("service", ServiceName),
		slog.String("version", version),
	}))}
}

// parseLevel accepts slog level names (and offsets such as "debug+2") plus
// "warning". Anything else is info.
func parseLevel(level string) slog.Level {
	if strings.EqualFold(level, "warning") {
		return slog.LevelWarn
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func redact(_ []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, redacted)
	}
	return a
}

// With returns a Logger that adds args to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component is shorthand for With("component", name).
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}
