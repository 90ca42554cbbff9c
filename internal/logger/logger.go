package logger

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Service names stamped on every entry.
const (
	ServiceCLI  = "miri"
	ServiceStub = "miri-stub"
)

var log = zerolog.Nop()

// Init configures the process logger for service. Output goes to stderr so
// command output on stdout stays machine readable.
func Init(service, level string, pretty bool) {
	InitWithWriter(service, level, pretty, os.Stderr)
}

// InitWithWriter is Init with an explicit destination.
func InitWithWriter(service, level string, pretty bool, w io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	output := w
	if pretty {
		output = zerolog.ConsoleWriter{
			Out:           w,
			TimeFormat:    time.RFC3339,
			FieldsExclude: []string{"service"},
		}
	}

	log = zerolog.New(output).
		With().
		Timestamp().
		Str("service", service).
		Logger()
}

func Get() *zerolog.Logger {
	return &log
}

func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithOperation tags entries with an SDK operation name.
func WithOperation(operation string) zerolog.Logger {
	return log.With().Str("operation", operation).Logger()
}

// WithSession tags entries with an agent session id. Empty ids are left
// out so bridge connections do not log a blank session.
func WithSession(l zerolog.Logger, sessionID string) zerolog.Logger {
	if sessionID == "" {
		return l
	}
	return l.With().Str("session_id", sessionID).Logger()
}

// ForRequest tags entries with the X-Request-ID the SDK sends, the method
// and the path of an inbound request.
func ForRequest(component string, r *http.Request) zerolog.Logger {
	ctx := log.With().
		Str("component", component).
		Str("method", r.Method).
		Str("path", r.URL.Path)
	if id := r.Header.Get("X-Request-ID"); id != "" {
		ctx = ctx.Str("request_id", id)
	}
	return ctx.Logger()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}
