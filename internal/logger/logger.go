// Package logger wraps log/slog with the fields the booking service logs
// on every line (request id, user id, error) and with helpers for the
// events operators reconcile by hand.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
)

// Logger wraps slog.Logger with additional functionality.
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to stdout.  Development environments get
// the text handler, everything else JSON.  The level comes from level
// ("debug", "info", "warn", "error"; default info).
func New(env, level string) *Logger {
	return NewWithWriter(os.Stdout, env, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, env, level string) *Logger {
	lvl := getLogLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	var handler slog.Handler
	switch strings.ToLower(env) {
	case "dev", "development", "local":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// Discard returns a logger that drops everything.  Used by tests.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID adds request ID to logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("request_id", requestID))}
}

// WithUserID adds user ID to logger context
func (l *Logger) WithUserID(userID string) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("user_id", userID))}
}

// WithError adds error to logger context
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Logger: l.Logger.With(slog.String("error", err.Error()))}
}

// Reconcile logs an inconsistency between the gateway and the datastore
// that needs manual follow-up.  All such lines carry reconcile=true so
// they can be filtered out of the log stream.
func (l *Logger) Reconcile(ctx context.Context, msg string, err error, args ...any) {
	attrs := make([]any, 0, len(args)+2)
	attrs = append(attrs, slog.Bool("reconcile", true))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	attrs = append(attrs, args...)
	l.Logger.ErrorContext(ctx, msg, attrs...)
}

// LogHTTPRequest logs a finished HTTP request.
func (l *Logger) LogHTTPRequest(c echo.Context, duration time.Duration) {
	req := c.Request()
	l.Logger.InfoContext(req.Context(),
		"HTTP Request",
		slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		slog.String("method", req.Method),
		slog.String("path", c.Path()),
		slog.Int("status", c.Response().Status),
		slog.Duration("duration", duration),
		slog.String("ip", c.RealIP()),
		slog.Int64("size", c.Response().Size),
	)
}

// Middleware returns an echo middleware logging every request after the
// handler ran.  Handler errors are passed to echo's error handler first
// so the logged status is the one sent to the client.
func (l *Logger) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			l.LogHTTPRequest(c, time.Since(start))
			return nil
		}
	}
}
