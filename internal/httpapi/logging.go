package httpapi

import (
	"net/http"
	"os"
	"sync/atomic"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// zlog is the structured logger of the HTTP layer.
var zlog = zerolog.New(os.Stderr).With().Timestamp().Logger()

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = l.With().Str("component", "http").Logger() }

// LogLevel controls per-request logging behavior.
type LogLevel int

const (
	LevelOff LogLevel = iota
	LevelError
	LevelInfo
	LevelDebug
)

func parseLevel(s string) LogLevel {
	switch s {
	case "off", "":
		return LevelOff
	case "error":
		return LevelError
	case "info":
		return LevelInfo
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

var defaultLogLevel atomic.Int32

func init() { defaultLogLevel.Store(int32(LevelInfo)) }

// SetRequestLogLevel sets the level used when a request carries no override.
func SetRequestLogLevel(s string) { defaultLogLevel.Store(int32(parseLevel(s))) }

func requestLogLevel(r *http.Request) LogLevel {
	// Per-request overrides
	if v := r.URL.Query().Get("log"); v != "" {
		if v == "1" {
			return LevelDebug
		}
		return parseLevel(v)
	}
	if v := r.Header.Get("X-Log-Level"); v != "" {
		return parseLevel(v)
	}
	return LogLevel(defaultLogLevel.Load())
}

// requestLog returns a logger tagged with the request id and path.
func requestLog(r *http.Request) zerolog.Logger {
	c := zlog.With().Str("path", r.URL.Path)
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		c = c.Str("request_id", rid)
	}
	return c.Logger()
}

// endEvent picks the event for a request's final log line. Failures are
// logged at error level, which LevelError keeps; successes need LevelInfo.
func endEvent(l *zerolog.Logger, lvl LogLevel, status int) *zerolog.Event {
	if status >= http.StatusInternalServerError {
		if lvl >= LevelError {
			return l.Error()
		}
		return nil
	}
	if lvl >= LevelInfo {
		return l.Info()
	}
	return nil
}
