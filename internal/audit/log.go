// Package audit records security-relevant events.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"qazna.org/authcore/internal/auth"
	"qazna.org/authcore/internal/obs"
)

// Event names.
const (
	LoginSucceeded  = "auth.login.succeeded"
	LoginFailed     = "auth.login.failed"
	UserRegistered  = "users.registered"
	UserActivated   = "users.activated"
	UserDeactivated = "users.deactivated"
)

// Logger writes audit entries as structured log records.
type Logger struct {
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Logger writing through logger. A nil logger discards entries.
func New(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Logger{logger: logger.With(slog.String("type", "audit")), now: time.Now}
}

// LogEvent writes an audit log entry enriched with request and actor context.
func (l *Logger) LogEvent(ctx context.Context, event string, fields map[string]any) error {
	if l == nil {
		return nil
	}
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("audit: event name is required")
	}
	attrs := []slog.Attr{
		slog.String("event", event),
		slog.String("ts", l.now().UTC().Format(time.RFC3339Nano)),
	}
	if rid := obs.RequestIDFromContext(ctx); rid != "" {
		attrs = append(attrs, slog.String("request_id", rid))
	}
	if actor := auth.SubjectFromContext(ctx); actor != "" {
		attrs = append(attrs, slog.String("actor_id", actor))
	}
	group := make([]any, 0, len(fields))
	for k, v := range fields {
		group = append(group, slog.Any(k, v))
	}
	attrs = append(attrs, slog.Group("fields", group...))

	// request_id is already stamped above; log without ctx to avoid a duplicate.
	l.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	return nil
}
