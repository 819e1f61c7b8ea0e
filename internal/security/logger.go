package security

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prayercircle/prayercircle/internal/archive"
	"github.com/prayercircle/prayercircle/internal/audit"
	"github.com/prayercircle/prayercircle/model"
)

// Logger records security events to both the database and the text
// archive. Both sinks are best-effort: a failed write is logged and
// discarded so security logging can never abort a user-facing flow.
type Logger struct {
	recorder         *audit.Recorder
	archive          *archive.Writer
	enforceIPBinding bool
}

func (l *Logger) LogSecurityEvent(ctx context.Context, eventType string, userID uint, username, ip, userAgent, details string) {
	l.recorder.RecordSecurityEvent(ctx, audit.SecurityEventRecord{
		EventType: eventType,
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		Details:   details,
	})
	if err := l.archive.SecurityEvent(eventType, username, ip, userAgent, details); err != nil {
		slog.Warn("Could not archive security event", "event", eventType, "error", err)
	}
}

// ValidateSession compares the request's IP to the IP recorded at session
// creation. A mismatch is logged; the session survives unless IP binding
// enforcement is switched on. Detection without enforcement is the default.
func (l *Logger) ValidateSession(ctx context.Context, session *model.Session, clientIP string, userAgent string) bool {
	if clientIP == "" || session.IP == "" || clientIP == session.IP {
		return true
	}
	details := fmt.Sprintf("session %s created from %s, now seen from %s", session.ID, session.IP, clientIP)
	l.LogSecurityEvent(ctx, audit.EventTypeIPChange, session.UserID, "", clientIP, userAgent, details)
	return !l.enforceIPBinding
}

func NewLogger(recorder *audit.Recorder, archiveWriter *archive.Writer, enforceIPBinding bool) *Logger {
	return &Logger{
		recorder:         recorder,
		archive:          archiveWriter,
		enforceIPBinding: enforceIPBinding,
	}
}
