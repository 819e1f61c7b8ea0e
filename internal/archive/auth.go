package archive

import (
	"strconv"

	"github.com/prayercircle/prayercircle/model"
)

// AuthRequestEvent appends one line per request state: pending on
// creation, then rejected or expired on resolution. Replay keeps the last
// line per request id.
func (w *Writer) AuthRequestEvent(requestID, username, device, ip, status string) error {
	return w.appendLine(fileSpec{
		relPath: monthlyPath("auth", "auth_requests", w.now()),
		title:   "Authentication Requests",
		format:  "timestamp|request_id|username|device|ip|status",
	}, w.timestamp(), requestID, username, device, ip, status)
}

// AuthApprovalCast records one vote. rule is empty while the request stays
// pending, or names the rule (admin, self, peer) that resolved it.
func (w *Writer) AuthApprovalCast(requestID, approver, rule string, votes int, status string) error {
	return w.appendLine(fileSpec{
		relPath: monthlyPath("auth", "auth_approvals", w.now()),
		title:   "Authentication Approvals",
		format:  "timestamp|request_id|approver|rule|votes|status",
	}, w.timestamp(), requestID, approver, rule, strconv.Itoa(votes), status)
}

func (w *Writer) SecurityEvent(eventType, username, ip, userAgent, details string) error {
	return w.appendLine(fileSpec{
		relPath: monthlyPath("auth", "security_events", w.now()),
		title:   "Security Events",
		format:  "timestamp|event_type|username|ip|user_agent|details",
	}, w.timestamp(), eventType, username, ip, userAgent, details)
}

func (w *Writer) NotificationSent(recipient, kind, requestID, message string) error {
	return w.appendLine(fileSpec{
		relPath: monthlyPath("auth/notifications", "notifications", w.now()),
		title:   "Notifications",
		format:  "timestamp|recipient|kind|request_id|message",
	}, w.timestamp(), recipient, kind, requestID, message)
}

// SnapshotSessions rewrites the daily active-session snapshot. usernames
// maps user ids to display names for the human-readable column.
func (w *Writer) SnapshotSessions(sessions []*model.Session, usernames map[uint]string) error {
	rows := make([][]string, 0, len(sessions))
	for _, sess := range sessions {
		rows = append(rows, []string{
			sess.ID,
			usernames[sess.UserID],
			sess.DeviceInfo,
			sess.IP,
			strconv.FormatBool(sess.FullyAuthenticated),
			sess.CreatedAt.Format(timestampLayout),
			sess.ExpiresAt.Format(timestampLayout),
		})
	}
	return w.writeSnapshot(fileSpec{
		relPath: dailyPath("auth", "sessions_snapshot", w.now()),
		title:   "Active Sessions Snapshot",
		format:  "session_id|username|device|ip|fully_authenticated|created_at|expires_at",
	}, rows)
}
