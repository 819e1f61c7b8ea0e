package archive

import (
	"strconv"

	"github.com/prayercircle/prayercircle/model"
)

func (w *Writer) InviteUsed(token, usedBy, ip string) error {
	return w.appendLine(fileSpec{
		relPath: monthlyPath("system", "invite_usage", w.now()),
		title:   "Invite Token Usage",
		format:  "timestamp|token|used_by|ip",
	}, w.timestamp(), token, usedBy, ip)
}

func (w *Writer) FeatureFlagChanged(flag string, enabled bool, changedBy string) error {
	return w.appendLine(fileSpec{
		relPath: monthlyPath("system", "feature_flags", w.now()),
		title:   "Feature Flag Changes",
		format:  "timestamp|flag|enabled|changed_by",
	}, w.timestamp(), flag, strconv.FormatBool(enabled), changedBy)
}

// UpdateInviteTokens rewrites the full active-token snapshot. Called after
// every issue or claim so the file always reflects current state.
func (w *Writer) UpdateInviteTokens(tokens []*model.InviteToken, usernames map[uint]string) error {
	rows := make([][]string, 0, len(tokens))
	for _, token := range tokens {
		usedBy := ""
		if token.UsedAt != nil {
			usedBy = usernames[token.UsedByID]
		}
		rows = append(rows, []string{
			token.Token,
			usernames[token.IssuedByID],
			token.Note,
			token.ExpiresAt.Format(timestampLayout),
			usedBy,
		})
	}
	return w.writeSnapshot(fileSpec{
		relPath: "system/invite_tokens.txt",
		title:   "Invite Tokens",
		format:  "token|issued_by|note|expires_at|used_by",
	}, rows)
}

// SnapshotSystemConfig rewrites the config snapshot as ordered key/value
// pairs.
func (w *Writer) SnapshotSystemConfig(entries [][2]string) error {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{entry[0], entry[1]})
	}
	return w.writeSnapshot(fileSpec{
		relPath: "system/system_config.txt",
		title:   "System Configuration",
		format:  "key|value",
	}, rows)
}
