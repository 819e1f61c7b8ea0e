package archive

import (
	"time"

	"github.com/prayercircle/prayercircle/model"
)

func (w *Writer) RoleAssigned(username, role, grantedBy string, expiresAt *time.Time) error {
	expiry := "never"
	if expiresAt != nil {
		expiry = expiresAt.Format(timestampLayout)
	}
	return w.appendLine(fileSpec{
		relPath: monthlyPath("roles", "role_assignments", w.now()),
		title:   "Role Assignments",
		format:  "timestamp|username|role|granted_by|expires_at",
	}, w.timestamp(), username, role, grantedBy, expiry)
}

// RoleHistory is a single long-lived append file covering every grant and
// revocation, unlike the monthly assignment files.
func (w *Writer) RoleHistory(username, role, action, actor string) error {
	return w.appendLine(fileSpec{
		relPath: "roles/role_history.txt",
		title:   "Role History",
		format:  "timestamp|username|role|action|actor",
	}, w.timestamp(), username, role, action, actor)
}

func (w *Writer) SnapshotRoleDefinitions(roles []*model.Role) error {
	rows := make([][]string, 0, len(roles))
	for _, role := range roles {
		rows = append(rows, []string{role.Name, role.Description})
	}
	return w.writeSnapshot(fileSpec{
		relPath: "roles/role_definitions.txt",
		title:   "Role Definitions",
		format:  "role|description",
	}, rows)
}
