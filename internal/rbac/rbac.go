// Package rbac decides which editorial actions a role may take on a report.
package rbac

type Role string
type Action string

const (
	RoleViewer     Role = "viewer"
	RoleAnalyst    Role = "analyst"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

const (
	ActionView    Action = "view"
	ActionEdit    Action = "edit"
	ActionRefresh Action = "refresh"
	ActionApprove Action = "approve"
	ActionExport  Action = "export"
	ActionIngest  Action = "ingest"
)

// Analysts prepare reports; only supervisors sign sections off.
func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleSupervisor:
		return action != ActionIngest
	case RoleAnalyst:
		return action == ActionView || action == ActionEdit || action == ActionRefresh ||
			action == ActionExport || action == ActionIngest
	case RoleViewer:
		return action == ActionView || action == ActionExport
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleAnalyst, RoleSupervisor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
