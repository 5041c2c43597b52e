// Package rbac maps portal roles to the actions they may perform.
// Clients own exactly one project; administrators run the studio side
// of the planning workflow.
package rbac

type Role string
type Action string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

const (
	ActionRead       Action = "read"
	ActionWrite      Action = "write"
	ActionAdminister Action = "administer"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleClient:
		return action == ActionRead || action == ActionWrite
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleClient, RoleAdmin:
		return Role(role)
	default:
		return RoleClient
	}
}
