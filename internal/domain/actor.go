package domain

// Role identifies what an actor may do to a ticket.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
	// RoleSystem is reserved for scheduled jobs and is never issued to a human.
	RoleSystem Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAgent, RoleAdmin, RoleSystem:
		return true
	}
	return false
}

// Actor is whoever triggers a transition.
type Actor struct {
	UserID string
	Name   string
	Role   Role
}

// SystemActor is the identity the auto-close sweep writes into the changelog.
var SystemActor = Actor{
	UserID: "system",
	Name:   "System",
	Role:   RoleSystem,
}

// IsSystem reports whether a is the reserved system identity.
func (a Actor) IsSystem() bool {
	return a.Role == RoleSystem
}
