package models

// Role is a participant's assigned role. Roles are fixed per game setup
// and immutable once assigned.
type Role string

const (
	RoleWolf     Role = "wolf"
	RoleVillager Role = "village"
	RoleSeer     Role = "seer"
	RoleWitch    Role = "witch"

	// RoleAny matches every role in role-scoped queries.
	RoleAny Role = "*"
)

// Participant is one filled roster slot. Identity is empty until a
// player registers into the slot; Alive only transitions true to false.
type Participant struct {
	Identity string
	Role     Role
	Alive    bool
}
