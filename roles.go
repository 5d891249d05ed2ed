package auth

import "strings"

// Role is an account role. Roles are ordered, see HasPrivilege.
type Role string

const (
	RoleUser      Role = "USER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

var roleLevels = map[Role]int{
	RoleUser:      0,
	RoleModerator: 1,
	RoleAdmin:     2,
}

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	_, ok := roleLevels[r]
	return ok
}

// HasPrivilege reports whether r is at least min in the role hierarchy.
func (r Role) HasPrivilege(min Role) bool {
	current, ok := roleLevels[r]
	if !ok {
		return false
	}
	required, ok := roleLevels[min]
	if !ok {
		return false
	}
	return current >= required
}

func (r Role) String() string { return string(r) }

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{RoleUser, RoleModerator, RoleAdmin}
}

// ParseRole parses a role name, case insensitive and with an optional
// ROLE_ prefix.
func ParseRole(raw string) (Role, bool) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	name = strings.TrimPrefix(name, "ROLE_")
	role := Role(name)
	return role, role.IsValid()
}

// ParseRoles drops unknown and duplicated entries.
func ParseRoles(raw []string) []Role {
	out := make([]Role, 0, len(raw))
	for _, r := range raw {
		role, ok := ParseRole(r)
		if !ok || hasRole(out, role) {
			continue
		}
		out = append(out, role)
	}
	return out
}

func hasRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func cloneRoles(roles []Role) []Role {
	if roles == nil {
		return nil
	}
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}

func roleNames(roles []Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}
