package auth

import "strings"

// Role is ordered: every role may do what the roles below it may do.
type Role int

const (
	RoleUnknown Role = iota
	RoleClient
	RoleStaff
	RoleManager
	RoleOwner
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleClient:  "client",
	RoleStaff:   "staff",
	RoleManager: "manager",
	RoleOwner:   "owner",
	RoleAdmin:   "admin",
}

func ParseRole(s string) Role {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range roleNames {
		if name == s {
			return r
		}
	}
	return RoleUnknown
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// AtLeast is the only role comparison used for authorization.
func (r Role) AtLeast(min Role) bool {
	return r != RoleUnknown && r >= min
}
