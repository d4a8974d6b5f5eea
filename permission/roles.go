package permission

import (
	"errors"
	"strings"
)

// Role is the coarse account role stored with every user.
type Role string

const (
	RoleUser      Role = "USER"
	RoleModerator Role = "MODERATOR"
	RoleAdmin     Role = "ADMIN"
)

// ErrUnknownRole is returned by ParseRole for names outside the role set.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole maps a case-insensitive role name to a Role.
func ParseRole(name string) (Role, error) {
	r := Role(strings.ToUpper(strings.TrimSpace(name)))
	if !r.Valid() {
		return "", ErrUnknownRole
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r.bit() >= 0
}

func (r Role) String() string {
	return string(r)
}

func (r Role) bit() int {
	switch r {
	case RoleUser:
		return 0
	case RoleModerator:
		return 1
	case RoleAdmin:
		return 2
	default:
		return -1
	}
}

// RoleSet is a bitmask of roles.
type RoleSet uint8

// Roles builds a set from the given roles. Unknown roles are ignored.
func Roles(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s.Set(r)
	}
	return s
}

// Set adds r to the set.
func (s *RoleSet) Set(r Role) {
	bit := r.bit()
	if bit < 0 {
		return
	}
	*s |= 1 << bit
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r Role) bool {
	bit := r.bit()
	if bit < 0 {
		return false
	}
	return s&(1<<bit) != 0
}

// Empty reports whether the set holds no role.
func (s RoleSet) Empty() bool {
	return s == 0
}
