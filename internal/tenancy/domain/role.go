package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Role is a member's level inside one tenant. Lower codes carry more
// authority; the numeric codes are part of the credential format.
type Role int

const (
	RoleOwner Role = iota
	RoleAdmin
	RoleManager
	RoleAccountant
	RoleEmployee
)

const roleCount = 5

var roleNames = [roleCount]string{"Owner", "Admin", "Manager", "Accountant", "Employee"}

// satisfies[held][required] reports whether a member holding one role may
// act where another is required.
var satisfies = func() (t [roleCount][roleCount]bool) {
	for held := 0; held < roleCount; held++ {
		for required := held; required < roleCount; required++ {
			t[held][required] = true
		}
	}
	return t
}()

// Roles returns all roles from most to least privileged.
func Roles() []Role {
	return []Role{RoleOwner, RoleAdmin, RoleManager, RoleAccountant, RoleEmployee}
}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	return r >= RoleOwner && r <= RoleEmployee
}

// Satisfies reports whether r meets the required role.
func (r Role) Satisfies(required Role) bool {
	if !r.IsValid() || !required.IsValid() {
		return false
	}
	return satisfies[r][required]
}

// CanGrant reports whether an actor holding r may assign target to someone
// else. Only Admins and above grant roles, never above their own, so only an
// Owner can mint another Owner.
func (r Role) CanGrant(target Role) bool {
	return r.Satisfies(RoleAdmin) && r.Satisfies(target)
}

func (r Role) String() string {
	if !r.IsValid() {
		return fmt.Sprintf("Role(%d)", int(r))
	}
	return roleNames[r]
}

// ParseRole accepts a role name, case-insensitively, or its numeric code.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		r := Role(n)
		if !r.IsValid() {
			return 0, fmt.Errorf("unknown role code %d", n)
		}
		return r, nil
	}
	for i, name := range roleNames {
		if strings.EqualFold(name, s) {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

// RoleFromClaim reads a role from a decoded credential claim. Anything
// missing or unparseable yields the least privileged role.
func RoleFromClaim(v any) Role {
	var (
		r   Role
		err error
	)
	switch value := v.(type) {
	case string:
		r, err = ParseRole(value)
	case float64:
		r = Role(int(value))
		if float64(int(value)) != value {
			return RoleEmployee
		}
	case json.Number:
		r, err = ParseRole(value.String())
	case int:
		r = Role(value)
	case int64:
		r = Role(value)
	default:
		return RoleEmployee
	}
	if err != nil || !r.IsValid() {
		return RoleEmployee
	}
	return r
}

// MarshalText encodes the role by name.
func (r Role) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name or code.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
