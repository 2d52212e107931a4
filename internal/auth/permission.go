package auth

import (
	"fmt"
	"strings"
)

type Permission int

const (
	PermissionNone Permission = iota
	PermissionRead
	PermissionFull
)

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionFull:
		return "full"
	default:
		return "none"
	}
}

// Allows reports whether p satisfies the required level.
func (p Permission) Allows(required Permission) bool {
	return p >= required
}

func ParsePermission(s string) (Permission, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read":
		return PermissionRead, nil
	case "full":
		return PermissionFull, nil
	default:
		return PermissionNone, fmt.Errorf("unknown permission %q", s)
	}
}
