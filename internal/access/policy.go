// Package access holds the role model and the authorization predicates
// evaluated before every mutating operation.
package access

import (
	"errors"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Role is the closed set of user roles.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// ErrUnknownRole is returned by ParseRole for values outside the enum.
var ErrUnknownRole = errors.New("unknown role")

// Denial messages surfaced to callers.
const (
	MsgIngestedAdminOnly = "Only admin can update an ingested document"
	MsgUpdateNotAllowed  = "You are not allowed to update this document"
)

// ParseRole normalizes raw input into a Role.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleEditor:
		return RoleEditor, nil
	case RoleViewer:
		return RoleViewer, nil
	default:
		return "", ErrUnknownRole
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Principal is the authenticated caller as seen by the policy.
type Principal struct {
	UserID              string
	Email               string
	Role                Role
	CanTriggerIngestion bool
}

// RoleSet is a set of roles allowed through a gate.
type RoleSet = mapset.Set[Role]

// NewRoleSet builds a RoleSet from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	return mapset.NewSet(roles...)
}

// RoleAllowed reports whether role is a member of allowed.
func RoleAllowed(role Role, allowed RoleSet) bool {
	if allowed == nil {
		return false
	}
	return allowed.Contains(role)
}

// CanTriggerIngestion allows admins and editors holding the entitlement.
func CanTriggerIngestion(role Role, entitled bool) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor:
		return entitled
	default:
		return false
	}
}

// CanUpdateDocument evaluates the status-gated edit rule.
func CanUpdateDocument(p Principal, ownerID string, ingested bool) bool {
	return UpdateDenial(p, ownerID, ingested) == ""
}

// UpdateDenial returns the reason an update is refused, or "" when allowed.
func UpdateDenial(p Principal, ownerID string, ingested bool) string {
	if ingested {
		if p.Role != RoleAdmin {
			return MsgIngestedAdminOnly
		}
		return ""
	}
	switch {
	case p.Role == RoleAdmin, p.Role == RoleEditor:
		return ""
	case p.UserID != "" && p.UserID == ownerID:
		return ""
	default:
		return MsgUpdateNotAllowed
	}
}

// ResetsOnEdit reports whether an edit moves an ingested document back to uploaded.
func ResetsOnEdit(p Principal, ingested bool) bool {
	return ingested && p.Role == RoleAdmin
}

// CanDeleteDocument is admin only.
func CanDeleteDocument(role Role) bool {
	return role == RoleAdmin
}

// CanManageUsers covers role and entitlement changes. Admin only.
func CanManageUsers(role Role) bool {
	return role == RoleAdmin
}
