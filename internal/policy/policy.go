// Package policy is the single authorization layer. Every role check in the
// system goes through Can so "is admin" has exactly one source of truth: the
// persisted role, assigned once at account creation from the admin allow-list.
package policy

import "strings"

// Role is the closed set of roles a user can hold.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ParseRole validates a stored role string. Unknown values degrade to
// RoleUser so a corrupted record can never grant admin capabilities.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// Action names a capability-gated operation.
type Action string

const (
	ActionManageEvents       Action = "events:manage"
	ActionManageCertificates Action = "certificates:manage"
	ActionManageUsers        Action = "users:manage"
	ActionViewRegistrations  Action = "registrations:view_all"
	ActionGradeRegistrations Action = "registrations:grade"
	ActionViewAnalytics      Action = "analytics:view"
)

var capabilities = map[Role]map[Action]bool{
	RoleAdmin: {
		ActionManageEvents:       true,
		ActionManageCertificates: true,
		ActionManageUsers:        true,
		ActionViewRegistrations:  true,
		ActionGradeRegistrations: true,
		ActionViewAnalytics:      true,
	},
	RoleUser: {},
}

// Can reports whether the role may perform the action.
func Can(role Role, action Action) bool {
	return capabilities[role][action]
}

// AdminAllowList resolves the role for a new account from a fixed set of
// admin emails. Matching is case-insensitive. The list is consulted only at
// creation time; afterwards the persisted role is authoritative.
type AdminAllowList map[string]struct{}

// NewAdminAllowList builds an allow-list from configured admin emails.
func NewAdminAllowList(emails []string) AdminAllowList {
	list := make(AdminAllowList, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			list[e] = struct{}{}
		}
	}
	return list
}

// RoleFor returns RoleAdmin when the email is on the allow-list.
func (l AdminAllowList) RoleFor(email string) Role {
	if _, ok := l[strings.ToLower(strings.TrimSpace(email))]; ok {
		return RoleAdmin
	}
	return RoleUser
}
