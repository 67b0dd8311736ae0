package models

import "strings"

type UserRole string

const (
	RoleViewer UserRole = "viewer"
	RoleEditor UserRole = "editor"
	RoleAdmin  UserRole = "admin"
)

var roleTier = map[UserRole]int{
	RoleViewer: 1,
	RoleEditor: 2,
	RoleAdmin:  3,
}

func IsValidRole(role UserRole) bool {
	_, ok := roleTier[role]
	return ok
}

func IsValidRoleList(roles []UserRole) bool {
	if len(roles) == 0 {
		return false
	}
	for _, r := range roles {
		if !IsValidRole(r) {
			return false
		}
	}
	return true
}

// NormalizeRoles lowercases roles and removes duplicates.
func NormalizeRoles(roles []UserRole) []UserRole {
	seen := make(map[UserRole]bool, len(roles))
	out := make([]UserRole, 0, len(roles))
	for _, r := range roles {
		r = UserRole(strings.ToLower(strings.TrimSpace(string(r))))
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// EnsureDefaultRole guarantees every identity carries at least the viewer role.
func EnsureDefaultRole(roles []UserRole) []UserRole {
	for _, r := range roles {
		if r == RoleViewer {
			return roles
		}
	}
	return append(roles, RoleViewer)
}

// HasAtLeast reports whether any of roles reaches the required tier.
func HasAtLeast(roles []UserRole, required UserRole) bool {
	need := roleTier[required]
	for _, r := range roles {
		if roleTier[r] >= need {
			return true
		}
	}
	return false
}

func HighestRole(roles []UserRole) UserRole {
	highest := RoleViewer
	for _, r := range roles {
		if roleTier[r] > roleTier[highest] {
			highest = r
		}
	}
	return highest
}
