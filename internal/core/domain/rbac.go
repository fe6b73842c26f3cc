package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Permission defines a named administrative capability.
type Permission string

const (
	PermAdminBan                  Permission = "ADMIN_BAN"
	PermAdminCreate               Permission = "ADMIN_CREATE"
	PermAdminDelete               Permission = "ADMIN_DELETE"
	PermAdminRead                 Permission = "ADMIN_READ"
	PermAdminWriteCredentials     Permission = "ADMIN_WRITE_CREDENTIALS"
	PermAdminWriteCredentialsSelf Permission = "ADMIN_WRITE_CREDENTIALS_SELF"
	PermAdminWriteEmail           Permission = "ADMIN_WRITE_EMAIL"
	PermAdminWriteEmailSelf       Permission = "ADMIN_WRITE_EMAIL_SELF"
	PermAdminWritePermissions     Permission = "ADMIN_WRITE_PERMISSIONS"
	PermAdminWritePermissionsSelf Permission = "ADMIN_WRITE_PERMISSIONS_SELF"
	PermAuditRead                 Permission = "AUDIT_READ"
	PermUserBan                   Permission = "USER_BAN"
	PermUserCreate                Permission = "USER_CREATE"
	PermUserDelete                Permission = "USER_DELETE"
	PermUserRead                  Permission = "USER_READ"
	PermUserWriteCredentials      Permission = "USER_WRITE_CREDENTIALS"
	PermUserWriteEmail            Permission = "USER_WRITE_EMAIL"
)

var allPermissions = []Permission{
	PermAdminBan,
	PermAdminCreate,
	PermAdminDelete,
	PermAdminRead,
	PermAdminWriteCredentials,
	PermAdminWriteCredentialsSelf,
	PermAdminWriteEmail,
	PermAdminWriteEmailSelf,
	PermAdminWritePermissions,
	PermAdminWritePermissionsSelf,
	PermAuditRead,
	PermUserBan,
	PermUserCreate,
	PermUserDelete,
	PermUserRead,
	PermUserWriteCredentials,
	PermUserWriteEmail,
}

// AllPermissions returns every known permission.
func AllPermissions() []Permission {
	out := make([]Permission, len(allPermissions))
	copy(out, allPermissions)
	return out
}

// ParsePermission resolves a permission name.
func ParsePermission(name string) (Permission, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for _, p := range allPermissions {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown permission %q", name)
}

// PermissionSet is an immutable-by-convention set of permissions.
type PermissionSet map[Permission]struct{}

// NewPermissionSet builds a set from the supplied permissions.
func NewPermissionSet(perms ...Permission) PermissionSet {
	set := make(PermissionSet, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// Has reports whether the set contains the permission.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Contains reports whether every permission of other is in s.
func (s PermissionSet) Contains(other PermissionSet) bool {
	for p := range other {
		if !s.Has(p) {
			return false
		}
	}
	return true
}

// With returns a copy of the set including p.
func (s PermissionSet) With(p Permission) PermissionSet {
	out := make(PermissionSet, len(s)+1)
	for k := range s {
		out[k] = struct{}{}
	}
	out[p] = struct{}{}
	return out
}

// Without returns a copy of the set excluding p.
func (s PermissionSet) Without(p Permission) PermissionSet {
	out := make(PermissionSet, len(s))
	for k := range s {
		if k != p {
			out[k] = struct{}{}
		}
	}
	return out
}

// Sorted returns the permissions in lexical order.
func (s PermissionSet) Sorted() []Permission {
	out := make([]Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted permission names.
func (s PermissionSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, p := range sorted {
		out[i] = string(p)
	}
	return out
}
