package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PrincipalKind distinguishes the two kinds of authenticated identity.
type PrincipalKind string

const (
	PrincipalUser  PrincipalKind = "user"
	PrincipalAdmin PrincipalKind = "admin"
)

// Valid reports whether the kind is one of the known principal kinds.
func (k PrincipalKind) Valid() bool {
	return k == PrincipalUser || k == PrincipalAdmin
}

// Credential is an opaque, verifiable password representation.
type Credential struct {
	Algorithm string
	Hash      string
}

// Identity holds the attributes shared by users and admins.
type Identity struct {
	ID        uuid.UUID
	Name      string
	RealName  string
	Emails    []string
	Password  Credential
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PrimaryEmail returns the first email address, which receives notifications.
func (i Identity) PrimaryEmail() string {
	if len(i.Emails) == 0 {
		return ""
	}
	return i.Emails[0]
}

// HasEmail reports whether the identity owns the address (case-insensitive).
func (i Identity) HasEmail(email string) bool {
	for _, e := range i.Emails {
		if strings.EqualFold(e, email) {
			return true
		}
	}
	return false
}

// User is an end-user principal.
type User struct {
	Identity
}

// Admin is an administrative principal with a permission set.
type Admin struct {
	Identity
	Permissions PermissionSet
}

// Principal is the authenticated actor of a command: exactly one of User or Admin is set.
type Principal struct {
	User  *User
	Admin *Admin
}

// Kind returns the principal kind, or an empty kind for an anonymous principal.
func (p Principal) Kind() PrincipalKind {
	switch {
	case p.Admin != nil:
		return PrincipalAdmin
	case p.User != nil:
		return PrincipalUser
	default:
		return ""
	}
}

// Identity returns the shared identity attributes.
func (p Principal) Identity() Identity {
	switch {
	case p.Admin != nil:
		return p.Admin.Identity
	case p.User != nil:
		return p.User.Identity
	default:
		return Identity{}
	}
}

// ID returns the principal identifier, or uuid.Nil when anonymous.
func (p Principal) ID() uuid.UUID {
	return p.Identity().ID
}

// LoginRecord is one entry of a principal's login history.
type LoginRecord struct {
	SubjectID uuid.UUID
	Time      time.Time
	Host      string
	UserAgent string
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
