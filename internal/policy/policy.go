// Package policy decides whether a principal may perform an action. Check is pure:
// it never touches storage, so handlers call it before their first mutation.
package policy

import (
	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/core/domain"
)

// Decision is the outcome of a policy check. Reason is safe to show to clients.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Err converts a denial into a SECURITY_POLICY_DENIED failure, or nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return domain.Fail(domain.ErrSecurityPolicyDenied, d.Reason)
}

// Action is the closed set of authorisable operations.
type Action interface {
	isAction()
}

// Admin-targeted actions.
type (
	ReadAdmin struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	SearchAdmins struct {
		Actor domain.Principal
	}
	CreateAdmin struct {
		Actor       domain.Principal
		Permissions domain.PermissionSet
	}
	DeleteAdmin struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	BanAdmin struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	ReadAdminBan struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	UnbanAdmin struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	AddAdminEmail struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	RemoveAdminEmail struct {
		Actor  domain.Principal
		Target domain.Identity
		Email  string
	}
	WriteAdminCredentials struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	GrantAdminPermissions struct {
		Actor       domain.Principal
		Target      uuid.UUID
		Permissions domain.PermissionSet
	}
	RevokeAdminPermissions struct {
		Actor       domain.Principal
		Target      uuid.UUID
		Permissions domain.PermissionSet
	}
)

// User-targeted actions.
type (
	ReadUser struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	SearchUsers struct {
		Actor domain.Principal
	}
	CreateUser struct {
		Actor domain.Principal
	}
	UpdateUser struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	DeleteUser struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	BanUser struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	ReadUserBan struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	UnbanUser struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	AddUserEmail struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	RemoveUserEmail struct {
		Actor  domain.Principal
		Target domain.Identity
		Email  string
	}
	WriteUserCredentials struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
	ReadLoginHistory struct {
		Actor  domain.Principal
		Target uuid.UUID
	}
)

// SearchAudit covers audit log searches.
type SearchAudit struct {
	Actor domain.Principal
}

func (ReadAdmin) isAction()              {}
func (SearchAdmins) isAction()           {}
func (CreateAdmin) isAction()            {}
func (DeleteAdmin) isAction()            {}
func (BanAdmin) isAction()               {}
func (ReadAdminBan) isAction()           {}
func (UnbanAdmin) isAction()             {}
func (AddAdminEmail) isAction()          {}
func (RemoveAdminEmail) isAction()       {}
func (WriteAdminCredentials) isAction()  {}
func (GrantAdminPermissions) isAction()  {}
func (RevokeAdminPermissions) isAction() {}
func (ReadUser) isAction()               {}
func (SearchUsers) isAction()            {}
func (CreateUser) isAction()             {}
func (UpdateUser) isAction()             {}
func (DeleteUser) isAction()             {}
func (BanUser) isAction()                {}
func (ReadUserBan) isAction()            {}
func (UnbanUser) isAction()              {}
func (AddUserEmail) isAction()           {}
func (RemoveUserEmail) isAction()        {}
func (WriteUserCredentials) isAction()   {}
func (ReadLoginHistory) isAction()       {}
func (SearchAudit) isAction()            {}

const (
	reasonNotPermitted = "operation not permitted"
	reasonSelf         = "operation not permitted on own account"
	reasonLastEmail    = "at least one email address must remain"
	reasonEscalation   = "cannot grant permissions the actor does not hold"
	reasonUnknown      = "unknown action"
)

// Check evaluates action. Unknown actions are denied.
func Check(action Action) Decision {
	switch a := action.(type) {
	case ReadAdmin:
		if isSelf(a.Actor, a.Target) && a.Actor.Admin != nil {
			return allow()
		}
		return requireAdmin(a.Actor, domain.PermAdminRead)
	case SearchAdmins:
		return requireAdmin(a.Actor, domain.PermAdminRead)
	case CreateAdmin:
		if d := requireAdmin(a.Actor, domain.PermAdminCreate); !d.Allowed {
			return d
		}
		return requireHeld(a.Actor, a.Permissions)
	case DeleteAdmin:
		if isSelf(a.Actor, a.Target) {
			return deny(reasonSelf)
		}
		return requireAdmin(a.Actor, domain.PermAdminDelete)
	case BanAdmin:
		if isSelf(a.Actor, a.Target) {
			return deny(reasonSelf)
		}
		return requireAdmin(a.Actor, domain.PermAdminBan)
	case ReadAdminBan:
		return requireAdmin(a.Actor, domain.PermAdminRead)
	case UnbanAdmin:
		if isSelf(a.Actor, a.Target) {
			return deny(reasonSelf)
		}
		return requireAdmin(a.Actor, domain.PermAdminBan)
	case AddAdminEmail:
		return requireAdminSelfOrOther(a.Actor, a.Target, domain.PermAdminWriteEmailSelf, domain.PermAdminWriteEmail)
	case RemoveAdminEmail:
		if d := KeepsAnEmail(a.Target, a.Email); !d.Allowed {
			return d
		}
		return requireAdminSelfOrOther(a.Actor, a.Target.ID, domain.PermAdminWriteEmailSelf, domain.PermAdminWriteEmail)
	case WriteAdminCredentials:
		return requireAdminSelfOrOther(a.Actor, a.Target, domain.PermAdminWriteCredentialsSelf, domain.PermAdminWriteCredentials)
	case GrantAdminPermissions:
		if d := requireAdminSelfOrOther(a.Actor, a.Target, domain.PermAdminWritePermissionsSelf, domain.PermAdminWritePermissions); !d.Allowed {
			return d
		}
		return requireHeld(a.Actor, a.Permissions)
	case RevokeAdminPermissions:
		return requireAdminSelfOrOther(a.Actor, a.Target, domain.PermAdminWritePermissionsSelf, domain.PermAdminWritePermissions)

	case ReadUser:
		return userSelfOrAdmin(a.Actor, a.Target, domain.PermUserRead)
	case SearchUsers:
		return requireAdmin(a.Actor, domain.PermUserRead)
	case CreateUser:
		return requireAdmin(a.Actor, domain.PermUserCreate)
	case UpdateUser:
		return userSelfOrAdmin(a.Actor, a.Target, domain.PermUserWriteCredentials)
	case DeleteUser:
		return requireAdmin(a.Actor, domain.PermUserDelete)
	case BanUser:
		return requireAdmin(a.Actor, domain.PermUserBan)
	case ReadUserBan:
		return requireAdmin(a.Actor, domain.PermUserRead)
	case UnbanUser:
		return requireAdmin(a.Actor, domain.PermUserBan)
	case AddUserEmail:
		return userSelfOrAdmin(a.Actor, a.Target, domain.PermUserWriteEmail)
	case RemoveUserEmail:
		if d := KeepsAnEmail(a.Target, a.Email); !d.Allowed {
			return d
		}
		return userSelfOrAdmin(a.Actor, a.Target.ID, domain.PermUserWriteEmail)
	case WriteUserCredentials:
		return userSelfOrAdmin(a.Actor, a.Target, domain.PermUserWriteCredentials)
	case ReadLoginHistory:
		return userSelfOrAdmin(a.Actor, a.Target, domain.PermUserRead)

	case SearchAudit:
		return requireAdmin(a.Actor, domain.PermAuditRead)
	default:
		return deny(reasonUnknown)
	}
}

func isSelf(actor domain.Principal, target uuid.UUID) bool {
	return actor.Kind() != "" && actor.ID() == target
}

func requireAdmin(actor domain.Principal, perm domain.Permission) Decision {
	if actor.Admin == nil || !actor.Admin.Permissions.Has(perm) {
		return deny(reasonNotPermitted)
	}
	return allow()
}

func requireAdminSelfOrOther(actor domain.Principal, target uuid.UUID, self, other domain.Permission) Decision {
	if actor.Admin == nil {
		return deny(reasonNotPermitted)
	}
	if actor.Admin.ID == target {
		return requireAdmin(actor, self)
	}
	return requireAdmin(actor, other)
}

// userSelfOrAdmin lets a user act on their own account and an admin act on any user
// when holding perm.
func userSelfOrAdmin(actor domain.Principal, target uuid.UUID, perm domain.Permission) Decision {
	if actor.User != nil {
		if actor.User.ID == target {
			return allow()
		}
		return deny(reasonNotPermitted)
	}
	return requireAdmin(actor, perm)
}

func requireHeld(actor domain.Principal, perms domain.PermissionSet) Decision {
	if actor.Admin == nil || !actor.Admin.Permissions.Contains(perms) {
		return deny(reasonEscalation)
	}
	return allow()
}

// KeepsAnEmail denies removing the last address of target.
func KeepsAnEmail(target domain.Identity, email string) Decision {
	if !target.HasEmail(email) {
		return allow()
	}
	if len(target.Emails) <= 1 {
		return deny(reasonLastEmail)
	}
	return allow()
}
