package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditEvent is an append-only record of a security relevant action.
type AuditEvent struct {
	ID      string
	ActorID uuid.UUID
	Time    time.Time
	Type    string
	Message string
}

// Audit event types.
const (
	AuditUserLoggedIn          = "USER_LOGGED_IN"
	AuditAdminLoggedIn         = "ADMIN_LOGGED_IN"
	AuditUserCreated           = "USER_CREATED"
	AuditUserDeleted           = "USER_DELETED"
	AuditUserUpdated           = "USER_UPDATED"
	AuditUserBanned            = "USER_BANNED"
	AuditUserUnbanned          = "USER_BAN_REMOVED"
	AuditUserEmailAdded        = "USER_EMAIL_ADDED"
	AuditUserEmailRemoved      = "USER_EMAIL_REMOVED"
	AuditUserPasswordChanged   = "USER_PASSWORD_CHANGED"
	AuditUserPasswordReset     = "USER_PASSWORD_RESET"
	AuditUserPasswordResetSent = "USER_PASSWORD_RESET_REQUESTED"
	AuditEmailChallengeCreated = "EMAIL_VERIFICATION_CREATED"
	AuditEmailChallengePermit  = "EMAIL_VERIFICATION_PERMITTED"
	AuditEmailChallengeDeny    = "EMAIL_VERIFICATION_DENIED"
	AuditAdminCreated          = "ADMIN_CREATED"
	AuditAdminDeleted          = "ADMIN_DELETED"
	AuditAdminBanned           = "ADMIN_BANNED"
	AuditAdminUnbanned         = "ADMIN_BAN_REMOVED"
	AuditAdminEmailAdded       = "ADMIN_EMAIL_ADDED"
	AuditAdminEmailRemoved     = "ADMIN_EMAIL_REMOVED"
	AuditAdminPasswordChanged  = "ADMIN_PASSWORD_CHANGED"
	AuditAdminPermissionGrant  = "ADMIN_PERMISSION_GRANTED"
	AuditAdminPermissionRevoke = "ADMIN_PERMISSION_REVOKED"
)
