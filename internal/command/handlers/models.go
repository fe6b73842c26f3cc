package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/core/domain"
)

// Command tags understood by the catalog.
const (
	TagUserLogin            command.Tag = "user.login"
	TagAdminLogin           command.Tag = "admin.login"
	TagPasswordResetBegin   command.Tag = "user.password.reset.begin"
	TagPasswordResetConfirm command.Tag = "user.password.reset.confirm"
	TagEmailPermit          command.Tag = "email.permit"
	TagEmailDeny            command.Tag = "email.deny"

	TagUserSelf             command.Tag = "user.self"
	TagUserEmailAddBegin    command.Tag = "user.email.add.begin"
	TagUserEmailRemoveBegin command.Tag = "user.email.remove.begin"
	TagUserRealNameUpdate   command.Tag = "user.realname.update"
	TagUserPasswordUpdate   command.Tag = "user.password.update"
	TagUserLoginHistory     command.Tag = "user.login.history"

	TagAdminSelf             command.Tag = "admin.self"
	TagAdminCreate           command.Tag = "admin.create"
	TagAdminGet              command.Tag = "admin.get"
	TagAdminDelete           command.Tag = "admin.delete"
	TagAdminPermissionGrant  command.Tag = "admin.permission.grant"
	TagAdminPermissionRevoke command.Tag = "admin.permission.revoke"
	TagAdminEmailAdd         command.Tag = "admin.email.add"
	TagAdminEmailRemove      command.Tag = "admin.email.remove"
	TagAdminPasswordUpdate   command.Tag = "admin.password.update"
	TagAdminBanCreate        command.Tag = "admin.ban.create"
	TagAdminBanGet           command.Tag = "admin.ban.get"
	TagAdminBanDelete        command.Tag = "admin.ban.delete"
	TagAdminSearchBegin      command.Tag = "admin.search.begin"
	TagAdminSearchNext       command.Tag = "admin.search.next"
	TagAdminSearchPrevious   command.Tag = "admin.search.previous"

	TagUserCreate          command.Tag = "user.create"
	TagUserGet             command.Tag = "user.get"
	TagUserDelete          command.Tag = "user.delete"
	TagUserUpdate          command.Tag = "user.update"
	TagUserEmailAdd        command.Tag = "user.email.add"
	TagUserEmailRemove     command.Tag = "user.email.remove"
	TagUserBanCreate       command.Tag = "user.ban.create"
	TagUserBanGet          command.Tag = "user.ban.get"
	TagUserBanDelete       command.Tag = "user.ban.delete"
	TagUserSearchBegin     command.Tag = "user.search.begin"
	TagUserSearchNext      command.Tag = "user.search.next"
	TagUserSearchPrevious  command.Tag = "user.search.previous"
	TagUserLoginHistoryGet command.Tag = "user.login.history.get"

	TagAuditSearchBegin    command.Tag = "audit.search.begin"
	TagAuditSearchNext     command.Tag = "audit.search.next"
	TagAuditSearchPrevious command.Tag = "audit.search.previous"
)

// Target addresses an existing principal by id.
type Target struct {
	ID uuid.UUID `json:"id"`
}

// Credentials is a name and password pair.
type Credentials struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// EmailTarget addresses one email of a principal.
type EmailTarget struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

// BanRequest describes a ban to place. A nil Expires bans permanently.
type BanRequest struct {
	ID      uuid.UUID  `json:"id"`
	Reason  string     `json:"reason"`
	Expires *time.Time `json:"expires,omitempty"`
}

// SearchRequest describes a principal or audit search.
type SearchRequest struct {
	Query         string     `json:"query,omitempty"`
	Column        string     `json:"column,omitempty"`
	Descending    bool       `json:"descending,omitempty"`
	Limit         int        `json:"limit,omitempty"`
	CreatedAfter  *time.Time `json:"created_after,omitempty"`
	CreatedBefore *time.Time `json:"created_before,omitempty"`
	UpdatedAfter  *time.Time `json:"updated_after,omitempty"`
	UpdatedBefore *time.Time `json:"updated_before,omitempty"`
}

// Pre-authentication commands.
type (
	UserLogin  struct{ Credentials }
	AdminLogin struct{ Credentials }

	PasswordResetBegin struct {
		Email string `json:"email"`
	}
	PasswordResetConfirm struct {
		Token        string `json:"token"`
		Password     string `json:"password"`
		Confirmation string `json:"confirmation"`
	}

	EmailPermit struct {
		Token     string `json:"token"`
		Operation string `json:"operation"`
	}
	EmailDeny struct {
		Token string `json:"token"`
	}
)

// User self-service commands.
type (
	UserSelf          struct{}
	UserEmailAddBegin struct {
		Email string `json:"email"`
	}
	UserEmailRemoveBegin struct {
		Email string `json:"email"`
	}
	UserRealNameUpdate struct {
		RealName string `json:"real_name"`
	}
	UserPasswordUpdate struct {
		Current      string `json:"current"`
		Password     string `json:"password"`
		Confirmation string `json:"confirmation"`
	}
	UserLoginHistory struct {
		Limit int `json:"limit,omitempty"`
	}
)

// Admin-on-admin commands.
type (
	AdminSelf   struct{}
	AdminCreate struct {
		Name        string   `json:"name"`
		RealName    string   `json:"real_name"`
		Email       string   `json:"email"`
		Password    string   `json:"password"`
		Permissions []string `json:"permissions"`
	}
	AdminGet             struct{ Target }
	AdminDelete          struct{ Target }
	AdminPermissionGrant struct {
		ID          uuid.UUID `json:"id"`
		Permissions []string  `json:"permissions"`
	}
	AdminPermissionRevoke struct {
		ID          uuid.UUID `json:"id"`
		Permissions []string  `json:"permissions"`
	}
	AdminEmailAdd       struct{ EmailTarget }
	AdminEmailRemove    struct{ EmailTarget }
	AdminPasswordUpdate struct {
		ID       uuid.UUID `json:"id"`
		Password string    `json:"password"`
	}
	AdminBanCreate      struct{ BanRequest }
	AdminBanGet         struct{ Target }
	AdminBanDelete      struct{ Target }
	AdminSearchBegin    struct{ SearchRequest }
	AdminSearchNext     struct{}
	AdminSearchPrevious struct{}
)

// Admin-on-user commands.
type (
	UserCreate struct {
		Name     string `json:"name"`
		RealName string `json:"real_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	UserGet    struct{ Target }
	UserDelete struct{ Target }
	UserUpdate struct {
		ID       uuid.UUID `json:"id"`
		Name     *string   `json:"name,omitempty"`
		RealName *string   `json:"real_name,omitempty"`
		Password *string   `json:"password,omitempty"`
	}
	UserEmailAdd        struct{ EmailTarget }
	UserEmailRemove     struct{ EmailTarget }
	UserBanCreate       struct{ BanRequest }
	UserBanGet          struct{ Target }
	UserBanDelete       struct{ Target }
	UserSearchBegin     struct{ SearchRequest }
	UserSearchNext      struct{}
	UserSearchPrevious  struct{}
	UserLoginHistoryGet struct {
		ID    uuid.UUID `json:"id"`
		Limit int       `json:"limit,omitempty"`
	}
)

// Audit commands.
type (
	AuditSearchBegin    struct{ SearchRequest }
	AuditSearchNext     struct{}
	AuditSearchPrevious struct{}
)

func (UserLogin) Tag() command.Tag             { return TagUserLogin }
func (AdminLogin) Tag() command.Tag            { return TagAdminLogin }
func (PasswordResetBegin) Tag() command.Tag    { return TagPasswordResetBegin }
func (PasswordResetConfirm) Tag() command.Tag  { return TagPasswordResetConfirm }
func (EmailPermit) Tag() command.Tag           { return TagEmailPermit }
func (EmailDeny) Tag() command.Tag             { return TagEmailDeny }
func (UserSelf) Tag() command.Tag              { return TagUserSelf }
func (UserEmailAddBegin) Tag() command.Tag     { return TagUserEmailAddBegin }
func (UserEmailRemoveBegin) Tag() command.Tag  { return TagUserEmailRemoveBegin }
func (UserRealNameUpdate) Tag() command.Tag    { return TagUserRealNameUpdate }
func (UserPasswordUpdate) Tag() command.Tag    { return TagUserPasswordUpdate }
func (UserLoginHistory) Tag() command.Tag      { return TagUserLoginHistory }
func (AdminSelf) Tag() command.Tag             { return TagAdminSelf }
func (AdminCreate) Tag() command.Tag           { return TagAdminCreate }
func (AdminGet) Tag() command.Tag              { return TagAdminGet }
func (AdminDelete) Tag() command.Tag           { return TagAdminDelete }
func (AdminPermissionGrant) Tag() command.Tag  { return TagAdminPermissionGrant }
func (AdminPermissionRevoke) Tag() command.Tag { return TagAdminPermissionRevoke }
func (AdminEmailAdd) Tag() command.Tag         { return TagAdminEmailAdd }
func (AdminEmailRemove) Tag() command.Tag      { return TagAdminEmailRemove }
func (AdminPasswordUpdate) Tag() command.Tag   { return TagAdminPasswordUpdate }
func (AdminBanCreate) Tag() command.Tag        { return TagAdminBanCreate }
func (AdminBanGet) Tag() command.Tag           { return TagAdminBanGet }
func (AdminBanDelete) Tag() command.Tag        { return TagAdminBanDelete }
func (AdminSearchBegin) Tag() command.Tag      { return TagAdminSearchBegin }
func (AdminSearchNext) Tag() command.Tag       { return TagAdminSearchNext }
func (AdminSearchPrevious) Tag() command.Tag   { return TagAdminSearchPrevious }
func (UserCreate) Tag() command.Tag            { return TagUserCreate }
func (UserGet) Tag() command.Tag               { return TagUserGet }
func (UserDelete) Tag() command.Tag            { return TagUserDelete }
func (UserUpdate) Tag() command.Tag            { return TagUserUpdate }
func (UserEmailAdd) Tag() command.Tag          { return TagUserEmailAdd }
func (UserEmailRemove) Tag() command.Tag       { return TagUserEmailRemove }
func (UserBanCreate) Tag() command.Tag         { return TagUserBanCreate }
func (UserBanGet) Tag() command.Tag            { return TagUserBanGet }
func (UserBanDelete) Tag() command.Tag         { return TagUserBanDelete }
func (UserSearchBegin) Tag() command.Tag       { return TagUserSearchBegin }
func (UserSearchNext) Tag() command.Tag        { return TagUserSearchNext }
func (UserSearchPrevious) Tag() command.Tag    { return TagUserSearchPrevious }
func (UserLoginHistoryGet) Tag() command.Tag   { return TagUserLoginHistoryGet }
func (AuditSearchBegin) Tag() command.Tag      { return TagAuditSearchBegin }
func (AuditSearchNext) Tag() command.Tag       { return TagAuditSearchNext }
func (AuditSearchPrevious) Tag() command.Tag   { return TagAuditSearchPrevious }

// IdentityView is the client-visible part of a principal.
type IdentityView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	RealName  string    `json:"real_name"`
	Emails    []string  `json:"emails"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserView describes a user.
type UserView struct {
	IdentityView
}

// AdminView describes an admin and its permissions.
type AdminView struct {
	IdentityView
	Permissions []string `json:"permissions"`
}

// BanView describes a ban.
type BanView struct {
	SubjectID uuid.UUID  `json:"subject_id"`
	Reason    string     `json:"reason"`
	Expires   *time.Time `json:"expires,omitempty"`
}

// ChallengeView acknowledges an email challenge without exposing its tokens.
type ChallengeView struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Operation string    `json:"operation"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginView is returned by a successful login.
type LoginView struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	Kind        string    `json:"kind"`
	PrincipalID uuid.UUID `json:"principal_id"`
}

// LoginRecordView describes one past login.
type LoginRecordView struct {
	Time      time.Time `json:"time"`
	Host      string    `json:"host"`
	UserAgent string    `json:"user_agent"`
}

// AuditEventView describes one audit event.
type AuditEventView struct {
	ID      string    `json:"id"`
	ActorID uuid.UUID `json:"actor_id"`
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	Message string    `json:"message"`
}

// PageView is one page of search results.
type PageView[T any] struct {
	Items         []T  `json:"items"`
	Index         int  `json:"index"`
	Count         int  `json:"count"`
	FirstOffset   int  `json:"first_offset"`
	NextAvailable bool `json:"next_available"`
}

// MessageView carries a plain acknowledgement.
type MessageView struct {
	Message string `json:"message"`
}

func identityView(i domain.Identity) IdentityView {
	emails := make([]string, len(i.Emails))
	copy(emails, i.Emails)
	return IdentityView{
		ID:        i.ID,
		Name:      i.Name,
		RealName:  i.RealName,
		Emails:    emails,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

func userView(u domain.User) UserView {
	return UserView{IdentityView: identityView(u.Identity)}
}

func adminView(a domain.Admin) AdminView {
	return AdminView{IdentityView: identityView(a.Identity), Permissions: a.Permissions.Strings()}
}

func banView(b domain.Ban) BanView {
	return BanView{SubjectID: b.SubjectID, Reason: b.Reason, Expires: b.Expires}
}

func challengeView(c domain.EmailChallenge) ChallengeView {
	return ChallengeView{ID: c.ID, Email: c.Email, Operation: string(c.Operation), ExpiresAt: c.ExpiresAt}
}

func loginRecordViews(records []domain.LoginRecord) []LoginRecordView {
	out := make([]LoginRecordView, len(records))
	for i, r := range records {
		out[i] = LoginRecordView{Time: r.Time, Host: r.Host, UserAgent: r.UserAgent}
	}
	return out
}

func auditEventView(e domain.AuditEvent) AuditEventView {
	return AuditEventView{ID: e.ID, ActorID: e.ActorID, Time: e.Time, Type: e.Type, Message: e.Message}
}

func pageView[T, V any](page domain.Page[T], next bool, view func(T) V) PageView[V] {
	items := make([]V, len(page.Items))
	for i, item := range page.Items {
		items[i] = view(item)
	}
	return PageView[V]{
		Items:         items,
		Index:         page.Index,
		Count:         page.Count,
		FirstOffset:   page.FirstOffset,
		NextAvailable: next,
	}
}
