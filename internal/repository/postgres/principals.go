package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/identity-server/internal/core/domain"
)

const (
	usersTable  = "identity.users"
	adminsTable = "identity.admins"
	emailsTable = "identity.emails"
)

var identityColumns = []string{
	"p.id",
	"p.name",
	"p.real_name",
	"p.password_algo",
	"p.password_hash",
	"p.time_created",
	"p.time_updated",
	"COALESCE((SELECT array_agg(e.email ORDER BY e.position) FROM identity.emails e WHERE e.owner_id = p.id), '{}') AS emails",
}

func identityTargets(i *domain.Identity) []any {
	return []any{&i.ID, &i.Name, &i.RealName, &i.Password.Algorithm, &i.Password.Hash, &i.CreatedAt, &i.UpdatedAt, &i.Emails}
}

func (t *Tx) insertIdentity(ctx context.Context, table string, kind domain.PrincipalKind, i domain.Identity, extraColumns []string, extraValues []any) error {
	columns := append([]string{"id", "name", "real_name", "password_algo", "password_hash", "time_created", "time_updated"}, extraColumns...)
	values := append([]any{i.ID, i.Name, i.RealName, i.Password.Algorithm, i.Password.Hash, i.CreatedAt, i.UpdatedAt}, extraValues...)
	if _, err := t.exec(ctx, "insert "+string(kind), t.builder.Insert(table).Columns(columns...).Values(values...)); err != nil {
		return err
	}
	return t.insertEmails(ctx, kind, i)
}

func (t *Tx) updateIdentity(ctx context.Context, table string, kind domain.PrincipalKind, i domain.Identity, extra map[string]any) error {
	stmt := t.builder.Update(table).
		Set("name", i.Name).
		Set("real_name", i.RealName).
		Set("password_algo", i.Password.Algorithm).
		Set("password_hash", i.Password.Hash).
		Set("time_updated", i.UpdatedAt)
	for column, value := range extra {
		stmt = stmt.Set(column, value)
	}
	if err := expectAffected(t.exec(ctx, "update "+string(kind), stmt.Where(squirrel.Eq{"id": i.ID}))); err != nil {
		return err
	}
	if _, err := t.exec(ctx, "clear emails", t.builder.Delete(emailsTable).Where(squirrel.Eq{"owner_id": i.ID})); err != nil {
		return err
	}
	return t.insertEmails(ctx, kind, i)
}

func (t *Tx) insertEmails(ctx context.Context, kind domain.PrincipalKind, i domain.Identity) error {
	if len(i.Emails) == 0 {
		return nil
	}
	stmt := t.builder.Insert(emailsTable).Columns("email", "owner_id", "owner_kind", "position")
	for pos, email := range i.Emails {
		stmt = stmt.Values(email, i.ID, string(kind), pos)
	}
	_, err := t.exec(ctx, "insert emails", stmt)
	return err
}

// deletePrincipal removes the row and everything keyed by the principal.
func (t *Tx) deletePrincipal(ctx context.Context, table string, kind domain.PrincipalKind, id uuid.UUID) error {
	if err := expectAffected(t.exec(ctx, "delete "+string(kind), t.builder.Delete(table).Where(squirrel.Eq{"id": id}))); err != nil {
		return err
	}
	owned := []squirrel.Sqlizer{
		t.builder.Delete(emailsTable).Where(squirrel.Eq{"owner_id": id}),
		t.builder.Delete(bansTable).Where(squirrel.Eq{"subject_id": id}),
		t.builder.Delete(loginsTable).Where(squirrel.Eq{"subject_id": id}),
		t.builder.Delete(challengesTable).Where(squirrel.Eq{"owner_id": id}),
		t.builder.Delete(resetsTable).Where(squirrel.Eq{"user_id": id}),
	}
	for _, stmt := range owned {
		if _, err := t.exec(ctx, "delete owned records", stmt); err != nil {
			return err
		}
	}
	return nil
}

func byName(name string) squirrel.Sqlizer {
	return squirrel.Expr("lower(p.name) = lower(?)", name)
}

func byEmail(kind domain.PrincipalKind, email string) squirrel.Sqlizer {
	return squirrel.Expr("p.id = (SELECT owner_id FROM identity.emails WHERE email = ? AND owner_kind = ?)", email, string(kind))
}

type userQueries struct{ t *Tx }

func (q userQueries) selectUsers() squirrel.SelectBuilder {
	return q.t.builder.Select(identityColumns...).From(usersTable + " p")
}

func (q userQueries) one(ctx context.Context, where squirrel.Sqlizer) (*domain.User, error) {
	row, err := q.t.queryRow(ctx, "select user", q.selectUsers().Where(where))
	if err != nil {
		return nil, err
	}
	var user domain.User
	if err := row.Scan(identityTargets(&user.Identity)...); err != nil {
		return nil, storageError("scan user", err)
	}
	return &user, nil
}

func (q userQueries) Create(ctx context.Context, user domain.User) error {
	return q.t.insertIdentity(ctx, usersTable, domain.PrincipalUser, user.Identity, nil, nil)
}

func (q userQueries) Get(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return q.one(ctx, squirrel.Eq{"p.id": id})
}

func (q userQueries) GetByName(ctx context.Context, name string) (*domain.User, error) {
	return q.one(ctx, byName(name))
}

func (q userQueries) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return q.one(ctx, byEmail(domain.PrincipalUser, email))
}

func (q userQueries) Update(ctx context.Context, user domain.User) error {
	return q.t.updateIdentity(ctx, usersTable, domain.PrincipalUser, user.Identity, nil)
}

func (q userQueries) Delete(ctx context.Context, id uuid.UUID) error {
	return q.t.deletePrincipal(ctx, usersTable, domain.PrincipalUser, id)
}

func (q userQueries) Search(ctx context.Context, params domain.SearchParameters, seek domain.SeekKey) ([]domain.User, error) {
	stmt, err := seekPage(q.selectUsers().Where(identityFilter(params)), params, identitySortColumns, seek)
	if err != nil {
		return nil, err
	}
	rows, err := q.t.query(ctx, "search users", stmt)
	if err != nil {
		return nil, err
	}
	return collect(rows, "scan users", func(row pgx.CollectableRow) (domain.User, error) {
		var user domain.User
		err := row.Scan(identityTargets(&user.Identity)...)
		return user, err
	})
}

func (q userQueries) Count(ctx context.Context, params domain.SearchParameters) (int64, error) {
	return q.t.count(ctx, "count users", q.t.builder.Select("count(*)").From(usersTable+" p").Where(identityFilter(params)))
}

type adminQueries struct{ t *Tx }

func (q adminQueries) selectAdmins() squirrel.SelectBuilder {
	return q.t.builder.Select(append(identityColumns, "p.permissions")...).From(adminsTable + " p")
}

func scanAdmin(row pgx.Row) (domain.Admin, error) {
	var (
		admin domain.Admin
		perms []string
	)
	if err := row.Scan(append(identityTargets(&admin.Identity), &perms)...); err != nil {
		return domain.Admin{}, err
	}
	admin.Permissions = domain.NewPermissionSet()
	for _, name := range perms {
		p, err := domain.ParsePermission(name)
		if err != nil {
			return domain.Admin{}, fmt.Errorf("admin %s: %w", admin.ID, err)
		}
		admin.Permissions[p] = struct{}{}
	}
	return admin, nil
}

func (q adminQueries) one(ctx context.Context, where squirrel.Sqlizer) (*domain.Admin, error) {
	row, err := q.t.queryRow(ctx, "select admin", q.selectAdmins().Where(where))
	if err != nil {
		return nil, err
	}
	admin, err := scanAdmin(row)
	if err != nil {
		return nil, storageError("scan admin", err)
	}
	return &admin, nil
}

func (q adminQueries) Create(ctx context.Context, admin domain.Admin) error {
	return q.t.insertIdentity(ctx, adminsTable, domain.PrincipalAdmin, admin.Identity,
		[]string{"permissions"}, []any{admin.Permissions.Strings()})
}

func (q adminQueries) Get(ctx context.Context, id uuid.UUID) (*domain.Admin, error) {
	return q.one(ctx, squirrel.Eq{"p.id": id})
}

func (q adminQueries) GetByName(ctx context.Context, name string) (*domain.Admin, error) {
	return q.one(ctx, byName(name))
}

func (q adminQueries) GetByEmail(ctx context.Context, email string) (*domain.Admin, error) {
	return q.one(ctx, byEmail(domain.PrincipalAdmin, email))
}

func (q adminQueries) Update(ctx context.Context, admin domain.Admin) error {
	return q.t.updateIdentity(ctx, adminsTable, domain.PrincipalAdmin, admin.Identity,
		map[string]any{"permissions": admin.Permissions.Strings()})
}

func (q adminQueries) Delete(ctx context.Context, id uuid.UUID) error {
	return q.t.deletePrincipal(ctx, adminsTable, domain.PrincipalAdmin, id)
}

func (q adminQueries) Search(ctx context.Context, params domain.SearchParameters, seek domain.SeekKey) ([]domain.Admin, error) {
	stmt, err := seekPage(q.selectAdmins().Where(identityFilter(params)), params, identitySortColumns, seek)
	if err != nil {
		return nil, err
	}
	rows, err := q.t.query(ctx, "search admins", stmt)
	if err != nil {
		return nil, err
	}
	return collect(rows, "scan admins", func(row pgx.CollectableRow) (domain.Admin, error) {
		return scanAdmin(row)
	})
}

func (q adminQueries) Count(ctx context.Context, params domain.SearchParameters) (int64, error) {
	return q.t.count(ctx, "count admins", q.t.builder.Select("count(*)").From(adminsTable+" p").Where(identityFilter(params)))
}
