package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/repository"
)

// squirrel.Eq resolves driver.Valuer arguments, so ids compared with Eq reach the
// driver as strings while Values and Expr arguments keep their uuid.UUID type.
var identityRowColumns = []string{"id", "name", "real_name", "password_algo", "password_hash", "time_created", "time_updated", "emails"}

func newMockTx(t *testing.T) (pgxmock.PgxPoolIface, *Tx) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	t.Cleanup(mock.Close)

	mock.ExpectBegin()
	tx, err := newStore(mock).Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	return mock, tx.(*Tx)
}

func sampleUser(now time.Time) domain.User {
	return domain.User{Identity: domain.Identity{
		ID:        uuid.MustParse("0190f3a4-0000-7000-8000-000000000001"),
		Name:      "alice",
		RealName:  "Alice Liddell",
		Emails:    []string{"alice@example.com", "a@example.org"},
		Password:  domain.Credential{Algorithm: "argon2id", Hash: "hash"},
		CreatedAt: now,
		UpdatedAt: now,
	}}
}

func TestUserQueries_CreateWritesRowAndEmails(t *testing.T) {
	mock, tx := newMockTx(t)
	now := time.Date(2024, 6, 3, 8, 30, 0, 0, time.UTC)
	user := sampleUser(now)

	mock.ExpectExec(`INSERT INTO identity\.users`).
		WithArgs(user.ID, user.Name, user.RealName, "argon2id", "hash", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO identity\.emails`).
		WithArgs("alice@example.com", user.ID, "user", 0, "a@example.org", user.ID, "user", 1).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	if err := tx.Users().Create(context.Background(), user); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := tx.Commit(context.Background()); err != nil {
		t.Fatalf("Commit returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUserQueries_DuplicateEmailMapsToUnique(t *testing.T) {
	mock, tx := newMockTx(t)
	now := time.Date(2024, 6, 3, 8, 30, 0, 0, time.UTC)
	user := sampleUser(now)

	mock.ExpectExec(`INSERT INTO identity\.users`).
		WithArgs(user.ID, user.Name, user.RealName, "argon2id", "hash", now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO identity\.emails`).
		WithArgs("alice@example.com", user.ID, "user", 0, "a@example.org", user.ID, "user", 1).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "emails_pkey"})

	err := tx.Users().Create(context.Background(), user)
	if !errors.Is(err, repository.ErrUnique) {
		t.Fatalf("expected ErrUnique, got %v", err)
	}
}

func TestUserQueries_GetByName(t *testing.T) {
	mock, tx := newMockTx(t)
	now := time.Date(2024, 6, 3, 8, 30, 0, 0, time.UTC)
	user := sampleUser(now)

	rows := pgxmock.NewRows(identityRowColumns).
		AddRow(user.ID, user.Name, user.RealName, "argon2id", "hash", now, now, user.Emails)
	mock.ExpectQuery(`FROM identity\.users p WHERE lower\(p\.name\) = lower\(\$1\)`).
		WithArgs("ALICE").
		WillReturnRows(rows)

	got, err := tx.Users().GetByName(context.Background(), "ALICE")
	if err != nil {
		t.Fatalf("GetByName returned error: %v", err)
	}
	if got.ID != user.ID || got.PrimaryEmail() != "alice@example.com" || len(got.Emails) != 2 {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestUserQueries_GetMissing(t *testing.T) {
	mock, tx := newMockTx(t)
	id := uuid.New()

	mock.ExpectQuery(`FROM identity\.users p WHERE p\.id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(pgxmock.NewRows(identityRowColumns))

	if _, err := tx.Users().Get(context.Background(), id); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAdminQueries_ScansPermissions(t *testing.T) {
	mock, tx := newMockTx(t)
	now := time.Date(2024, 6, 3, 8, 30, 0, 0, time.UTC)
	id := uuid.New()

	rows := pgxmock.NewRows(append(identityRowColumns, "permissions")).
		AddRow(id, "root", "", "argon2id", "hash", now, now, []string{"root@example.com"}, []string{"USER_READ", "AUDIT_READ"})
	mock.ExpectQuery(`SELECT .*p\.permissions FROM identity\.admins p WHERE p\.id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(rows)

	admin, err := tx.Admins().Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !admin.Permissions.Has(domain.PermUserRead) || !admin.Permissions.Has(domain.PermAuditRead) || len(admin.Permissions) != 2 {
		t.Fatalf("unexpected permissions: %v", admin.Permissions.Strings())
	}
}

func TestUserQueries_SearchResumesAfterSeekKey(t *testing.T) {
	mock, tx := newMockTx(t)
	last := uuid.New()
	params := domain.SearchParameters{
		Ordering: domain.Ordering{Column: domain.ColumnName, Ascending: false},
		Limit:    2,
	}

	mock.ExpectQuery(`WHERE \(1=1\) AND \(p\.name COLLATE "C", p\.id\) < \(\$1, \$2\) ORDER BY p\.name COLLATE "C" DESC, p\.id DESC LIMIT 2`).
		WithArgs("mallory", last).
		WillReturnRows(pgxmock.NewRows(identityRowColumns))

	users, err := tx.Users().Search(context.Background(), params, domain.SeekKey{"mallory", last})
	if err != nil {
		t.Fatalf("Search returned error: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected no users, got %d", len(users))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSearch_NullSeekValueIsRejected(t *testing.T) {
	mock, tx := newMockTx(t)
	params := domain.SearchParameters{Ordering: domain.Ordering{Column: domain.ColumnTime, Ascending: true}}

	_, err := tx.Audit().Search(context.Background(), params, domain.SeekKey{nil, "01J0000000000000000000000"})
	if !errors.Is(err, repository.ErrNullOrdering) {
		t.Fatalf("expected ErrNullOrdering, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected statements issued: %v", err)
	}
}

func TestAuditQueries_CountAppliesFilters(t *testing.T) {
	mock, tx := newMockTx(t)
	lower := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	params := domain.SearchParameters{Query: "50%", TimeCreated: domain.TimeRange{Lower: lower}}

	mock.ExpectQuery(`SELECT count\(\*\) FROM identity\.audit_events a WHERE \(a\.time >= \$1 AND \(a\.type ILIKE \$2 OR a\.message ILIKE \$3\)\)`).
		WithArgs(lower, `%50\%%`, `%50\%%`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := tx.Audit().Count(context.Background(), params)
	if err != nil {
		t.Fatalf("Count returned error: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7, got %d", n)
	}
}

func TestLoginQueries_AppendTrimsHistory(t *testing.T) {
	mock, tx := newMockTx(t)
	record := domain.LoginRecord{SubjectID: uuid.New(), Time: time.Now().UTC(), Host: "198.51.100.10", UserAgent: "curl"}

	mock.ExpectExec(`INSERT INTO identity\.login_records`).
		WithArgs(record.SubjectID, record.Time, record.Host, record.UserAgent).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`DELETE FROM identity\.login_records WHERE subject_id = \$1 AND seq NOT IN`).
		WithArgs(record.SubjectID.String(), record.SubjectID, 10).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := tx.LoginRecords().Append(context.Background(), record, 10); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestChallengeQueries_DeleteMatchingReportsCount(t *testing.T) {
	mock, tx := newMockTx(t)
	owner := uuid.New()

	mock.ExpectExec(`DELETE FROM identity\.email_challenges`).
		WithArgs("new@example.com", "EMAIL_ADD", owner.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	n, err := tx.EmailChallenges().DeleteMatching(context.Background(), owner, domain.EmailOperationAdd, "new@example.com")
	if err != nil {
		t.Fatalf("DeleteMatching returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 deleted, got %d", n)
	}
}

func TestBanQueries_DeleteMissing(t *testing.T) {
	mock, tx := newMockTx(t)
	subject := uuid.New()

	mock.ExpectExec(`DELETE FROM identity\.bans`).
		WithArgs(subject.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectRollback()

	if err := tx.Bans().Delete(context.Background(), subject); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := tx.Rollback(context.Background()); err != nil {
		t.Fatalf("Rollback returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
