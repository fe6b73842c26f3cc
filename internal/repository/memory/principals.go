package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/repository"
)

type userQueries struct{ tx *Tx }

func (q userQueries) Create(_ context.Context, user domain.User) error {
	q.tx.write()
	d := q.tx.data
	if _, exists := d.users[user.ID]; exists {
		return fmt.Errorf("%w: user id", repository.ErrUnique)
	}
	for _, u := range d.users {
		if strings.EqualFold(u.Name, user.Name) {
			return fmt.Errorf("%w: user name %q", repository.ErrUnique, user.Name)
		}
	}
	if err := d.checkEmails(user.Identity); err != nil {
		return err
	}
	d.users[user.ID] = copyUser(user)
	return nil
}

func (q userQueries) Get(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := q.tx.data.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyUser(u)
	return &out, nil
}

func (q userQueries) GetByName(_ context.Context, name string) (*domain.User, error) {
	for _, u := range q.tx.data.users {
		if strings.EqualFold(u.Name, name) {
			out := copyUser(u)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (q userQueries) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range q.tx.data.users {
		if u.HasEmail(email) {
			out := copyUser(u)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (q userQueries) Update(_ context.Context, user domain.User) error {
	q.tx.write()
	d := q.tx.data
	if _, ok := d.users[user.ID]; !ok {
		return repository.ErrNotFound
	}
	if err := d.checkEmails(user.Identity); err != nil {
		return err
	}
	d.users[user.ID] = copyUser(user)
	return nil
}

func (q userQueries) Delete(_ context.Context, id uuid.UUID) error {
	q.tx.write()
	d := q.tx.data
	if _, ok := d.users[id]; !ok {
		return repository.ErrNotFound
	}
	delete(d.users, id)
	delete(d.bans, id)
	delete(d.logins, id)
	for cid, c := range d.challenges {
		if c.OwnerID == id {
			delete(d.challenges, cid)
		}
	}
	for rid, r := range d.resets {
		if r.UserID == id {
			delete(d.resets, rid)
		}
	}
	return nil
}

func (q userQueries) Search(_ context.Context, params domain.SearchParameters, seek domain.SeekKey) ([]domain.User, error) {
	rows := make([]domain.User, 0, len(q.tx.data.users))
	for _, u := range q.tx.data.users {
		if matchesIdentity(u.Identity, params) {
			rows = append(rows, copyUser(u))
		}
	}
	return page(rows, params, seek)
}

func (q userQueries) Count(_ context.Context, params domain.SearchParameters) (int64, error) {
	var n int64
	for _, u := range q.tx.data.users {
		if matchesIdentity(u.Identity, params) {
			n++
		}
	}
	return n, nil
}

type adminQueries struct{ tx *Tx }

func (q adminQueries) Create(_ context.Context, admin domain.Admin) error {
	q.tx.write()
	d := q.tx.data
	if _, exists := d.admins[admin.ID]; exists {
		return fmt.Errorf("%w: admin id", repository.ErrUnique)
	}
	for _, a := range d.admins {
		if strings.EqualFold(a.Name, admin.Name) {
			return fmt.Errorf("%w: admin name %q", repository.ErrUnique, admin.Name)
		}
	}
	if err := d.checkEmails(admin.Identity); err != nil {
		return err
	}
	d.admins[admin.ID] = copyAdmin(admin)
	return nil
}

func (q adminQueries) Get(_ context.Context, id uuid.UUID) (*domain.Admin, error) {
	a, ok := q.tx.data.admins[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyAdmin(a)
	return &out, nil
}

func (q adminQueries) GetByName(_ context.Context, name string) (*domain.Admin, error) {
	for _, a := range q.tx.data.admins {
		if strings.EqualFold(a.Name, name) {
			out := copyAdmin(a)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (q adminQueries) GetByEmail(_ context.Context, email string) (*domain.Admin, error) {
	for _, a := range q.tx.data.admins {
		if a.HasEmail(email) {
			out := copyAdmin(a)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (q adminQueries) Update(_ context.Context, admin domain.Admin) error {
	q.tx.write()
	d := q.tx.data
	if _, ok := d.admins[admin.ID]; !ok {
		return repository.ErrNotFound
	}
	if err := d.checkEmails(admin.Identity); err != nil {
		return err
	}
	d.admins[admin.ID] = copyAdmin(admin)
	return nil
}

func (q adminQueries) Delete(_ context.Context, id uuid.UUID) error {
	q.tx.write()
	d := q.tx.data
	if _, ok := d.admins[id]; !ok {
		return repository.ErrNotFound
	}
	delete(d.admins, id)
	delete(d.bans, id)
	delete(d.logins, id)
	for cid, c := range d.challenges {
		if c.OwnerID == id {
			delete(d.challenges, cid)
		}
	}
	return nil
}

func (q adminQueries) Search(_ context.Context, params domain.SearchParameters, seek domain.SeekKey) ([]domain.Admin, error) {
	rows := make([]domain.Admin, 0, len(q.tx.data.admins))
	for _, a := range q.tx.data.admins {
		if matchesIdentity(a.Identity, params) {
			rows = append(rows, copyAdmin(a))
		}
	}
	return page(rows, params, seek)
}

func (q adminQueries) Count(_ context.Context, params domain.SearchParameters) (int64, error) {
	var n int64
	for _, a := range q.tx.data.admins {
		if matchesIdentity(a.Identity, params) {
			n++
		}
	}
	return n, nil
}

func matchesIdentity(i domain.Identity, params domain.SearchParameters) bool {
	if !params.TimeCreated.Contains(i.CreatedAt) || !params.TimeUpdated.Contains(i.UpdatedAt) {
		return false
	}
	query := strings.ToLower(strings.TrimSpace(params.Query))
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(i.Name), query) || strings.Contains(strings.ToLower(i.RealName), query) {
		return true
	}
	for _, email := range i.Emails {
		if strings.Contains(strings.ToLower(email), query) {
			return true
		}
	}
	return false
}
