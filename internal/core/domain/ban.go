package domain

import (
	"time"

	"github.com/google/uuid"
)

// Ban denies login to a principal, optionally until an expiration instant.
type Ban struct {
	SubjectID uuid.UUID
	Reason    string
	Expires   *time.Time
}

// Active reports whether the ban denies login at the supplied instant.
// A ban without expiration is permanent; an expired ban is inert.
func (b Ban) Active(at time.Time) bool {
	if b.Expires == nil {
		return true
	}
	return b.Expires.After(at)
}
