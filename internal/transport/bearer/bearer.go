// Package bearer turns access tokens presented by transports into pipeline principal
// references.
package bearer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/infra/security"
)

var (
	// ErrMalformedHeader is returned for an authorization value that is not "Bearer <token>".
	ErrMalformedHeader = errors.New("bearer: expected 'Bearer <token>'")
	// ErrUnknownKind is returned for a token naming no known principal kind.
	ErrUnknownKind = errors.New("bearer: unknown principal kind")
)

// TokenParser verifies bearer tokens.
type TokenParser interface {
	ParseAccessToken(raw, issuer string, now time.Time) (*security.AccessTokenClaims, error)
}

// FromHeader extracts the token of an Authorization header value.
func FromHeader(value string) (string, error) {
	scheme, token, found := strings.Cut(strings.TrimSpace(value), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedHeader
	}
	return token, nil
}

// Resolve verifies token and returns the principal it asserts.
func Resolve(parser TokenParser, token, issuer string, now time.Time) (*command.PrincipalRef, error) {
	claims, err := parser.ParseAccessToken(token, issuer, now)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(claims.PrincipalID)
	if err != nil {
		return nil, fmt.Errorf("bearer: principal id: %w", err)
	}
	kind := domain.PrincipalKind(claims.Kind)
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	return &command.PrincipalRef{ID: id, Kind: kind, SessionID: claims.SessionID}, nil
}
