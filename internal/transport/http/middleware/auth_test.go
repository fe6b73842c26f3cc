package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/core/domain"
	"github.com/arklim/identity-server/internal/infra/clock"
	"github.com/arklim/identity-server/internal/infra/security"
)

type stubParser struct {
	claims *security.AccessTokenClaims
	err    error
	raw    string
	issuer string
}

func (s *stubParser) ParseAccessToken(raw, issuer string, _ time.Time) (*security.AccessTokenClaims, error) {
	s.raw, s.issuer = raw, issuer
	return s.claims, s.err
}

func serveAuth(t *testing.T, parser *stubParser, header string) (*httptest.ResponseRecorder, *command.PrincipalRef) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var seen *command.PrincipalRef
	router := gin.New()
	router.Use(RequestID(), Authenticate(parser, "identity", clock.NewFake(time.Now())))
	router.POST("/", func(c *gin.Context) {
		seen = GetPrincipal(c)
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr, seen
}

func TestAuthenticateAnonymousPassesThrough(t *testing.T) {
	rr, ref := serveAuth(t, &stubParser{}, "")
	if rr.Code != http.StatusOK || ref != nil {
		t.Fatalf("expected anonymous pass-through, got %d %+v", rr.Code, ref)
	}
}

func TestAuthenticateResolvesPrincipal(t *testing.T) {
	id := uuid.New()
	parser := &stubParser{claims: &security.AccessTokenClaims{PrincipalID: id.String(), Kind: "admin", SessionID: "s-1"}}

	rr, ref := serveAuth(t, parser, "bearer tok")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if parser.raw != "tok" || parser.issuer != "identity" {
		t.Fatalf("parser saw %q for issuer %q", parser.raw, parser.issuer)
	}
	if ref == nil || ref.ID != id || ref.Kind != domain.PrincipalAdmin || ref.SessionID != "s-1" {
		t.Fatalf("unexpected principal %+v", ref)
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	cases := map[string]struct {
		parser *stubParser
		header string
	}{
		"wrong scheme":  {parser: &stubParser{}, header: "Basic abc"},
		"empty token":   {parser: &stubParser{}, header: "Bearer  "},
		"parse failure": {parser: &stubParser{err: errors.New("expired")}, header: "Bearer tok"},
		"unknown kind": {parser: &stubParser{claims: &security.AccessTokenClaims{
			PrincipalID: uuid.NewString(), Kind: "robot", SessionID: "s",
		}}, header: "Bearer tok"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr, ref := serveAuth(t, tc.parser, tc.header)
			if rr.Code != http.StatusUnauthorized || ref != nil {
				t.Fatalf("expected 401 without principal, got %d %+v", rr.Code, ref)
			}
		})
	}
}
