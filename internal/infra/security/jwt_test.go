package security

import (
	"encoding/json"
	"testing"
	"time"
)

func newTestJWTManager(t *testing.T) *JWTManager {
	t.Helper()
	provider, err := NewEphemeralKeyProvider(2048)
	if err != nil {
		t.Fatalf("NewEphemeralKeyProvider returned error: %v", err)
	}
	return NewJWTManager(provider)
}

func TestJWTManagerIssueAndParse(t *testing.T) {
	mgr := newTestJWTManager(t)
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	raw, claims, err := mgr.Issue(AccessTokenOptions{
		PrincipalID: "8b6f3c1e-7a0e-4a59-9d43-2f0f5a1f0c11",
		Kind:        "admin",
		Issuer:      "identity-server",
		TTL:         time.Hour,
		IssuedAt:    issuedAt,
	})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if claims.SessionID == "" {
		t.Fatal("expected a generated session id")
	}

	parsed, err := mgr.ParseAccessToken(raw, "identity-server", issuedAt.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("ParseAccessToken returned error: %v", err)
	}
	if parsed.PrincipalID != claims.PrincipalID || parsed.Kind != "admin" || parsed.SessionID != claims.SessionID {
		t.Fatalf("unexpected parsed claims: %+v", parsed)
	}
}

func TestJWTManagerParseRejectsExpiredAndForeignIssuer(t *testing.T) {
	mgr := newTestJWTManager(t)
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	raw, _, err := mgr.Issue(AccessTokenOptions{
		PrincipalID: "user-1",
		Kind:        "user",
		Issuer:      "identity-server",
		TTL:         time.Minute,
		IssuedAt:    issuedAt,
	})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	if _, err := mgr.ParseAccessToken(raw, "identity-server", issuedAt.Add(2*time.Minute)); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
	if _, err := mgr.ParseAccessToken(raw, "someone-else", issuedAt); err == nil {
		t.Fatal("expected foreign issuer to be rejected")
	}
}

func TestJWTManagerParseRejectsUnknownKey(t *testing.T) {
	issuer := newTestJWTManager(t)
	verifier := newTestJWTManager(t)
	now := time.Now().UTC()

	raw, _, err := issuer.Issue(AccessTokenOptions{PrincipalID: "user-1", Kind: "user", Issuer: "identity-server", IssuedAt: now})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := verifier.ParseAccessToken(raw, "identity-server", now); err == nil {
		t.Fatal("expected token signed by another key to be rejected")
	}
}

func TestJWTManagerJWKSPublishesProviderKeys(t *testing.T) {
	mgr := newTestJWTManager(t)

	payload, err := mgr.JWKS()
	if err != nil {
		t.Fatalf("JWKS returned error: %v", err)
	}

	var set struct {
		Keys []map[string]string `json:"keys"`
	}
	if err := json.Unmarshal(payload, &set); err != nil {
		t.Fatalf("decode jwks: %v", err)
	}
	if len(set.Keys) != 1 {
		t.Fatalf("expected one key, got %d", len(set.Keys))
	}
	if set.Keys[0]["kid"] != mgr.KeyProvider.SigningKeyID() || set.Keys[0]["alg"] != "RS256" {
		t.Fatalf("unexpected jwk: %v", set.Keys[0])
	}
}
