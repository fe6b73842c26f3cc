package security

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"
)

// ErrKeyIDMissing indicates no kid is associated with the supplied key.
var ErrKeyIDMissing = errors.New("jwt: missing key identifier")

// ErrKeyNotRegistered indicates a supplied kid is unknown to the JWT manager.
var ErrKeyNotRegistered = errors.New("jwt: key not registered")

// JWTManager coordinates signing key retrieval and JWKS generation.
type JWTManager struct {
	KeyProvider KeyProvider
	mu          sync.RWMutex
	publicKeys  map[string]*rsa.PublicKey
}

// NewJWTManager constructs a JWTManager for the supplied key provider.
func NewJWTManager(provider KeyProvider) *JWTManager {
	mgr := &JWTManager{
		KeyProvider: provider,
		publicKeys:  make(map[string]*rsa.PublicKey),
	}

	if provider != nil {
		for kid, key := range provider.ListVerificationKeys() {
			_ = mgr.RegisterPublicKey(kid, key)
		}
	}

	return mgr
}

// RegisterPublicKey associates a kid with a public key for JWKS publication and future lookup.
func (m *JWTManager) RegisterPublicKey(kid string, key *rsa.PublicKey) error {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return ErrKeyIDMissing
	}
	if key == nil {
		return fmt.Errorf("jwt: public key for %s is nil", kid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.publicKeys[kid] = key
	return nil
}

// UnregisterPublicKey removes the supplied kid from the JWKS catalogue.
func (m *JWTManager) UnregisterPublicKey(kid string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.publicKeys, strings.TrimSpace(kid))
}

// GetSigningKey retrieves the active signing key from the provider.
func (m *JWTManager) GetSigningKey() (*rsa.PrivateKey, error) {
	if m.KeyProvider == nil {
		return nil, fmt.Errorf("jwt: key provider not configured")
	}
	return m.KeyProvider.GetSigningKey()
}

// GetVerificationKey retrieves a public key by kid.
func (m *JWTManager) GetVerificationKey(kid string) (*rsa.PublicKey, error) {
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return nil, ErrKeyIDMissing
	}

	m.mu.RLock()
	key, ok := m.publicKeys[kid]
	m.mu.RUnlock()
	if ok {
		return key, nil
	}

	if m.KeyProvider != nil {
		fetched, err := m.KeyProvider.GetVerificationKey(kid)
		if err == nil {
			_ = m.RegisterPublicKey(kid, fetched)
			return fetched, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrKeyNotRegistered, kid)
}

// JWKS produces the JSON Web Key Set for registered keys.
func (m *JWTManager) JWKS() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.publicKeys) == 0 {
		return json.Marshal(struct {
			Keys []any `json:"keys"`
		}{Keys: []any{}})
	}

	keys := make([]map[string]string, 0, len(m.publicKeys))
	for kid, key := range m.publicKeys {
		if key == nil {
			continue
		}
		keys = append(keys, buildJWK(kid, key))
	}

	payload := map[string]any{"keys": keys}
	return json.Marshal(payload)
}

func buildJWK(kid string, key *rsa.PublicKey) map[string]string {
	return map[string]string{
		"kty": "RSA",
		"use": "sig",
		"alg": "RS256",
		"kid": kid,
		"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
		"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
	}
}

// AccessTokenClaims binds a bearer token to a principal and the session it was issued for.
type AccessTokenClaims struct {
	PrincipalID string `json:"uid"`
	Kind        string `json:"knd"`
	SessionID   string `json:"sid"`
	jwt.RegisteredClaims
}

// AccessTokenOptions configures creation of access token claims.
type AccessTokenOptions struct {
	PrincipalID string
	Kind        string
	SessionID   string
	Issuer      string
	Audience    []string
	TTL         time.Duration
	IssuedAt    time.Time
	JTI         string
}

const defaultAccessTokenTTL = 15 * time.Minute

// NewAccessTokenClaims constructs standardized access token claims.
func NewAccessTokenClaims(opts AccessTokenOptions) (*AccessTokenClaims, error) {
	principalID := strings.TrimSpace(opts.PrincipalID)
	if principalID == "" {
		return nil, fmt.Errorf("jwt: principal id is required")
	}
	kind := strings.TrimSpace(opts.Kind)
	if kind == "" {
		return nil, fmt.Errorf("jwt: principal kind is required")
	}
	issuer := strings.TrimSpace(opts.Issuer)
	if issuer == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}

	now := opts.IssuedAt
	if now.IsZero() {
		now = time.Now().UTC()
	} else {
		now = now.UTC()
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}

	jti := strings.TrimSpace(opts.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}

	sessionID := strings.TrimSpace(opts.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	return &AccessTokenClaims{
		PrincipalID: principalID,
		Kind:        kind,
		SessionID:   sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principalID,
			Issuer:    issuer,
			Audience:  opts.Audience,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
	}, nil
}

// SignAccessToken signs the provided claims using the active signing key and kid.
func (m *JWTManager) SignAccessToken(kid string, claims *AccessTokenClaims) (string, error) {
	if claims == nil {
		return "", fmt.Errorf("jwt: access token claims required")
	}
	kid = strings.TrimSpace(kid)
	if kid == "" {
		return "", ErrKeyIDMissing
	}

	signingKey, err := m.GetSigningKey()
	if err != nil {
		return "", fmt.Errorf("jwt: get signing key: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}

	return signed, nil
}

// Issue builds claims from opts and signs them with the provider's active key.
func (m *JWTManager) Issue(opts AccessTokenOptions) (string, *AccessTokenClaims, error) {
	if m.KeyProvider == nil {
		return "", nil, fmt.Errorf("jwt: key provider not configured")
	}
	claims, err := NewAccessTokenClaims(opts)
	if err != nil {
		return "", nil, err
	}
	signed, err := m.SignAccessToken(m.KeyProvider.SigningKeyID(), claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseAccessToken verifies the signature and registered claims of raw and returns its claims.
func (m *JWTManager) ParseAccessToken(raw, issuer string, now time.Time) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)

	_, err := parser.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		kid, _ := token.Header["kid"].(string)
		return m.GetVerificationKey(kid)
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}
	if claims.PrincipalID == "" || claims.SessionID == "" {
		return nil, fmt.Errorf("jwt: token missing principal binding")
	}
	return claims, nil
}
