// Package auth holds the credential primitives: bcrypt password hashing,
// session JWTs issued by Nucleus, and verification of identity-provider ID tokens.
// It is a leaf package with no domain dependencies.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// BCryptCost is the work factor for bcrypt.
const BCryptCost = 12

// DefaultSessionTTL is used when a signer is built with a zero TTL.
const DefaultSessionTTL = 24 * time.Hour

var (
	// ErrMissingSecret is returned when a signer or verifier has no key.
	ErrMissingSecret = errors.New("auth: signing secret not configured")
	// ErrInvalidToken covers malformed, expired, or wrongly-signed tokens.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrUnverifiedEmail is returned for ID tokens whose email the provider has not verified.
	ErrUnverifiedEmail = errors.New("auth: email not verified by provider")
)

// ===== BCRYPT =====

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BCryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the bcrypt hash.
// Invalid hashes yield false rather than an error.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ===== SESSION TOKENS =====

// Claims are carried by Nucleus session tokens. The session id travels in
// RegisteredClaims.ID so revocation can be checked server-side.
type Claims struct {
	Email    string `json:"email"`
	Provider string `json:"provider"`
	jwt.RegisteredClaims
}

// SessionSigner issues and parses HS256 session tokens.
type SessionSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionSigner returns a signer for the given secret.
func NewSessionSigner(secret string, ttl time.Duration) (*SessionSigner, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL returns how long issued tokens stay valid.
func (s *SessionSigner) TTL() time.Duration { return s.ttl }

// Issue signs a token for sessionID and email and returns it with its expiry.
func (s *SessionSigner) Issue(sessionID, email, provider string) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)

	claims := &Claims{
		Email:    email,
		Provider: provider,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates a session token and returns its claims.
func (s *SessionSigner) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, s.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.ID == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing session claims", ErrInvalidToken)
	}
	return claims, nil
}

func (s *SessionSigner) keyFunc(*jwt.Token) (interface{}, error) {
	return s.secret, nil
}

// ===== IDENTITY PROVIDER TOKENS =====

// IDTokenClaims is the subset of provider ID token claims Nucleus reads.
type IDTokenClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// IDTokenVerifier checks ID tokens minted by the identity provider
// (or by the identity broker in front of it) with a shared HS256 key.
type IDTokenVerifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewIDTokenVerifier returns a verifier pinned to issuer and audience.
func NewIDTokenVerifier(secret, issuer, audience string) (*IDTokenVerifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &IDTokenVerifier{secret: []byte(secret), issuer: issuer, audience: audience, now: time.Now}, nil
}

// Verify parses the ID token and returns its claims. The email is lowercased.
func (v *IDTokenVerifier) Verify(idToken string) (*IDTokenClaims, error) {
	if idToken == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidToken)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(idToken, &IDTokenClaims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*IDTokenClaims)
	if !ok || !token.Valid || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
	}
	if !claims.EmailVerified {
		return nil, ErrUnverifiedEmail
	}
	claims.Email = strings.ToLower(strings.TrimSpace(claims.Email))
	return claims, nil
}
