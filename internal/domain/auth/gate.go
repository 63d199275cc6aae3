// Package auth is the authentication gate: it signs staff in through an
// identity provider, enforces the email-domain allowlist, and tracks sessions.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domainaudit "github.com/zime-ai/nucleus/internal/domain/audit"
	pkgauth "github.com/zime-ai/nucleus/pkg/auth"
	"github.com/zime-ai/nucleus/pkg/uuid"
)

var (
	// ErrInvalidCredentials is returned when the identity provider rejects the sign-in.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnknownProvider is returned for a provider name that is not configured.
	ErrUnknownProvider = errors.New("unknown identity provider")
	// ErrAccessDenied is returned when the email is outside the allowed domain.
	ErrAccessDenied = errors.New("access denied")
	// ErrSessionInvalid covers bad, expired and revoked session tokens.
	ErrSessionInvalid = errors.New("session invalid")
)

// SessionState is what the client shell renders from.
type SessionState string

const (
	StateLoading         SessionState = "loading"
	StateAuthenticated   SessionState = "authenticated"
	StateUnauthenticated SessionState = "unauthenticated"
)

// Session is an issued sign-in.
type Session struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Provider  string    `json:"provider"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Principal is the authenticated caller of a request.
type Principal struct {
	SessionID string
	Email     string
	Provider  string
}

type auditRecorder interface {
	Record(ctx context.Context, e domainaudit.Entry) error
}

// Gate is the sign-in gate.
type Gate struct {
	db            *sql.DB
	signer        *pkgauth.SessionSigner
	providers     map[string]IdentityProvider
	allowedDomain string
	audit         auditRecorder
	logger        *zap.Logger
	now           func() time.Time
}

// GateOption customizes a Gate.
type GateOption func(*Gate)

// WithAudit records sign-in outcomes.
func WithAudit(a auditRecorder) GateOption {
	return func(g *Gate) { g.audit = a }
}

// WithLogger sets the gate's logger.
func WithLogger(l *zap.Logger) GateOption {
	return func(g *Gate) { g.logger = l }
}

// WithProvider registers an identity provider under its Name.
func WithProvider(p IdentityProvider) GateOption {
	return func(g *Gate) { g.providers[p.Name()] = p }
}

// NewGate builds a gate for allowedDomain (for example "@zime.ai").
func NewGate(db *sql.DB, signer *pkgauth.SessionSigner, allowedDomain string, opts ...GateOption) *Gate {
	g := &Gate{
		db:            db,
		signer:        signer,
		providers:     make(map[string]IdentityProvider),
		allowedDomain: strings.ToLower(allowedDomain),
		logger:        zap.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AllowedDomain returns the configured domain suffix.
func (g *Gate) AllowedDomain() string { return g.allowedDomain }

// EmailAllowed reports whether email ends with the allowed domain suffix.
// The comparison ignores case; domains are case-insensitive.
func EmailAllowed(email, allowedDomain string) bool {
	email = normalizeEmail(email)
	domain := strings.ToLower(allowedDomain)
	return domain != "" && strings.HasSuffix(email, domain) && len(email) > len(domain)
}

// SignIn authenticates through the named provider and, if the email passes
// the domain allowlist, opens a session. A disallowed email is signed out
// immediately: no session is issued and any open sessions for it are revoked.
func (g *Gate) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	provider, ok := g.providers[creds.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, creds.Provider)
	}

	identity, err := provider.Authenticate(ctx, creds)
	if err != nil {
		g.record(ctx, domainaudit.Entry{
			Actor:   actorOrUnknown(creds.Email),
			Action:  domainaudit.ActionSignIn,
			Details: map[string]any{"provider": creds.Provider},
			Outcome: domainaudit.OutcomeError,
		})
		return nil, err
	}

	if !EmailAllowed(identity.Email, g.allowedDomain) {
		if err := g.forceSignOut(ctx, identity); err != nil {
			return nil, err
		}
		return nil, ErrAccessDenied
	}

	sess, err := g.openSession(ctx, identity)
	if err != nil {
		return nil, err
	}
	g.record(ctx, domainaudit.Entry{
		Actor:      identity.Email,
		Action:     domainaudit.ActionSignIn,
		EntityType: "session",
		EntityID:   sess.ID,
		Details:    map[string]any{"provider": identity.Provider},
	})
	return sess, nil
}

// Authenticate resolves a session token to its principal. The domain check
// runs again here so a token minted before an allowlist change stops working.
func (g *Gate) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := g.signer.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionInvalid, err)
	}
	if !EmailAllowed(claims.Email, g.allowedDomain) {
		return nil, ErrAccessDenied
	}

	var email, expiresAt string
	var revokedAt sql.NullString
	err = g.db.QueryRowContext(ctx, `
		SELECT email, expires_at, revoked_at FROM staff_session WHERE id = ?
	`, claims.ID).Scan(&email, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: unknown session", ErrSessionInvalid)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if revokedAt.Valid {
		return nil, fmt.Errorf("%w: revoked", ErrSessionInvalid)
	}
	exp, err := time.Parse(time.RFC3339, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable expiry: %v", ErrSessionInvalid, err)
	}
	if !g.now().Before(exp) {
		return nil, fmt.Errorf("%w: expired", ErrSessionInvalid)
	}
	if !strings.EqualFold(email, claims.Email) {
		return nil, fmt.Errorf("%w: subject mismatch", ErrSessionInvalid)
	}

	return &Principal{SessionID: claims.ID, Email: claims.Email, Provider: claims.Provider}, nil
}

// State reports the session state for token. Any failure reads as unauthenticated.
func (g *Gate) State(ctx context.Context, token string) (SessionState, *Principal) {
	if token == "" {
		return StateUnauthenticated, nil
	}
	p, err := g.Authenticate(ctx, token)
	if err != nil {
		return StateUnauthenticated, nil
	}
	return StateAuthenticated, p
}

// SignOut revokes the principal's session. Signing out twice is not an error.
func (g *Gate) SignOut(ctx context.Context, p *Principal) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE staff_session SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL
	`, g.now().UTC().Format(time.RFC3339), p.SessionID)
	if err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	g.record(ctx, domainaudit.Entry{
		Actor:      p.Email,
		Action:     domainaudit.ActionSignOut,
		EntityType: "session",
		EntityID:   p.SessionID,
	})
	return nil
}

func (g *Gate) openSession(ctx context.Context, id *Identity) (*Session, error) {
	sessionID := uuid.NewV7()
	token, expiresAt, err := g.signer.Issue(sessionID, id.Email, id.Provider)
	if err != nil {
		return nil, err
	}

	_, err = g.db.ExecContext(ctx, `
		INSERT INTO staff_session (id, email, provider, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, id.Email, id.Provider,
		g.now().UTC().Format(time.RFC3339), expiresAt.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	return &Session{ID: sessionID, Email: id.Email, Provider: id.Provider, Token: token, ExpiresAt: expiresAt}, nil
}

func (g *Gate) forceSignOut(ctx context.Context, id *Identity) error {
	res, err := g.db.ExecContext(ctx, `
		UPDATE staff_session SET revoked_at = ? WHERE email = ? AND revoked_at IS NULL
	`, g.now().UTC().Format(time.RFC3339), id.Email)
	if err != nil {
		return fmt.Errorf("forced sign-out: %w", err)
	}
	revoked, _ := res.RowsAffected()

	g.logger.Warn("sign-in outside allowed domain",
		zap.String("email", id.Email),
		zap.String("provider", id.Provider),
		zap.Int64("revoked_sessions", revoked))
	g.record(ctx, domainaudit.Entry{
		Actor:   id.Email,
		Action:  domainaudit.ActionForcedSignOut,
		Details: map[string]any{"provider": id.Provider, "allowed_domain": g.allowedDomain},
		Outcome: domainaudit.OutcomeDenied,
	})
	return nil
}

func (g *Gate) record(ctx context.Context, e domainaudit.Entry) {
	if g.audit == nil {
		return
	}
	if err := g.audit.Record(ctx, e); err != nil {
		g.logger.Error("audit record failed", zap.String("action", e.Action), zap.Error(err))
	}
}

func actorOrUnknown(email string) string {
	if e := normalizeEmail(email); e != "" {
		return e
	}
	return "unknown"
}
