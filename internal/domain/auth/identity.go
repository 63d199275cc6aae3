package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zime-ai/nucleus/internal/infra/sqlite"
	pkgauth "github.com/zime-ai/nucleus/pkg/auth"
	"github.com/zime-ai/nucleus/pkg/uuid"
)

// Provider names accepted by SignIn.
const (
	ProviderToken    = "token"
	ProviderPassword = "password"
)

// Credentials carries whatever the chosen provider needs.
type Credentials struct {
	Provider string
	IDToken  string
	Email    string
	Password string
}

// Identity is a user vouched for by an identity provider.
type Identity struct {
	Email    string
	Name     string
	Provider string
}

// IdentityProvider verifies credentials. It does not apply the domain allowlist.
type IdentityProvider interface {
	Name() string
	Authenticate(ctx context.Context, creds Credentials) (*Identity, error)
}

// ===== ID TOKEN PROVIDER =====

// TokenProvider accepts ID tokens issued by the third-party identity provider.
type TokenProvider struct {
	verifier *pkgauth.IDTokenVerifier
}

// NewTokenProvider wraps an ID token verifier.
func NewTokenProvider(verifier *pkgauth.IDTokenVerifier) *TokenProvider {
	return &TokenProvider{verifier: verifier}
}

func (p *TokenProvider) Name() string { return ProviderToken }

func (p *TokenProvider) Authenticate(_ context.Context, creds Credentials) (*Identity, error) {
	claims, err := p.verifier.Verify(creds.IDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	return &Identity{Email: normalizeEmail(claims.Email), Name: claims.Name, Provider: ProviderToken}, nil
}

// ===== LOCAL STAFF ACCOUNTS =====

// ErrAccountExists is returned by CreateAccount for a duplicate email.
var ErrAccountExists = errors.New("staff account already exists")

// Account is a local staff account.
type Account struct {
	ID          string
	Email       string
	DisplayName string
	Status      string
	CreatedAt   time.Time
}

// PasswordProvider authenticates local staff accounts with bcrypt hashes.
type PasswordProvider struct {
	db *sql.DB
}

// NewPasswordProvider returns a provider backed by the staff_account table.
func NewPasswordProvider(db *sql.DB) *PasswordProvider {
	return &PasswordProvider{db: db}
}

func (p *PasswordProvider) Name() string { return ProviderPassword }

// Authenticate always answers ErrInvalidCredentials on failure, so callers
// cannot tell an unknown email from a wrong password.
func (p *PasswordProvider) Authenticate(ctx context.Context, creds Credentials) (*Identity, error) {
	email := normalizeEmail(creds.Email)
	if email == "" || creds.Password == "" {
		return nil, ErrInvalidCredentials
	}

	var hash, displayName sql.NullString
	err := p.db.QueryRowContext(ctx, `
		SELECT password_hash, display_name
		FROM staff_account
		WHERE email = ? AND status = 'active'
		LIMIT 1
	`, email).Scan(&hash, &displayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load staff account: %w", err)
	}
	if !hash.Valid || !pkgauth.VerifyPassword(hash.String, creds.Password) {
		return nil, ErrInvalidCredentials
	}

	return &Identity{Email: email, Name: displayName.String, Provider: ProviderPassword}, nil
}

// CreateAccount stores a new active staff account.
func (p *PasswordProvider) CreateAccount(ctx context.Context, email, password, displayName string) (*Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	acct := &Account{ID: uuid.NewV7(), Email: email, DisplayName: displayName, Status: "active", CreatedAt: now}
	ts := now.Format(time.RFC3339)
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO staff_account (id, email, password_hash, display_name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'active', ?, ?)
	`, acct.ID, acct.Email, hash, displayName, ts, ts)
	if sqlite.IsUniqueViolation(err) {
		return nil, ErrAccountExists
	}
	if err != nil {
		return nil, fmt.Errorf("create staff account: %w", err)
	}
	return acct, nil
}

// DisableAccount blocks further password sign-ins for email and revokes its
// open sessions. It returns the number of sessions revoked.
func (p *PasswordProvider) DisableAccount(ctx context.Context, email string) (int64, error) {
	email = normalizeEmail(email)
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("disable staff account: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
		UPDATE staff_account SET status = 'disabled', updated_at = ? WHERE email = ?
	`, now, email)
	if err != nil {
		return 0, fmt.Errorf("disable staff account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, sql.ErrNoRows
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE staff_session SET revoked_at = ? WHERE email = ? AND revoked_at IS NULL
	`, now, email)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	revoked, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit disable staff account: %w", err)
	}
	return revoked, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
