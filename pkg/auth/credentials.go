package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/workdesk/accessd/pkg/observability"
)

// CredentialVerifier checks a username and secret and identifies the user
type CredentialVerifier interface {
	Verify(ctx context.Context, username, secret string) (*Principal, error)
}

// HashPassword returns the bcrypt hash of password at cost, or bcrypt.DefaultCost when cost is 0
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// SQLCredentialVerifier verifies logins against the users table
type SQLCredentialVerifier struct {
	db         *sql.DB
	bcryptCost int
	logger     *observability.Logger

	// compared against when the user does not exist so unknown and known
	// usernames take the same time to reject
	dummyHash []byte
}

// NewSQLCredentialVerifier creates a verifier over db
func NewSQLCredentialVerifier(db *sql.DB, bcryptCost int, logger *observability.Logger) *SQLCredentialVerifier {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("accessd-dummy-password"), bcryptCost)
	return &SQLCredentialVerifier{db: db, bcryptCost: bcryptCost, logger: logger, dummyHash: dummy}
}

// Verify returns the principal for valid credentials. The log records why a
// login failed; the caller only sees ErrInvalidCredentials or ErrInactiveUser.
func (v *SQLCredentialVerifier) Verify(ctx context.Context, username, secret string) (*Principal, error) {
	username = strings.TrimSpace(username)
	if username == "" || secret == "" {
		return nil, ErrInvalidCredentials
	}

	query := `
		SELECT id, username, password_hash, display_name, email, active
		FROM users
		WHERE username = $1
	`

	var (
		principal Principal
		hash      string
		active    bool
	)
	err := v.db.QueryRowContext(ctx, query, username).Scan(
		&principal.UserID, &principal.Username, &hash, &principal.DisplayName, &principal.Email, &active,
	)
	if errors.Is(err, sql.ErrNoRows) {
		_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(secret))
		v.logger.WithFields(map[string]interface{}{
			"username": username,
			"reason":   "unknown_user",
		}).Info("Login rejected")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %q: %w", username, err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)); err != nil {
		v.logger.WithFields(map[string]interface{}{
			"username": username,
			"user_id":  principal.UserID,
			"reason":   "bad_password",
		}).Info("Login rejected")
		return nil, ErrInvalidCredentials
	}

	if !active {
		v.logger.WithFields(map[string]interface{}{
			"username": username,
			"user_id":  principal.UserID,
			"reason":   "inactive_user",
		}).Info("Login rejected")
		return nil, ErrInactiveUser
	}

	return &principal, nil
}

// CreateUser inserts a user with a bcrypt hashed password and returns its id
func (v *SQLCredentialVerifier) CreateUser(ctx context.Context, username, password, displayName, email string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, errors.New("username is required")
	}

	hash, err := HashPassword(password, v.bcryptCost)
	if err != nil {
		return 0, err
	}

	query := `
		INSERT INTO users (username, password_hash, display_name, email, active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING id
	`

	var id int64
	if err := v.db.QueryRowContext(ctx, query, username, hash, displayName, email).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to create user %q: %w", username, err)
	}
	return id, nil
}

// SetUserActive enables or disables a login account
func (v *SQLCredentialVerifier) SetUserActive(ctx context.Context, userID int64, active bool) error {
	result, err := v.db.ExecContext(ctx, `UPDATE users SET active = $1 WHERE id = $2`, active, userID)
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", userID, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", userID, err)
	}
	if n == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}
