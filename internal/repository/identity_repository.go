package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
)

// Credential mirrors the 'auth_identities' table.  It is owned by the
// identity provider; nothing outside internal/identity reads PasswordHash.
type Credential struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type CredentialRepo struct{ DB *sql.DB }

func NewCredentialRepo(db *sql.DB) *CredentialRepo { return &CredentialRepo{DB: db} }

// Create inserts a credential row with an already hashed password.
func (r *CredentialRepo) Create(ctx context.Context, id, email, passwordHash string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO auth_identities (id, email, password_hash) VALUES (?,?,?)",
		id, email, passwordHash)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrEmailExists
		}
		return err
	}
	return nil
}

// GetByEmail fetches a credential by normalized email.
func (r *CredentialRepo) GetByEmail(ctx context.Context, email string) (Credential, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var c Credential
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,is_active,created_at,updated_at FROM auth_identities WHERE email=? LIMIT 1",
		email).Scan(&c.ID, &c.Email, &c.PasswordHash, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	return c, err
}

// GetByID fetches a credential by id.
func (r *CredentialRepo) GetByID(ctx context.Context, id string) (Credential, error) {
	var c Credential
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,email,password_hash,is_active,created_at,updated_at FROM auth_identities WHERE id=? LIMIT 1",
		id).Scan(&c.ID, &c.Email, &c.PasswordHash, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	return c, err
}

// UpdatePassword replaces the password hash of the account with the given email.
func (r *CredentialRepo) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"UPDATE auth_identities SET password_hash=? WHERE email=?",
		passwordHash, email)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
