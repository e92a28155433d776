package users

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

const (
	maxEmailLength       = 255
	maxDisplayNameLength = 255
	minPasswordLength    = 8
	maxPasswordLength    = 72 // bcrypt input bound
)

var (
	// ErrInvalidEmail indicates a malformed or oversized email address.
	ErrInvalidEmail = errors.New("users: invalid email")
	// ErrInvalidPassword indicates a password outside the accepted length bounds.
	ErrInvalidPassword = errors.New("users: invalid password")
	// ErrInvalidDisplayName indicates an oversized display name.
	ErrInvalidDisplayName = errors.New("users: invalid display name")
)

// NewEmail normalizes and validates an email address.
func NewEmail(rawInput string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(rawInput))
	if trimmed == "" || len(trimmed) > maxEmailLength {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, rawInput)
	}
	if _, err := mail.ParseAddress(trimmed); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, rawInput)
	}
	return trimmed, nil
}

// NewPassword validates password length bounds.
func NewPassword(rawInput string) (string, error) {
	if len(rawInput) < minPasswordLength {
		return "", fmt.Errorf("%w: shorter than %d characters", ErrInvalidPassword, minPasswordLength)
	}
	if len(rawInput) > maxPasswordLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidPassword, maxPasswordLength)
	}
	return rawInput, nil
}

// NewDisplayName validates an optional display name.
func NewDisplayName(rawInput string) (string, error) {
	trimmed := strings.TrimSpace(rawInput)
	if len(trimmed) > maxDisplayNameLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDisplayName, maxDisplayNameLength)
	}
	return trimmed, nil
}

// Account is one registered user. The user id is the canonical owner
// identifier every workout row is scoped to.
type Account struct {
	UserID           string `gorm:"column:user_id;primaryKey;size:190;not null"`
	Email            string `gorm:"column:email;size:255;not null;uniqueIndex:idx_accounts_email"`
	PasswordHash     string `gorm:"column:password_hash;size:255;not null"`
	DisplayName      string `gorm:"column:display_name;size:255"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Account) TableName() string {
	return "accounts"
}
