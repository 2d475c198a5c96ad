package types

import "time"

// User represents an account in the system.
// It contains identity, permissions, and audit metadata.
type User struct {
	// ID is the unique identifier of the user.
	ID string `json:"id" db:"id"`

	// Name is the user's display name.
	Name string `json:"nombre" db:"nombre"`

	// Email is the user's email address, stored lowercased so that
	// uniqueness checks are case-insensitive.
	Email string `json:"correo" db:"correo"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Permissions is the list of permission tokens granted to the user.
	// Assigning a role replaces the whole list with that role's fixed
	// bundle; administrators may also grant individual tokens.
	Permissions []string `json:"permisos" db:"permisos"`

	// Disabled marks the account as soft-deleted. Disabled users cannot
	// authenticate and are excluded from lookups.
	Disabled bool `json:"inhabilitado" db:"inhabilitado"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"creado_en" db:"creado_en"`

	// UpdatedAt is the timestamp of the most recent update to the account.
	UpdatedAt time.Time `json:"actualizado_en" db:"actualizado_en"`
}
