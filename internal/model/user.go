package model

import "time"

// User represents an application user record as stored in the `users`
// table.  Only the fields needed to authenticate buyers are kept.
type User struct {
	ID           uint64    `db:"id"`            // users.id
	Email        string    `db:"email"`         // users.email
	PasswordHash string    `db:"password_hash"` // users.password_hash
	Role         string    `db:"role"`          // users.role (CUSTOMER, STAFF)
	IsActive     bool      `db:"is_active"`     // users.is_active
	CreatedAt    time.Time `db:"created_at"`    // users.created_at
}
