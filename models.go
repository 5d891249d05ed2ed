package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the account model
type Account struct {
	bun.BaseModel       `bun:"table:accounts,alias:acc"`
	ID                  uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Username            string     `bun:"username,notnull,unique" json:"username"`
	Email               string     `bun:"email,notnull,unique" json:"email"`
	FirstName           string     `bun:"first_name" json:"first_name,omitempty"`
	LastName            string     `bun:"last_name" json:"last_name,omitempty"`
	PasswordHash        string     `bun:"password_hash,notnull" json:"-"`
	Roles               []Role     `bun:"roles" json:"roles"`
	Active              bool       `bun:"active,notnull" json:"active"`
	Enabled             bool       `bun:"enabled,notnull" json:"enabled"`
	Locked              bool       `bun:"locked,notnull" json:"locked"`
	FailedLoginAttempts int        `bun:"failed_login_attempts,notnull" json:"failed_login_attempts"`
	LastLoginAt         *time.Time `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	CreatedAt           time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt           time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// CanLogin reports whether the account flags allow a login attempt.
func (a *Account) CanLogin() bool {
	return a != nil && a.Active && a.Enabled && !a.Locked
}

// HasRole checks if the account has a specific role
func (a *Account) HasRole(role Role) bool {
	return a != nil && hasRole(a.Roles, role)
}

// LockoutState projects the brute force counter of the account.
func (a *Account) LockoutState() LockoutState {
	return LockoutState{
		FailedAttempts: a.FailedLoginAttempts,
		Locked:         a.Locked,
	}
}

// ApplyLockout writes a lockout state back to the record.
func (a *Account) ApplyLockout(s LockoutState) {
	a.FailedLoginAttempts = s.FailedAttempts
	a.Locked = s.Locked
}

// Snapshot returns the public view of the account.
func (a *Account) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		ID:        a.ID,
		Username:  a.Username,
		Email:     a.Email,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		Roles:     cloneRoles(a.Roles),
	}
}

// AccountSnapshot is the account data returned with a session.
type AccountSnapshot struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Roles     []Role    `json:"roles"`
}
