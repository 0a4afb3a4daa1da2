package types

import "time"

// Role is the on-chain role a user requests at signup.
type Role string

const (
	RoleNGO      Role = "NGO"
	RoleVerifier Role = "Verifier"
	RoleAdmin    Role = "Admin"
)

// Valid reports whether the role is one of the known role requests.
func (r Role) Valid() bool {
	switch r {
	case RoleNGO, RoleVerifier, RoleAdmin:
		return true
	}
	return false
}

// Status is the review state of a signup request. The only defined
// transitions are pending -> approved and pending -> rejected.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// User represents an account in the registry.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Name is the user's display or full name.
	Name string `json:"name" db:"name"`

	// Email is the user's email address, unique across accounts.
	Email string `json:"email" db:"email"`

	// Role is the on-chain role requested at signup. It is immutable
	// after the account is created.
	Role Role `json:"role" db:"role"`

	// Status tracks the admin review of the signup request.
	Status Status `json:"status" db:"status"`

	// Wallet is the linked wallet address, empty until the user proves
	// ownership of one. Unique across accounts when set.
	Wallet string `json:"wallet,omitempty" db:"wallet"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Principal is the authenticated identity attached to a session. It is a
// snapshot of the account taken at authentication time and may go stale
// until re-authentication or an explicit profile refetch.
type Principal struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	Status Status `json:"status"`
	Wallet string `json:"wallet,omitempty"`
}

// PrincipalFromUser captures a session snapshot of the given account.
func PrincipalFromUser(u User) Principal {
	return Principal{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Role:   u.Role,
		Status: u.Status,
		Wallet: u.Wallet,
	}
}
