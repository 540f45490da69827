package domain

import "fmt"

// Role gates access to admin-only and driver-only operations.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleDriver Role = "driver"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch v := Role(s); v {
	case RoleAdmin, RoleDriver:
		return v, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// User is a stored account. PasswordHash is a bcrypt digest.
type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Role         Role   `json:"role"`
	PasswordHash string `json:"passwordHash"`
}

// Identity is the session-facing view of a user.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Identity strips credentials from the user.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role}
}
