package users

import (
	"fmt"
	"net/mail"
	"strings"
)

// RoleType is the role recorded on a user's profile.
type RoleType string

const (
	RoleStudent   RoleType = "student"
	RoleOrganizer RoleType = "organizer"
	RoleAdmin     RoleType = "admin"
)

const minPasswordLength = 6

// Valid reports whether r is one of the known roles.
func (r RoleType) Valid() bool {
	switch r {
	case RoleStudent, RoleOrganizer, RoleAdmin:
		return true
	}
	return false
}

// User is the authenticated principal as reported by the auth backend.
type User struct {
	ID             string   `json:"id"`                   // Backend assigned, stable for the lifetime of the account
	Email          string   `json:"email"`                // Unique, also the admin bypass discriminator
	EmailConfirmed bool     `json:"email_confirmed"`      // Has the user completed email confirmation
	FirstName      string   `json:"first_name,omitempty"` // From sign up metadata
	LastName       string   `json:"last_name,omitempty"`  // From sign up metadata
	Role           RoleType `json:"role,omitempty"`       // Role requested at sign up, not authoritative
}

// Profile is the authorization record for a user held by the data backend.
// The core only ever reads it.
type Profile struct {
	ID   string   `json:"id"`
	Role RoleType `json:"role"`
}

// IsAdmin reports whether the profile grants administrative privileges.
func (p *Profile) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// Metadata is attached to a user at sign up.
type Metadata struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Role      RoleType `json:"role"`
}

// NormaliseEmail lower cases and trims an email address for comparison.
func NormaliseEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SameEmail compares two addresses ignoring case and surrounding space.
func SameEmail(a, b string) bool {
	return a != "" && NormaliseEmail(a) == NormaliseEmail(b)
}

// ValidateEmail checks the address is a bare, well formed email.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// ValidatePassword checks the minimum length the login form enforces.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

// ValidateCredentials runs the login form checks.
func ValidateCredentials(email, password string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	return ValidatePassword(password)
}

// Validate checks the sign up metadata, defaulting an empty role to student.
func (m *Metadata) Validate() error {
	if strings.TrimSpace(m.FirstName) == "" {
		return fmt.Errorf("first name is required")
	}
	if strings.TrimSpace(m.LastName) == "" {
		return fmt.Errorf("last name is required")
	}
	if m.Role == "" {
		m.Role = RoleStudent
	}
	if !m.Role.Valid() {
		return fmt.Errorf("unknown role %q", m.Role)
	}
	return nil
}
