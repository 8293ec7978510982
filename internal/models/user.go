package models

import (
	"net/mail"
	"strings"
	"time"
)

// User is a portal account with its role and office resolved.
type User struct {
	ID           int64
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	RoleID       int64
	RoleName     string
	OfficeID     *int64
	OfficeName   *string
	CountryID    *int64
	CreatedAt    time.Time
}

// FullName joins first and last name.
func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// UserSummary is the public view of a user.
type UserSummary struct {
	ID           int64  `json:"id" example:"7"`
	Name         string `json:"name" example:"John Smith"`
	FirstName    string `json:"first_name" example:"John"`
	LastName     string `json:"last_name" example:"Smith"`
	Email        string `json:"email" example:"john.smith@nis.gov.jm"`
	Role         string `json:"role" example:"Officer"`
	Organization string `json:"organization" example:"Kingston Office"`
	Status       string `json:"status" example:"Active"`
}

// Summary builds the public view of u.
func (u *User) Summary() UserSummary {
	org := ""
	if u.OfficeName != nil {
		org = *u.OfficeName
	}
	return UserSummary{
		ID:           u.ID,
		Name:         u.FullName(),
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		Role:         u.RoleName,
		Organization: org,
		Status:       "Active",
	}
}

// LoginInput is the body of POST /auth/login.
type LoginInput struct {
	Email    string `json:"email" example:"admin@nis.gov.bb"`
	Password string `json:"password" example:"secret"`
}

// LoginUser is the user summary returned with a token.
type LoginUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      LoginUser `json:"user"`
}

// CreateUserInput is the body of POST /auth/register and POST /users.
type CreateUserInput struct {
	FirstName string `json:"first_name" example:"John"`
	LastName  string `json:"last_name" example:"Smith"`
	Email     string `json:"email" example:"john.smith@nis.gov.jm"`
	Password  string `json:"password" example:"changeme"`
	Role      string `json:"role,omitempty" example:"Officer"`
}

// Normalize trims whitespace and lower-cases the email.
func (in *CreateUserInput) Normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Role = strings.TrimSpace(in.Role)
}

// Validate reports missing fields, a malformed email and an overlong password.
func (in *CreateUserInput) Validate() error {
	var missing []string
	if in.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if in.LastName == "" {
		missing = append(missing, "last_name")
	}
	if in.Email == "" {
		missing = append(missing, "email")
	}
	if in.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return NewValidationError("Missing required fields", missing...)
	}
	if !ValidEmail(in.Email) {
		return NewValidationError("Invalid email address")
	}
	if len(in.Password) > MaxPasswordBytes {
		return NewValidationError("Password must be at most 72 bytes")
	}
	return nil
}

// MaxPasswordBytes is the longest password bcrypt can hash.
const MaxPasswordBytes = 72

// ValidEmail reports whether addr is a bare address. Display-name forms such
// as "Jane <jane@b.org>" are rejected.
func ValidEmail(addr string) bool {
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return false
	}
	return parsed.Name == "" && parsed.Address == addr
}

// UserCreated is returned after an account is created.
type UserCreated struct {
	ID        int64  `json:"id" example:"7"`
	FirstName string `json:"first_name" example:"John"`
	LastName  string `json:"last_name" example:"Smith"`
	Email     string `json:"email" example:"john.smith@nis.gov.jm"`
	Role      string `json:"role" example:"External Officer"`
}

// UpdateUserInput is the body of PATCH /users/:id. Nil fields are left as is.
type UpdateUserInput struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Email     *string `json:"email,omitempty"`
	Role      *string `json:"role,omitempty"`
}

// Empty reports whether no field was supplied.
func (in *UpdateUserInput) Empty() bool {
	return in.FirstName == nil && in.LastName == nil && in.Email == nil && in.Role == nil
}

// UserUpdate is a resolved partial update ready for the store.
type UserUpdate struct {
	FirstName *string
	LastName  *string
	Email     *string
	RoleID    *int64
}
