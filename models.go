package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role. The set is closed: anything that is not
// an admin or a student is rejected at the boundary.
type UserRole string

const (
	// RoleAdmin has full read/write/delete authority over all users
	RoleAdmin UserRole = "admin"
	// RoleStudent is limited to its own profile
	RoleStudent UserRole = "student"
)

// User is the user model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Name           string     `bun:"name,notnull" json:"name,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	LoginAttempts  int        `bun:"login_attempts" json:"-"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"-"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"-"`
}

// PublicUser is the sanitized view of a User. It is the only shape that
// crosses the HTTP boundary; it never carries credential material.
type PublicUser struct {
	ID        uuid.UUID  `json:"id"`
	Role      UserRole   `json:"user_role"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Public returns the sanitized view of the user
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		ID:        u.ID,
		Role:      u.Role,
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// PublicUsers maps a slice of users to their sanitized views, keeping order.
func PublicUsers(users []*User) []*PublicUser {
	out := make([]*PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out
}

// UserUpdate holds the partial update fields for a user. Nil means
// "leave unchanged".
type UserUpdate struct {
	Name  *string
	Email *string
}

// IsZero reports whether the update carries no fields at all
func (u UserUpdate) IsZero() bool {
	return u.Name == nil && u.Email == nil
}
