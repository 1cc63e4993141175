package model

import (
	"time"

	"carservice-commerce/internal/domain"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser     Role = "USER"
	RoleProvider Role = "PROVIDER"
	RoleAdmin    Role = "ADMIN"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleProvider || r == RoleAdmin
}

// User is the owner of wallets and subscriptions. Profile data lives
// outside this core; only identity and role are tracked here.
type User struct {
	ID        string
	Role      Role
	CreatedAt time.Time
}

func NewUser(id string, role Role) (*User, error) {
	if id == "" {
		id = uuid.NewString()
	}
	switch role {
	case RoleUser, RoleProvider, RoleAdmin:
	case "":
		role = RoleUser
	default:
		return nil, domain.ErrInvalidArgument
	}
	return &User{ID: id, Role: role, CreatedAt: time.Now()}, nil
}

func (u *User) IsZero() bool { return u == nil || u.ID == "" }

// Principal is the authenticated caller of a commerce operation.
type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) IsZero() bool  { return p.UserID == "" }
func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }
