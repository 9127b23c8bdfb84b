package domain

import (
	"time"

	"github.com/google/uuid"

	shared "github.com/vorluno/planilla/internal/shared/domain"
)

// User is a person who can sign in. Tenant access comes from memberships.
type User struct {
	shared.BaseAggregateRoot
	id           uuid.UUID
	email        Email
	name         Name
	passwordHash string
	createdAt    time.Time
	updatedAt    time.Time
}

// NewUser creates a user with an already hashed password.
func NewUser(email Email, name Name, passwordHash string, now time.Time) *User {
	now = now.UTC()
	u := &User{
		id:           uuid.New(),
		email:        email,
		name:         name,
		passwordHash: passwordHash,
		createdAt:    now,
		updatedAt:    now,
	}
	u.AddDomainEvent(NewUserRegistered(u.id, email.String(), name.String()))
	return u
}

// RehydrateUser rebuilds a stored user.
func RehydrateUser(id uuid.UUID, email Email, name Name, passwordHash string, createdAt, updatedAt time.Time) *User {
	return &User{
		id:           id,
		email:        email,
		name:         name,
		passwordHash: passwordHash,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
	}
}

// Getters
func (u *User) ID() uuid.UUID        { return u.id }
func (u *User) Email() Email         { return u.email }
func (u *User) Name() Name           { return u.name }
func (u *User) PasswordHash() string { return u.passwordHash }
func (u *User) CreatedAt() time.Time { return u.createdAt }
func (u *User) UpdatedAt() time.Time { return u.updatedAt }
