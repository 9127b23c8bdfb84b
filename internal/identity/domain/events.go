package domain

import (
	"github.com/google/uuid"

	shared "github.com/vorluno/planilla/internal/shared/domain"
)

const (
	AggregateType = "User"

	RoutingKeyUserRegistered = "identity.user.registered"
)

// UserRegistered is emitted when a new user account is created.
type UserRegistered struct {
	shared.BaseEvent
	Email string `json:"email"`
	Name  string `json:"name"`
}

// NewUserRegistered creates a UserRegistered event.
func NewUserRegistered(userID uuid.UUID, email, name string) *UserRegistered {
	return &UserRegistered{
		BaseEvent: shared.NewBaseEvent(userID.String(), AggregateType, RoutingKeyUserRegistered),
		Email:     email,
		Name:      name,
	}
}
