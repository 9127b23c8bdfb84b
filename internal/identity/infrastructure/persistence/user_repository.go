package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/vorluno/planilla/internal/identity/domain"
	"github.com/vorluno/planilla/internal/shared/infrastructure/database"
)

const userSelect = `SELECT id, email, full_name, password_hash, created_at, updated_at FROM users`

// UserRepository stores users for either database driver.
type UserRepository struct {
	conn database.Connection
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(conn database.Connection) *UserRepository {
	return &UserRepository{conn: conn}
}

// getDB returns the transaction from ctx, or the connection.
func (r *UserRepository) getDB(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	d := r.conn.Driver()
	_, err := r.getDB(ctx).Exec(ctx, d.Rebind(`
		INSERT INTO users (id, email, full_name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		user.ID(), user.Email().String(), user.Name().String(), user.PasswordHash(),
		d.Time(user.CreatedAt()), d.Time(user.UpdatedAt()))
	if database.IsUniqueViolation(err) {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByID retrieves a user by their ID.
func (r *UserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return r.findOne(ctx, userSelect+` WHERE id = ?`, id)
}

// FindByEmail retrieves a user by e-mail.
func (r *UserRepository) FindByEmail(ctx context.Context, email domain.Email) (*domain.User, error) {
	return r.findOne(ctx, userSelect+` WHERE email = ?`, email.String())
}

func (r *UserRepository) findOne(ctx context.Context, query string, arg any) (*domain.User, error) {
	var (
		id                   uuid.UUID
		rawEmail, rawName    string
		hash                 string
		createdAt, updatedAt database.NullTime
	)
	err := r.getDB(ctx).QueryRow(ctx, r.conn.Driver().Rebind(query), arg).
		Scan(&id, &rawEmail, &rawName, &hash, &createdAt, &updatedAt)
	if database.IsNoRows(err) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	email, err := domain.NewEmail(rawEmail)
	if err != nil {
		return nil, fmt.Errorf("stored user %s: %w", id, err)
	}
	name, err := domain.NewName(rawName)
	if err != nil {
		return nil, fmt.Errorf("stored user %s: %w", id, err)
	}
	return domain.RehydrateUser(id, email, name, hash, createdAt.Time, updatedAt.Time), nil
}
