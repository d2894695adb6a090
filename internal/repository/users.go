package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/AtoyanMikhail/authgate/internal/logger"
	"github.com/AtoyanMikhail/authgate/internal/repository/models"
	"github.com/jmoiron/sqlx"
)

const userColumns = `id, display_name, email, username, password_hash, created_at, updated_at`

type userRepo struct {
	db *sqlx.DB
	l  logger.Logger
}

func NewUserRepository(db *sqlx.DB, l logger.Logger) models.UserRepository {
	return &userRepo{db: db, l: l}
}

func (r *userRepo) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, display_name, email, username, password_hash)
		VALUES (:id, :display_name, :email, :username, :password_hash)
		RETURNING created_at, updated_at`

	stmt, err := r.db.PrepareNamedContext(ctx, query)
	if err != nil {
		r.l.Error("Failed to prepare query", logger.Error(err))
		return fmt.Errorf("failed to prepare query: %w", err)
	}
	defer stmt.Close()

	if err := stmt.QueryRowxContext(ctx, user).Scan(&user.CreatedAt, &user.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Username, ErrDuplicate)
		}
		r.l.Error("Failed to insert user", logger.Error(err))
		return fmt.Errorf("failed to insert user: %w", err)
	}

	r.l.Info("User created", logger.String("user_id", user.ID))
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *userRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

func (r *userRepo) getOne(ctx context.Context, query string, arg string) (*models.User, error) {
	user := &models.User{}
	if err := r.db.GetContext(ctx, user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}
