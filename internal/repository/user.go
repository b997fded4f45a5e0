package repository

import (
	"context"
	"errors"
	"fmt"
	"invman/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

type UserRepo interface {
	FindByEmailOrUsername(ctx context.Context, identifier string) (*models.User, error)
	SetPassword(ctx context.Context, userID int64, passwordHash string) error
}

// FindByEmailOrUsername резолвит свободный идентификатор (email или логин).
// Отсутствие совпадения — это (nil, nil), не ошибка: вызывающий слой
// не должен отличать «не нашли» от «нашли» в своём внешнем ответе.
func (r *UserRepository) FindByEmailOrUsername(ctx context.Context, identifier string) (*models.User, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, username, full_name, email
		FROM users
		WHERE lower(email) = lower($1) OR username = $1
		LIMIT 1
	`, identifier)

	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.Email); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) SetPassword(ctx context.Context, userID int64, passwordHash string) error {
	ct, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`,
		passwordHash, userID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}
