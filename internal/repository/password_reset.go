package repository

import (
	"context"
	"errors"
	"invman/internal/logger"
	"invman/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type PasswordResetRepository struct {
	db *pgxpool.Pool
}

func NewPasswordResetRepository(db *pgxpool.Pool) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

type PasswordResetRepo interface {
	Insert(ctx context.Context, t *models.PasswordResetToken) error
	FindUnusedByDigest(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id int64) (bool, error)
}

func (r *PasswordResetRepository) Insert(ctx context.Context, t *models.PasswordResetToken) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO password_reset_tokens (user_id, token_hash, expires_at, request_ip)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, t.UserID, t.TokenHash, t.ExpiresAt, t.RequestIP).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		logger.Log.Error("Insert reset token failed", zap.Error(err), zap.Int64("user_id", t.UserID))
	}
	return err
}

// FindUnusedByDigest ищет непогашенный токен по дайджесту.
// Истечение срока здесь не проверяется — это read-time проверка в сервисе,
// ряды по истечении не удаляются (остаются для аудита).
func (r *PasswordResetRepository) FindUnusedByDigest(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, user_id, token_hash, expires_at, used_at, created_at, request_ip
		FROM password_reset_tokens
		WHERE token_hash = $1
		  AND used_at IS NULL
	`, tokenHash)

	var t models.PasswordResetToken
	if err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.UsedAt, &t.CreatedAt, &t.RequestIP); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// MarkUsed гасит токен условным UPDATE: used_at ставится только если он NULL.
// Возврат false означает, что параллельное погашение успело раньше —
// это и есть замок одноразовости, никакого read-then-write.
func (r *PasswordResetRepository) MarkUsed(ctx context.Context, id int64) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE password_reset_tokens
		SET used_at = now()
		WHERE id = $1
		  AND used_at IS NULL
	`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
