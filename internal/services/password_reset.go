package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"invman/internal/logger"
	"invman/internal/models"
	"invman/internal/ratelimit"
	"invman/internal/repository"
	"invman/internal/utils"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ErrResetTokenInvalid — единый отказ для «не найден», «истёк» и
// «уже использован». Снаружи эти случаи неразличимы намеренно:
// различимые ответы дали бы оракул для перебора токенов.
var ErrResetTokenInvalid = errors.New("invalid or expired reset token")

// PolicyViolationError — нарушение парольной политики. В отличие от
// токенных отказов, конкретику можно отдавать: риска перебора тут нет.
type PolicyViolationError struct {
	Message string
}

func (e *PolicyViolationError) Error() string { return e.Message }

// EmailSender — интерфейс отправки письма со ссылкой.
type EmailSender interface {
	SendResetLink(ctx context.Context, to, fullName, link string) error
}

type PasswordResetService struct {
	tokens      repository.PasswordResetRepo
	users       repository.UserRepo
	emailSender EmailSender
	limiter     ratelimit.Limiter
	appURL      string // фронтовый URL: https://example.com (ссылка вида /reset-password?token=...)
	tokenTTL    time.Duration
}

// Таймаут на внешние вызовы (БД, почта): ни один запрос не виснет бесконечно.
const collaboratorTimeout = 10 * time.Second

func NewPasswordResetService(
	tokens repository.PasswordResetRepo,
	users repository.UserRepo,
	emailSender EmailSender,
	limiter ratelimit.Limiter,
	appURL string,
	tokenTTL time.Duration,
) *PasswordResetService {
	return &PasswordResetService{
		tokens:      tokens,
		users:       users,
		emailSender: emailSender,
		limiter:     limiter,
		appURL:      strings.TrimRight(appURL, "/"),
		tokenTTL:    tokenTTL,
	}
}

// RequestReset выпускает одноразовый токен и отправляет письмо со ссылкой.
// Возвращает nil всегда: ни лимитер, ни отсутствие пользователя, ни сбой
// хранилища или почты не должны быть различимы по внешнему ответу.
func (s *PasswordResetService) RequestReset(ctx context.Context, identifier, requesterKey string) error {
	log := logger.WithCtx(ctx)

	ctx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()

	if requesterKey == "" {
		requesterKey = ratelimit.FallbackKey
	}

	allowed, err := s.limiter.Allow(ctx, requesterKey)
	if err != nil {
		// Лимитер недоступен — пропускаем (fail-open): недоступность Redis
		// не должна ронять выпуск токенов.
		log.Warn("Лимитер недоступен, запрос пропущен без проверки", zap.Error(err))
		allowed = true
	}
	if !allowed {
		log.Warn("Превышен лимит запросов на сброс пароля", zap.String("requester", requesterKey))
		return nil
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil
	}

	user, err := s.users.FindByEmailOrUsername(ctx, identifier)
	if err != nil {
		log.Error("Сбой резолва идентификатора при запросе сброса", zap.Error(err))
		return nil
	}
	if user == nil {
		// Не раскрываем наличие аккаунта — логируем только для себя
		log.Info("Идентификатор не найден при запросе сброса",
			zap.String("identifier_masked", utils.MaskIdentifier(identifier)),
		)
		return nil
	}

	secret, digest, err := utils.GenerateResetToken()
	if err != nil {
		log.Error("Ошибка генерации токена для сброса", zap.Error(err), zap.Int64("user_id", user.ID))
		return nil
	}

	token := &models.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: digest,
		ExpiresAt: time.Now().Add(s.tokenTTL),
		RequestIP: requesterKey,
	}
	if err := s.tokens.Insert(ctx, token); err != nil {
		log.Error("Ошибка сохранения токена сброса пароля",
			zap.Int64("user_id", user.ID),
			zap.Error(err),
		)
		return nil
	}

	resetLink := fmt.Sprintf("%s/reset-password?token=%s", s.appURL, secret)
	if err := s.emailSender.SendResetLink(ctx, user.Email, user.FullName, resetLink); err != nil {
		log.Error("Ошибка отправки письма для сброса пароля",
			zap.Int64("user_id", user.ID),
			zap.String("email_masked", utils.MaskIdentifier(user.Email)),
			zap.Error(err),
		)
		// Не фейлим намеренно — внешний ответ одинаков при любом исходе
	}

	log.Info("Письмо со ссылкой на сброс пароля поставлено на отправку",
		zap.Int64("user_id", user.ID),
		zap.Time("expires_at", token.ExpiresAt),
	)
	return nil
}

// ResetPassword подтверждает токен и устанавливает новый пароль.
// Токен гасится строго после обновления пароля: если обновление упало,
// токен остаётся живым и попытку можно повторить.
func (s *PasswordResetService) ResetPassword(ctx context.Context, secret, newPassword string) error {
	log := logger.WithCtx(ctx)

	ctx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
	defer cancel()

	if res := ValidatePassword(newPassword); !res.Valid() {
		log.Warn("Новый пароль не прошёл политику", zap.String("rule", res.FirstViolation()))
		return &PolicyViolationError{Message: res.FirstViolation()}
	}

	digest := utils.HashResetToken(secret)

	rec, err := s.tokens.FindUnusedByDigest(ctx, digest)
	if err != nil {
		log.Error("Сбой поиска токена сброса", zap.Error(err))
		return fmt.Errorf("поиск токена: %w", err)
	}
	if rec == nil || !utils.DigestEqual(rec.TokenHash, digest) {
		log.Warn("Неверный токен при сбросе пароля")
		return ErrResetTokenInvalid
	}

	if !rec.Usable(time.Now()) {
		// Тот же отказ, что и «не найден»: истечение не отличимо снаружи
		log.Warn("Просроченный токен при сбросе пароля", zap.Int64("token_id", rec.ID))
		return ErrResetTokenInvalid
	}

	pwHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), 12)
	if err != nil {
		log.Error("Ошибка генерации хеша пароля", zap.Error(err), zap.Int64("user_id", rec.UserID))
		return err
	}

	if err := s.users.SetPassword(ctx, rec.UserID, string(pwHash)); err != nil {
		log.Error("Ошибка обновления пароля пользователя",
			zap.Int64("user_id", rec.UserID),
			zap.Error(err),
		)
		return fmt.Errorf("обновление пароля: %w", err)
	}

	used, err := s.tokens.MarkUsed(ctx, rec.ID)
	if err != nil {
		log.Error("Не удалось пометить токен сброса как использованный",
			zap.Error(err),
			zap.Int64("token_id", rec.ID),
			zap.Int64("user_id", rec.UserID),
		)
		return fmt.Errorf("погашение токена: %w", err)
	}
	if !used {
		// Параллельное погашение выиграло гонку — для клиента это тот же
		// единый отказ, успешным может быть ровно одно погашение
		log.Warn("Токен уже погашен конкурентным запросом", zap.Int64("token_id", rec.ID))
		return ErrResetTokenInvalid
	}

	log.Info("Пароль успешно сброшен", zap.Int64("user_id", rec.UserID))
	return nil
}
