package handlers

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"invman/internal/logger"
	"invman/internal/ratelimit"
	"invman/internal/services"
	"invman/internal/utils"
	helpers "invman/internal/utils/helpres"

	"go.uber.org/zap"
)

// Единый ответ выпуска: один и тот же при найденном и не найденном
// аккаунте, при сработавшем лимитере и при внутренних сбоях.
const uniformResetMessage = "If an account exists, we've sent a reset link. Check your email."

type PasswordResetHandler struct {
	svc *services.PasswordResetService
}

func NewPasswordResetHandler(svc *services.PasswordResetService) *PasswordResetHandler {
	return &PasswordResetHandler{svc: svc}
}

type resetRequestReq struct {
	Identifier string `json:"identifier"`
}

// Request godoc
// @Summary Запрос восстановления пароля
// @Description Отправляет письмо со ссылкой для сброса пароля. Ответ всегда одинаковый, даже если аккаунт не найден.
// @Tags password
// @Accept json
// @Produce json
// @Param input body resetRequestReq true "Email или логин пользователя"
// @Success 200 {object} map[string]string
// @Router /api/reset/request [post]
func (h *PasswordResetHandler) Request(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCtx(r.Context())

	// Битый JSON равносилен пустому идентификатору: внешний ответ
	// обязан быть единым, поэтому 400 здесь не бывает.
	var req resetRequestReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Warn("Невалидный payload в Request, отвечаем единообразно")
	}

	if err := h.svc.RequestReset(r.Context(), req.Identifier, clientIP(r)); err != nil {
		// Сервис возвращает nil всегда; ветка на случай будущих правок
		log.Error("Сбой при запросе восстановления пароля",
			zap.String("identifier_masked", utils.MaskIdentifier(req.Identifier)),
			zap.Error(err),
		)
	}

	helpers.JSON(w, http.StatusOK, map[string]string{"message": uniformResetMessage})
}

type resetConfirmReq struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// Confirm godoc
// @Summary Сброс пароля по токену
// @Description Устанавливает новый пароль по одноразовому токену из письма.
// @Tags password
// @Accept json
// @Produce json
// @Param input body resetConfirmReq true "Токен и новый пароль"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /api/reset/confirm [post]
func (h *PasswordResetHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	log := logger.WithCtx(r.Context())

	var req resetConfirmReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		strings.TrimSpace(req.Token) == "" || strings.TrimSpace(req.NewPassword) == "" {
		log.Warn("Невалидный payload в Confirm")
		helpers.Error(w, http.StatusBadRequest, "Token and new password are required")
		return
	}

	if err := h.svc.ResetPassword(r.Context(), strings.TrimSpace(req.Token), req.NewPassword); err != nil {
		var policyErr *services.PolicyViolationError
		switch {
		case errors.As(err, &policyErr):
			log.Warn("Пароль не прошёл политику", zap.String("reason", policyErr.Message))
			helpers.Error(w, http.StatusBadRequest, policyErr.Message)
		case errors.Is(err, services.ErrResetTokenInvalid):
			log.Warn("Не удалось сбросить пароль по токену", zap.Error(err))
			helpers.Error(w, http.StatusBadRequest, "Invalid or expired reset token")
		default:
			log.Error("Внутренний сбой при сбросе пароля", zap.Error(err))
			helpers.Error(w, http.StatusInternalServerError, "An error occurred")
		}
		return
	}

	log.Info("Пароль успешно сброшен")
	helpers.JSON(w, http.StatusOK, map[string]string{"message": "Password successfully reset"})
}

// clientIP — ключ лимитера: первый адрес из X-Forwarded-For, иначе
// RemoteAddr без порта. Если адреса нет совсем — общий запасной ключ.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return ratelimit.FallbackKey
}
