package app

import (
	"strconv"
	"time"

	"invman/internal/config"
	"invman/internal/db"
	"invman/internal/handlers"
	"invman/internal/logger"
	"invman/internal/ratelimit"
	"invman/internal/repository"
	"invman/internal/routes"
	"invman/internal/services"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func InitApp(cfg *config.Config) (*mux.Router, error) {
	conn, err := db.NewPostgresConnection(cfg)
	if err != nil {
		return nil, err
	}

	// Репозитории
	tokenRepo := repository.NewPasswordResetRepository(conn)
	userRepo := repository.NewUserRepository(conn)

	// Лимитер: общий Redis-бэкенд, если задан, иначе память процесса
	window := minutesOrDefault(cfg.ResetRateWindowMin, 60)
	maxReqs := intOrDefault(cfg.ResetRateLimit, 5)

	var limiter ratelimit.Limiter
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = db.NewRedisClient(cfg)
		if err != nil {
			return nil, err
		}
		limiter = ratelimit.NewRedis(rdb, window, maxReqs)
	} else {
		logger.Log.Warn("Лимитер работает в памяти процесса: при нескольких инстансах лимит умножается на их число")
		limiter = ratelimit.NewMemory(window, maxReqs)
	}

	// Сервисы
	emailService := services.NewEmailService(cfg)
	notifier := services.NewResetNotifier(emailService, cfg.MailFromName)
	resetService := services.NewPasswordResetService(
		tokenRepo,
		userRepo,
		notifier,
		limiter,
		cfg.FrontendURL,
		minutesOrDefault(cfg.PasswordResetTTLMin, 60),
	)

	// Хендлеры
	resetHandler := handlers.NewPasswordResetHandler(resetService)
	healthHandler := handlers.NewHealthHandler(conn, rdb)

	// Маршруты
	router := mux.NewRouter()
	routes.InitRoutes(router, resetHandler, healthHandler)

	return router, nil
}

func intOrDefault(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		logger.Log.Warn("Невалидное числовое значение в конфиге, берём дефолт",
			zap.String("value", s), zap.Int("default", def))
		return def
	}
	return v
}

func minutesOrDefault(s string, def int) time.Duration {
	return time.Duration(intOrDefault(s, def)) * time.Minute
}
