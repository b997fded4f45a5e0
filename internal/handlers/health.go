package handlers

import (
	"net/http"

	helpers "invman/internal/utils/helpres"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type HealthHandler struct {
	db  *pgxpool.Pool
	rdb *redis.Client // nil, если лимитер работает в памяти
}

func NewHealthHandler(db *pgxpool.Pool, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, rdb: rdb}
}

// Healthz godoc
// @Summary Проверка живости сервиса
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/healthz [get]
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"status": "ok", "db": "ok"}
	code := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		status["status"] = "degraded"
		status["db"] = "unreachable"
		code = http.StatusServiceUnavailable
	}

	if h.rdb != nil {
		status["redis"] = "ok"
		if err := h.rdb.Ping(r.Context()).Err(); err != nil {
			// Redis-лимитер умеет fail-open, поэтому это не 503
			status["redis"] = "unreachable"
		}
	}

	helpers.JSON(w, code, status)
}
