package middleware

import (
	"net/http"

	"invman/internal/reqctx"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

// RequestID кладёт в контекст идентификатор запроса: из заголовка,
// если его прислал балансировщик, иначе свой.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}

		ctx := reqctx.WithRequestID(r.Context(), rid)
		w.Header().Set(requestIDHeader, rid)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
