package ratelimit

import "context"

// FallbackKey — общий ключ для запросов без определимого адреса.
// Консервативно: весь неатрибутированный трафик делит один бюджет.
const FallbackKey = "unknown"

// Limiter ограничивает частоту запросов по ключу в скользящем окне.
// Allow возвращает false, если бюджет ключа исчерпан; отклонённая
// попытка в окно не записывается.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
