package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "reset_rate:"

// Скользящее окно на ZSET: чистим устаревшие отметки, считаем оставшиеся,
// при свободном бюджете добавляем текущую. Скрипт атомарен, поэтому
// конкурентные запросы с одного ключа не теряют обновлений.
var slidingWindowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local count = redis.call('ZCARD', key)
	if count >= limit then
		return 0
	end

	redis.call('ZADD', key, now, now)
	redis.call('EXPIRE', key, ttl)
	return 1
`)

// Redis — лимитер с общим бэкендом. Несколько инстансов сервиса
// делят один бюджет на ключ, окно переживает рестарт процесса.
type Redis struct {
	client  *redis.Client
	window  time.Duration
	maxReqs int
}

func NewRedis(client *redis.Client, window time.Duration, maxReqs int) *Redis {
	return &Redis{client: client, window: window, maxReqs: maxReqs}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	now := time.Now().UnixMicro()
	windowStart := now - r.window.Microseconds()
	ttl := int(r.window.Seconds()) + 1

	res, err := slidingWindowScript.Run(ctx, r.client,
		[]string{redisKeyPrefix + key}, now, windowStart, r.maxReqs, ttl).Int()
	if err != nil {
		return false, fmt.Errorf("sliding window script: %w", err)
	}

	return res == 1, nil
}
