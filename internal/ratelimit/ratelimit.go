// Пакет ratelimit — fixed-window rate limiter на Redis.
//
// Счётчик INCR + EXPIRE на ключ окна: первый запрос в окне создаёт
// ключ и выставляет TTL, остальные инкрементируют. Ключ — адрес
// клиента, окно фиксированной длительности.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Status — результат проверки лимита.
type Status struct {
	// Allowed — запрос в пределах лимита.
	Allowed bool
	// Remaining — оставшееся число запросов в текущем окне.
	Remaining int
	// ResetAt — время сброса окна.
	ResetAt time.Time
}

// Limiter — fixed-window rate limiter.
type Limiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// New создаёт rate limiter.
// limit — максимум запросов за окно, window — длительность окна.
func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "ratelimit:",
	}
}

// Allow регистрирует запрос от key и возвращает статус лимита.
// Ошибка Redis не трактуется как превышение лимита — решение
// принимает вызывающая сторона.
func (l *Limiter) Allow(ctx context.Context, key string) (Status, error) {
	redisKey := l.prefix + key

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return Status{}, fmt.Errorf("ошибка инкремента счётчика: %w", err)
	}

	// Первый запрос в окне — выставляем TTL
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, l.window).Err(); err != nil {
			return Status{}, fmt.Errorf("ошибка установки TTL окна: %w", err)
		}
	}

	ttl, err := l.client.TTL(ctx, redisKey).Result()
	if err != nil || ttl < 0 {
		ttl = l.window
	}

	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Status{
		Allowed:   count <= int64(l.limit),
		Remaining: remaining,
		ResetAt:   time.Now().UTC().Add(ttl),
	}, nil
}
