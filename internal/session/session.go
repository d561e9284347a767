// Пакет session — хранилище административных сессий на Redis.
//
// Токен — непрозрачный UUID, значение — имя пользователя, TTL —
// время жизни сессии. Валидация сессии — бинарный ответ да/нет.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrNotFound — сессия не найдена или истекла.
var ErrNotFound = errors.New("сессия не найдена")

// Store — хранилище сессий.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewStore создаёт хранилище сессий с указанным TTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
		prefix: "session:",
	}
}

// Create создаёт сессию для пользователя и возвращает непрозрачный токен.
func (s *Store) Create(ctx context.Context, username string) (string, error) {
	token := uuid.New().String()

	if err := s.client.Set(ctx, s.prefix+token, username, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return token, nil
}

// Validate проверяет токен и возвращает имя пользователя.
// Неизвестный или истёкший токен — ErrNotFound.
func (s *Store) Validate(ctx context.Context, token string) (string, error) {
	username, err := s.client.Get(ctx, s.prefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка проверки сессии: %w", err)
	}
	return username, nil
}

// Destroy удаляет сессию (logout). Отсутствующий токен — не ошибка.
func (s *Store) Destroy(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, s.prefix+token).Err(); err != nil {
		return fmt.Errorf("ошибка удаления сессии: %w", err)
	}
	return nil
}
