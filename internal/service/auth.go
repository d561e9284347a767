// auth.go — сервис аутентификации администратора.
//
// Единственный административный аккаунт задаётся конфигурацией:
// имя пользователя и bcrypt-хэш пароля. Успешный логин создаёт
// Redis-сессию и выпускает JWT.
package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/bigkaa/surveyhub/internal/session"
)

// TokenIssuer — выпуск JWT для аутентифицированного пользователя.
// Реализуется middleware.Authenticator.
type TokenIssuer interface {
	IssueToken(username string, ttl time.Duration) (string, error)
}

// LoginResult — результат успешного логина.
type LoginResult struct {
	// Username — имя вошедшего пользователя.
	Username string
	// SessionToken — непрозрачный токен сессии (для cookie).
	SessionToken string
	// AccessToken — JWT для Authorization: Bearer.
	AccessToken string
	// ExpiresAt — время истечения сессии и токена.
	ExpiresAt time.Time
}

// AuthService — сервис аутентификации администратора.
type AuthService struct {
	adminUser    string
	passwordHash string
	sessions     *session.Store
	tokens       TokenIssuer
	ttl          time.Duration
	logger       *slog.Logger
}

// NewAuthService создаёт сервис аутентификации.
// passwordHash — bcrypt-хэш пароля администратора из конфигурации.
func NewAuthService(
	adminUser string,
	passwordHash string,
	sessions *session.Store,
	tokens TokenIssuer,
	ttl time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		adminUser:    adminUser,
		passwordHash: passwordHash,
		sessions:     sessions,
		tokens:       tokens,
		ttl:          ttl,
		logger:       logger.With(slog.String("component", "auth")),
	}
}

// Login проверяет учётные данные и создаёт сессию.
// Неверная пара логин/пароль — ErrUnauthorized без уточнения причины.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.adminUser)) == 1
	passErr := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password))
	if !userOK || passErr != nil {
		s.logger.Warn("Неудачная попытка входа", slog.String("username", username))
		return nil, ErrUnauthorized
	}

	token, err := s.sessions.Create(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания сессии: %w", err)
	}

	accessToken, err := s.tokens.IssueToken(username, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("ошибка выпуска токена: %w", err)
	}

	s.logger.Info("Администратор вошёл в систему", slog.String("username", username))

	return &LoginResult{
		Username:     username,
		SessionToken: token,
		AccessToken:  accessToken,
		ExpiresAt:    time.Now().UTC().Add(s.ttl),
	}, nil
}

// Logout удаляет сессию. Отсутствующий токен — не ошибка.
func (s *AuthService) Logout(ctx context.Context, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	return s.sessions.Destroy(ctx, sessionToken)
}
