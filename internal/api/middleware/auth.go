// auth.go — middleware аутентификации административного API SurveyHub.
// Принимает два вида учётных данных: Bearer JWT (HS256, выпускается
// при логине) и session cookie (непрозрачный токен в Redis). Endpoint
// запуска конвейера дополнительно принимает заголовок X-Scheduler-Secret
// для внешнего планировщика (cron).
package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/surveyhub/internal/api/errors"
	"github.com/bigkaa/surveyhub/internal/session"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyUser — имя аутентифицированного пользователя в контексте запроса.
	ContextKeyUser contextKey = "auth_user"

	// SessionCookieName — имя cookie с токеном сессии.
	SessionCookieName = "sh_session"

	// SchedulerSecretHeader — заголовок секрета внешнего планировщика.
	SchedulerSecretHeader = "X-Scheduler-Secret"

	// schedulerSubject — имя субъекта для запросов планировщика.
	schedulerSubject = "scheduler"
)

// SessionValidator — проверка session cookie.
// Реализуется session.Store.
type SessionValidator interface {
	// Validate возвращает имя пользователя по токену сессии.
	Validate(ctx context.Context, token string) (string, error)
}

// authClaims — claims выпускаемого JWT.
type authClaims struct {
	jwt.RegisteredClaims
}

// Authenticator — middleware аутентификации.
type Authenticator struct {
	jwtSecret       []byte
	sessions        SessionValidator
	schedulerSecret string
	jwtLeeway       time.Duration
	logger          *slog.Logger
}

// NewAuthenticator создаёт middleware аутентификации.
// schedulerSecret может быть пустым: тогда доступ планировщика выключен.
func NewAuthenticator(
	jwtSecret string,
	sessions SessionValidator,
	schedulerSecret string,
	logger *slog.Logger,
) *Authenticator {
	return &Authenticator{
		jwtSecret:       []byte(jwtSecret),
		sessions:        sessions,
		schedulerSecret: schedulerSecret,
		jwtLeeway:       30 * time.Second,
		logger:          logger.With(slog.String("component", "auth")),
	}
}

// IssueToken выпускает JWT для пользователя с указанным временем жизни.
func (a *Authenticator) IssueToken(username string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := authClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    "surveyhub",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.jwtSecret)
}

// Middleware возвращает HTTP middleware, требующий Bearer JWT или
// session cookie. Имя пользователя помещается в контекст запроса.
func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, err := a.authenticate(r)
			if err != nil {
				a.logger.Debug("Аутентификация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Требуется аутентификация")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUser, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SchedulerOrAuth возвращает middleware для endpoints, доступных также
// внешнему планировщику по секретному заголовку. При отсутствии или
// несовпадении заголовка работает как обычный Middleware.
func (a *Authenticator) SchedulerOrAuth() func(http.Handler) http.Handler {
	authMw := a.Middleware()
	return func(next http.Handler) http.Handler {
		authed := authMw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := r.Header.Get(SchedulerSecretHeader)
			if a.schedulerSecret != "" && secret != "" &&
				subtle.ConstantTimeCompare([]byte(secret), []byte(a.schedulerSecret)) == 1 {
				ctx := context.WithValue(r.Context(), ContextKeyUser, schedulerSubject)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
			authed.ServeHTTP(w, r)
		})
	}
}

// authenticate проверяет учётные данные запроса: сначала Bearer JWT,
// затем session cookie.
func (a *Authenticator) authenticate(r *http.Request) (string, error) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			return "", errors.New("неверный формат Authorization: ожидается Bearer <token>")
		}
		return a.validateJWT(r.Context(), parts[1])
	}

	cookie, err := r.Cookie(SessionCookieName)
	if err == nil && cookie.Value != "" {
		username, err := a.sessions.Validate(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return "", errors.New("сессия не найдена или истекла")
			}
			return "", err
		}
		return username, nil
	}

	return "", errors.New("отсутствуют учётные данные")
}

// validateJWT проверяет подпись и срок действия JWT.
func (a *Authenticator) validateJWT(_ context.Context, tokenString string) (string, error) {
	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return a.jwtSecret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.jwtLeeway),
		jwt.WithIssuer("surveyhub"),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("невалидный токен")
	}
	return claims.Subject, nil
}

// UserFromContext извлекает имя аутентифицированного пользователя
// из контекста запроса. Возвращает пустую строку, если его нет.
func UserFromContext(ctx context.Context) string {
	username, _ := ctx.Value(ContextKeyUser).(string)
	return username
}
