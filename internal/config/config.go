// Пакет config — загрузка и валидация конфигурации SurveyHub
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации SurveyHub.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Redis (сессии + rate limiting) ---

	// Адрес Redis (host:port)
	RedisAddr string
	// Пароль Redis (опционально)
	RedisPassword string
	// Номер базы Redis
	RedisDB int

	// --- Аутентификация ---

	// Секрет подписи HS256 bearer-токенов
	JWTSecret string
	// Имя администратора
	AdminUser string
	// bcrypt-хеш пароля администратора
	AdminPasswordHash string
	// Секрет заголовка планировщика (пусто — запуск по заголовку отключён)
	SchedulerSecret string
	// Время жизни сессии администратора
	SessionTTL time.Duration

	// --- Rate limiting ---

	// Максимум заявок с одного адреса за окно
	RateLimit int
	// Длительность окна rate limiter
	RateWindow time.Duration

	// --- Конвейер санитизации ---

	// Интервал фонового запуска конвейера
	SanitizeInterval time.Duration
	// Потолок размера батча (записей за запуск)
	SanitizeBatchSize int
	// Потолок попыток обработки записи
	SanitizeMaxAttempts int

	// --- Мониторинг зависимостей ---

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SH_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("SH_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("SH_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SH_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// SH_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SH_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SH_LOG_LEVEL: %w", err)
	}

	// SH_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SH_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SH_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// SH_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("SH_DB_HOST")
	if err != nil {
		return nil, err
	}

	// SH_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("SH_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("SH_DB_PORT: %w", err)
	}

	// SH_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("SH_DB_NAME")
	if err != nil {
		return nil, err
	}

	// SH_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("SH_DB_USER")
	if err != nil {
		return nil, err
	}

	// SH_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("SH_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// SH_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("SH_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("SH_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Redis ---

	// SH_REDIS_ADDR — адрес Redis (по умолчанию localhost:6379)
	cfg.RedisAddr = getEnvDefault("SH_REDIS_ADDR", "localhost:6379")

	// SH_REDIS_PASSWORD — опционально
	cfg.RedisPassword = getEnvDefault("SH_REDIS_PASSWORD", "")

	// SH_REDIS_DB — номер базы (по умолчанию 0)
	cfg.RedisDB, err = getEnvInt("SH_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("SH_REDIS_DB: %w", err)
	}

	// --- Аутентификация ---

	// SH_JWT_SECRET — обязательный
	cfg.JWTSecret, err = getEnvRequired("SH_JWT_SECRET")
	if err != nil {
		return nil, err
	}

	// SH_ADMIN_USER — имя администратора (по умолчанию admin)
	cfg.AdminUser = getEnvDefault("SH_ADMIN_USER", "admin")

	// SH_ADMIN_PASSWORD_HASH — обязательный (bcrypt)
	cfg.AdminPasswordHash, err = getEnvRequired("SH_ADMIN_PASSWORD_HASH")
	if err != nil {
		return nil, err
	}

	// SH_SCHEDULER_SECRET — опционально
	cfg.SchedulerSecret = getEnvDefault("SH_SCHEDULER_SECRET", "")

	// SH_SESSION_TTL — время жизни сессии (по умолчанию 24h)
	cfg.SessionTTL, err = getEnvDuration("SH_SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SH_SESSION_TTL: %w", err)
	}

	// --- Rate limiting ---

	// SH_RATE_LIMIT — заявок за окно (по умолчанию 5)
	cfg.RateLimit, err = getEnvInt("SH_RATE_LIMIT", 5)
	if err != nil {
		return nil, fmt.Errorf("SH_RATE_LIMIT: %w", err)
	}
	if cfg.RateLimit < 1 {
		return nil, fmt.Errorf("SH_RATE_LIMIT: значение %d должно быть положительным", cfg.RateLimit)
	}

	// SH_RATE_WINDOW — окно rate limiter (по умолчанию 1m)
	cfg.RateWindow, err = getEnvDuration("SH_RATE_WINDOW", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SH_RATE_WINDOW: %w", err)
	}

	// --- Конвейер санитизации ---

	// SH_SANITIZE_INTERVAL — интервал фонового запуска (по умолчанию 10m)
	cfg.SanitizeInterval, err = getEnvDuration("SH_SANITIZE_INTERVAL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SH_SANITIZE_INTERVAL: %w", err)
	}

	// SH_SANITIZE_BATCH_SIZE — размер батча (по умолчанию 100)
	cfg.SanitizeBatchSize, err = getEnvInt("SH_SANITIZE_BATCH_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("SH_SANITIZE_BATCH_SIZE: %w", err)
	}
	if cfg.SanitizeBatchSize < 1 || cfg.SanitizeBatchSize > 1000 {
		return nil, fmt.Errorf("SH_SANITIZE_BATCH_SIZE: значение %d вне допустимого диапазона 1-1000", cfg.SanitizeBatchSize)
	}

	// SH_SANITIZE_MAX_ATTEMPTS — потолок попыток (по умолчанию 3)
	cfg.SanitizeMaxAttempts, err = getEnvInt("SH_SANITIZE_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("SH_SANITIZE_MAX_ATTEMPTS: %w", err)
	}
	if cfg.SanitizeMaxAttempts < 1 || cfg.SanitizeMaxAttempts > 10 {
		return nil, fmt.Errorf("SH_SANITIZE_MAX_ATTEMPTS: значение %d вне допустимого диапазона 1-10", cfg.SanitizeMaxAttempts)
	}

	// --- Мониторинг зависимостей ---

	// SH_DEPHEALTH_CHECK_INTERVAL — интервал проверки (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("SH_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SH_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// SH_DEPHEALTH_GROUP — имя группы (по умолчанию surveyhub)
	cfg.DephealthGroup = getEnvDefault("SH_DEPHEALTH_GROUP", "surveyhub")

	// --- Graceful shutdown ---

	// SH_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("SH_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SH_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL подключения к PostgreSQL
// (для лейблов topologymetrics, не для подключения).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
