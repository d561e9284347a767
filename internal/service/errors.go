// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrUnauthorized — неверные учётные данные.
	ErrUnauthorized = errors.New("неверные учётные данные")
	// ErrRateLimited — превышен лимит заявок с адреса.
	ErrRateLimited = errors.New("превышен лимит заявок")
	// ErrStorageSchema — рассинхронизация схемы хранилища (нет таблицы/колонки).
	ErrStorageSchema = errors.New("хранилище не сконфигурировано")
)
