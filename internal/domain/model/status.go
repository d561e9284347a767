// status.go — конечный автомат статусов санитизации.
//
// Жизненный цикл записи staging:
//   - pending (или NULL) → approved — валидация и фильтр пройдены, терминальный
//   - pending (или NULL) → rejected — отказ валидации, фильтра или исчерпание попыток
//   - rejected → pending — ручной возврат в очередь (requeue), approved необратим
package model

import "fmt"

// SanitizationStatus — статус санитизации записи staging.
// Строковые литералы используются и в SQL-фильтрах, и в памяти,
// чувствительны к регистру.
type SanitizationStatus string

const (
	// StatusPending — запись ожидает обработки (NULL в БД эквивалентен pending).
	StatusPending SanitizationStatus = "pending"
	// StatusApproved — запись прошла санитизацию и скопирована в production.
	StatusApproved SanitizationStatus = "approved"
	// StatusRejected — запись отклонена, причина в rejected_reason.
	StatusRejected SanitizationStatus = "rejected"
)

// validStatusTransitions — матрица допустимых переходов.
// Ключ — текущий статус, значение — набор допустимых целевых.
var validStatusTransitions = map[SanitizationStatus]map[SanitizationStatus]bool{
	StatusPending:  {StatusApproved: true, StatusRejected: true},
	StatusApproved: {}, // Терминальный — повторная обработка запрещена
	StatusRejected: {StatusPending: true}, // Только ручной requeue
}

// CanTransition проверяет допустимость перехода from → to.
func CanTransition(from, to SanitizationStatus) bool {
	targets, ok := validStatusTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// NormalizeStatus приводит статус из БД к каноническому значению.
// NULL (nil) трактуется как pending.
func NormalizeStatus(s *string) SanitizationStatus {
	if s == nil || *s == "" {
		return StatusPending
	}
	return SanitizationStatus(*s)
}

// ParseStatus преобразует строку в SanitizationStatus.
// Возвращает ошибку для недопустимых значений.
func ParseStatus(s string) (SanitizationStatus, error) {
	st := SanitizationStatus(s)
	switch st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	default:
		return "", fmt.Errorf("недопустимый статус: %q, допустимые: pending, approved, rejected", s)
	}
}
