// Пакет filter — контент-фильтр свободного текста анкет.
//
// Эвристики на denylist-паттернах: это pre-filter защиты в глубину,
// а не замена параметризованных SQL-запросов (вставки в production
// всегда идут через позиционные bind-параметры pgx).
//
// Проверки выполняются в фиксированном порядке приоритета, первое
// совпадение определяет причину:
//  1. Превышение максимальной длины (10000 символов)
//  2. Маркеры SQL-инъекций
//  3. Маркеры XSS / markup-инъекций
//  4. Избыточная плотность спецсимволов
package filter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxTextLength — максимальная длина текстового поля.
const MaxTextLength = 10000

// densityThreshold — доля спецсимволов, после которой текст считается
// небезопасным. Проверяется только для строк длиннее densityMinLength.
const (
	densityThreshold = 0.5
	densityMinLength = 10
)

// Result — вердикт фильтра по одной строке.
type Result struct {
	// Safe — текст безопасен.
	Safe bool
	// Reason — причина отказа, пустая при Safe.
	Reason string
}

// sqlPatterns — канонические маркеры SQL-инъекций:
// кавычка-затем-ключевое-слово, UNION SELECT, комментарии, stacked statements.
var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)'\s*;?\s*(drop|delete|insert|update|alter|truncate)\b`),
	regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`),
	regexp.MustCompile(`(?i);\s*(drop|delete|truncate|alter)\s+(table|database)\b`),
	regexp.MustCompile(`(?i)'\s*(or|and)\s+['\d]`),
	regexp.MustCompile(`--`),
}

// xssPatterns — маркеры XSS и markup-инъекций:
// <script, inline event-handler атрибуты, javascript: URI, iframe/object.
var xssPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)\bon\w+\s*=`),
	regexp.MustCompile(`(?i)javascript\s*:`),
	regexp.MustCompile(`(?i)<\s*(iframe|object|embed)`),
	regexp.MustCompile(`(?i)<\s*img[^>]*\bsrc\b`),
}

// Check проверяет строку на небезопасные паттерны.
// Чистая функция: без побочных эффектов, пустая строка безопасна.
func Check(text string) Result {
	if text == "" {
		return Result{Safe: true}
	}

	// Потолок длины — в символах, не в байтах
	if utf8.RuneCountInString(text) > MaxTextLength {
		return Result{Safe: false, Reason: "text exceeds maximum length"}
	}

	for _, p := range sqlPatterns {
		if p.MatchString(text) {
			return Result{Safe: false, Reason: "potential SQL injection detected"}
		}
	}

	for _, p := range xssPatterns {
		if p.MatchString(text) {
			return Result{Safe: false, Reason: "potential XSS content detected"}
		}
	}

	if specialCharDensity(text) > densityThreshold {
		return Result{Safe: false, Reason: "excessive special characters detected"}
	}

	return Result{Safe: true}
}

// commonPunctuation — пунктуация, не считающаяся спецсимволом.
const commonPunctuation = `.,!?;:'"()-_/@`

// specialCharDensity возвращает долю спецсимволов в строке.
// Спецсимвол — не буква, не цифра, не пробел и не обычная пунктуация.
// Для коротких строк (≤ densityMinLength рун) возвращает 0.
func specialCharDensity(text string) float64 {
	runes := []rune(text)
	if len(runes) <= densityMinLength {
		return 0
	}

	special := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			continue
		}
		if strings.ContainsRune(commonPunctuation, r) {
			continue
		}
		special++
	}
	return float64(special) / float64(len(runes))
}
