// Пакет sanitize — нормализация полей SurveyRecord.
//
// Для каждого текстового поля: trim пробелов, удаление управляющих
// символов ASCII (0x00–0x1F), затем контент-фильтр — небезопасное
// значение обнуляется с записью issue. JSON-поля (категории
// баг-репортов) разбираются и пересериализуются; нечитаемый JSON
// обнуляется с issue "Invalid JSON".
//
// Входная запись никогда не мутируется, результат всегда содержит
// все поля входа: сохранённые, очищенные или обнулённые.
package sanitize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bigkaa/surveyhub/internal/domain/filter"
	"github.com/bigkaa/surveyhub/internal/domain/model"
)

// Result — результат санитизации записи.
type Result struct {
	// Sanitized — очищенная копия записи.
	Sanitized *model.SurveyRecord
	// Issues — нефатальные проблемы, найденные при очистке.
	Issues []string
}

// Record возвращает очищенную копию записи и список issues.
// Нетекстовые поля (числа, флаги) проходят без изменений.
func Record(r *model.SurveyRecord) Result {
	if r == nil {
		return Result{}
	}

	clean := r.Clone()
	var issues []string

	for _, f := range clean.TextFields() {
		if *f.Value == nil {
			continue
		}
		cleaned := CleanText(**f.Value)

		if res := filter.Check(cleaned); !res.Safe {
			*f.Value = nil
			issues = append(issues, fmt.Sprintf("%s: %s", f.Name, res.Reason))
			continue
		}
		*f.Value = &cleaned
	}

	for _, f := range clean.JSONFields() {
		if *f.Value == nil {
			continue
		}
		cleaned := CleanText(**f.Value)

		var parsed any
		if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
			*f.Value = nil
			issues = append(issues, fmt.Sprintf("%s: Invalid JSON", f.Name))
			continue
		}
		// Пересериализация нормализует форматирование
		data, err := json.Marshal(parsed)
		if err != nil {
			*f.Value = nil
			issues = append(issues, fmt.Sprintf("%s: Invalid JSON", f.Name))
			continue
		}
		s := string(data)
		*f.Value = &s
	}

	return Result{Sanitized: clean, Issues: issues}
}

// CleanText убирает ведущие/замыкающие пробелы и управляющие
// символы ASCII (0x00–0x1F) из строки.
func CleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 0x20 {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
