// Пакет validate — структурная валидация SurveyRecord.
//
// Проверяет диапазоны значений, длины текстов и формат response_id.
// Все применимые проверки выполняются, ошибки накапливаются:
// результат валиден только при нулевом числе ошибок.
package validate

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/bigkaa/surveyhub/internal/domain/model"
)

// Границы диапазонов полей.
const (
	MinAge = 16
	MaxAge = 120

	MinFPS = 0
	MaxFPS = 1000

	MinRating = 1
	MaxRating = 5

	// MaxShortTextLength — потолок коротких текстовых полей
	// (discord_name, cpu, gpu, ram, os_name, ссылки баг-репортов).
	MaxShortTextLength = 500
)

// responseIDPattern — канонический формат идентификатора ответа.
// Распознаются два семейства префиксов: текущее и legacy.
var responseIDPattern = regexp.MustCompile(
	`^(` + model.ResponseIDPrefix + `|` + model.LegacyResponseIDPrefix + `)-\d+$`,
)

// Result — результат валидации записи.
type Result struct {
	// Valid — true при нулевом числе ошибок.
	Valid bool
	// Errors — человекочитаемые описания всех найденных нарушений.
	Errors []string
}

// Record проверяет структурные инварианты записи.
// nil — немедленно невалидна, дальнейшие проверки не выполняются.
func Record(r *model.SurveyRecord) Result {
	if r == nil {
		return Result{Valid: false, Errors: []string{"Invalid data structure"}}
	}

	var errs []string

	if r.Age != nil && (*r.Age < MinAge || *r.Age > MaxAge) {
		errs = append(errs, fmt.Sprintf("age must be between %d and %d", MinAge, MaxAge))
	}

	errs = appendFPSError(errs, "avg_fps", r.AvgFPS)
	errs = appendFPSError(errs, "low_fps", r.LowFPS)

	errs = appendRatingError(errs, "stability_rating", r.StabilityRating)
	errs = appendRatingError(errs, "quest_rating", r.QuestRating)
	errs = appendRatingError(errs, "story_rating", r.StoryRating)
	errs = appendRatingError(errs, "graphics_rating", r.GraphicsRating)

	// Потолки длины считаются в символах, не в байтах:
	// кириллический текст занимает два байта на символ.
	for _, f := range shortTextFields(r) {
		if *f.Value != nil && utf8.RuneCountInString(**f.Value) > MaxShortTextLength {
			errs = append(errs, fmt.Sprintf("%s exceeds maximum length of %d characters",
				f.Name, MaxShortTextLength))
		}
	}

	if r.ResponseID != nil && !responseIDPattern.MatchString(*r.ResponseID) {
		errs = append(errs, "invalid response ID format")
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}

// shortTextFields — текстовые поля с потолком MaxShortTextLength.
// open_feedback сюда не входит: его ограничивает контент-фильтр (10000).
func shortTextFields(r *model.SurveyRecord) []model.TextField {
	return []model.TextField{
		{Name: "discord_name", Value: &r.DiscordName},
		{Name: "cpu", Value: &r.CPU},
		{Name: "gpu", Value: &r.GPU},
		{Name: "ram", Value: &r.RAM},
		{Name: "os_name", Value: &r.OSName},
		{Name: "bug_gameplay_link", Value: &r.BugGameplayLink},
		{Name: "bug_graphics_link", Value: &r.BugGraphicsLink},
		{Name: "bug_audio_link", Value: &r.BugAudioLink},
		{Name: "bug_ui_link", Value: &r.BugUILink},
	}
}

func appendFPSError(errs []string, name string, v *int) []string {
	if v != nil && (*v < MinFPS || *v > MaxFPS) {
		errs = append(errs, fmt.Sprintf("%s must be between %d and %d", name, MinFPS, MaxFPS))
	}
	return errs
}

func appendRatingError(errs []string, name string, v *int) []string {
	if v != nil && (*v < MinRating || *v > MaxRating) {
		errs = append(errs, fmt.Sprintf("%s must be between %d and %d", name, MinRating, MaxRating))
	}
	return errs
}
