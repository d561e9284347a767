// Пакет model — доменные модели SurveyHub.
// SurveyRecord — каноническая запись анкеты, единая схема колонок
// для staging (survey_staging) и production (survey_responses).
package model

import "time"

// Семейства префиксов response_id.
// BETA-FORM — legacy-префикс закрытого бета-тестирования: распознаётся
// и продолжается по максимальному суффиксу, новые ID всегда SRV-FORM.
const (
	ResponseIDPrefix       = "SRV-FORM"
	LegacyResponseIDPrefix = "BETA-FORM"
)

// SurveyRecord — запись анкеты сообщества.
// Опциональные поля — указатели: nil означает NULL в БД.
// Поля bug_* хранят JSON-закодированные списки категорий (TEXT).
type SurveyRecord struct {
	// ID — автоинкрементный идентификатор строки (назначается БД).
	ID int64

	// ResponseID — человекочитаемый идентификатор вида SRV-FORM-<n>.
	ResponseID *string

	// --- Персональные данные ---

	DiscordName *string
	Age         *int
	TOSAccepted *bool

	// --- Железо ---

	CPU    *string
	GPU    *string
	RAM    *string
	OSName *string

	// --- Производительность ---

	AvgFPS          *int
	LowFPS          *int
	StabilityRating *int

	// --- Баг-репорты (категории — JSON-текст) ---

	BugGameplay         *string
	BugGameplayResolved *bool
	BugGameplayLink     *string
	BugGraphics         *string
	BugGraphicsResolved *bool
	BugGraphicsLink     *string
	BugAudio            *string
	BugAudioResolved    *bool
	BugAudioLink        *string
	BugUI               *string
	BugUIResolved       *bool
	BugUILink           *string

	// --- Оценки контента ---

	QuestRating    *int
	StoryRating    *int
	GraphicsRating *int

	// --- Свободный текст ---

	OpenFeedback *string

	// SubmittedAt — время создания записи (неизменяемое).
	SubmittedAt time.Time

	// --- Жизненный цикл санитизации (только staging) ---

	// SanitizationStatus — pending (или NULL), approved, rejected.
	SanitizationStatus *string
	// SanitizationAttempts — счётчик попыток обработки, начинается с 0.
	SanitizationAttempts int
	// SanitizedAt — время последнего перехода статуса.
	SanitizedAt *time.Time
	// RejectedReason — причина отклонения, только при rejected.
	RejectedReason *string
}

// Clone возвращает глубокую копию записи.
// Используется санитайзером: входная запись никогда не мутируется.
func (r *SurveyRecord) Clone() *SurveyRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.ResponseID = cloneStr(r.ResponseID)
	c.DiscordName = cloneStr(r.DiscordName)
	c.Age = cloneInt(r.Age)
	c.TOSAccepted = cloneBool(r.TOSAccepted)
	c.CPU = cloneStr(r.CPU)
	c.GPU = cloneStr(r.GPU)
	c.RAM = cloneStr(r.RAM)
	c.OSName = cloneStr(r.OSName)
	c.AvgFPS = cloneInt(r.AvgFPS)
	c.LowFPS = cloneInt(r.LowFPS)
	c.StabilityRating = cloneInt(r.StabilityRating)
	c.BugGameplay = cloneStr(r.BugGameplay)
	c.BugGameplayResolved = cloneBool(r.BugGameplayResolved)
	c.BugGameplayLink = cloneStr(r.BugGameplayLink)
	c.BugGraphics = cloneStr(r.BugGraphics)
	c.BugGraphicsResolved = cloneBool(r.BugGraphicsResolved)
	c.BugGraphicsLink = cloneStr(r.BugGraphicsLink)
	c.BugAudio = cloneStr(r.BugAudio)
	c.BugAudioResolved = cloneBool(r.BugAudioResolved)
	c.BugAudioLink = cloneStr(r.BugAudioLink)
	c.BugUI = cloneStr(r.BugUI)
	c.BugUIResolved = cloneBool(r.BugUIResolved)
	c.BugUILink = cloneStr(r.BugUILink)
	c.QuestRating = cloneInt(r.QuestRating)
	c.StoryRating = cloneInt(r.StoryRating)
	c.GraphicsRating = cloneInt(r.GraphicsRating)
	c.OpenFeedback = cloneStr(r.OpenFeedback)
	c.SanitizationStatus = cloneStr(r.SanitizationStatus)
	c.SanitizedAt = cloneTime(r.SanitizedAt)
	c.RejectedReason = cloneStr(r.RejectedReason)
	return &c
}

// TextField — именованная ссылка на текстовое поле записи.
// Имя совпадает с именем колонки в БД.
type TextField struct {
	Name  string
	Value **string
}

// TextFields возвращает все текстовые поля записи в порядке схемы.
// Через Value поле можно прочитать и перезаписать (для санитайзера).
func (r *SurveyRecord) TextFields() []TextField {
	return []TextField{
		{"discord_name", &r.DiscordName},
		{"cpu", &r.CPU},
		{"gpu", &r.GPU},
		{"ram", &r.RAM},
		{"os_name", &r.OSName},
		{"bug_gameplay_link", &r.BugGameplayLink},
		{"bug_graphics_link", &r.BugGraphicsLink},
		{"bug_audio_link", &r.BugAudioLink},
		{"bug_ui_link", &r.BugUILink},
		{"open_feedback", &r.OpenFeedback},
	}
}

// JSONFields возвращает JSON-закодированные поля записи (списки
// категорий баг-репортов) в порядке схемы.
func (r *SurveyRecord) JSONFields() []TextField {
	return []TextField{
		{"bug_gameplay", &r.BugGameplay},
		{"bug_graphics", &r.BugGraphics},
		{"bug_audio", &r.BugAudio},
		{"bug_ui", &r.BugUI},
	}
}

// FreeTextFields возвращает поля свободного текста, которые проверяет
// контент-фильтр конвейера санитизации перед переносом в production.
func (r *SurveyRecord) FreeTextFields() []TextField {
	return []TextField{
		{"discord_name", &r.DiscordName},
		{"cpu", &r.CPU},
		{"gpu", &r.GPU},
		{"ram", &r.RAM},
		{"os_name", &r.OSName},
		{"open_feedback", &r.OpenFeedback},
	}
}

func cloneStr(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneBool(p *bool) *bool {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
