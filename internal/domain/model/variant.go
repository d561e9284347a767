// variant.go — варианты анкет Submission Intake.
//
// Каждый вариант — отдельный тип с собственным набором полей и
// validate-тегами (go-playground/validator). Payload с дискриминатором
// "variant" разбирается в один из типов, Apply проецирует его на общую
// схему колонок SurveyRecord, остальные колонки остаются NULL.
package model

import "encoding/json"

// Имена вариантов анкет (дискриминатор "variant" в payload).
const (
	VariantHardware    = "hardware"
	VariantPersonal    = "personal"
	VariantPerformance = "performance"
	VariantBugReport   = "bugreport"
	VariantQuest       = "quest"
	VariantStory       = "story"
	VariantFull        = "full"
)

// Submission — вариант анкеты, проецируемый на SurveyRecord.
type Submission interface {
	// Variant возвращает имя варианта.
	Variant() string
	// Apply переносит поля варианта в запись.
	Apply(r *SurveyRecord)
}

// BugDetail — группа деталей баг-репорта (категории, флаг resolved, ссылка).
type BugDetail struct {
	Categories []string `json:"categories" validate:"omitempty,max=50,dive,max=200"`
	Resolved   *bool    `json:"resolved"`
	Link       *string  `json:"link" validate:"omitempty,max=500"`
}

// apply записывает группу в тройку колонок bug_*.
// Категории сериализуются в JSON-текст.
func (b *BugDetail) apply(categories **string, resolved **bool, link **string) {
	if b == nil {
		return
	}
	if b.Categories != nil {
		// Сериализация []string не может завершиться ошибкой
		data, _ := json.Marshal(b.Categories)
		s := string(data)
		*categories = &s
	}
	*resolved = b.Resolved
	*link = b.Link
}

// HardwareSubmission — анкета о железе.
type HardwareSubmission struct {
	CPU    *string `json:"cpu" validate:"omitempty,max=500"`
	GPU    *string `json:"gpu" validate:"omitempty,max=500"`
	RAM    *string `json:"ram" validate:"omitempty,max=500"`
	OSName *string `json:"os_name" validate:"omitempty,max=500"`
}

func (s *HardwareSubmission) Variant() string { return VariantHardware }

func (s *HardwareSubmission) Apply(r *SurveyRecord) {
	r.CPU = s.CPU
	r.GPU = s.GPU
	r.RAM = s.RAM
	r.OSName = s.OSName
}

// PersonalSubmission — персональные данные.
// Требует age ≥ 16 и явного принятия условий (проверяется в intake).
type PersonalSubmission struct {
	DiscordName *string `json:"discord_name" validate:"omitempty,max=500"`
	Age         *int    `json:"age" validate:"required,min=16,max=120"`
	TOSAccepted *bool   `json:"tos_accepted" validate:"required"`
}

func (s *PersonalSubmission) Variant() string { return VariantPersonal }

func (s *PersonalSubmission) Apply(r *SurveyRecord) {
	r.DiscordName = s.DiscordName
	r.Age = s.Age
	r.TOSAccepted = s.TOSAccepted
}

// PerformanceSubmission — метрики производительности.
type PerformanceSubmission struct {
	AvgFPS          *int `json:"avg_fps" validate:"omitempty,min=0,max=1000"`
	LowFPS          *int `json:"low_fps" validate:"omitempty,min=0,max=1000"`
	StabilityRating *int `json:"stability_rating" validate:"omitempty,min=1,max=5"`
}

func (s *PerformanceSubmission) Variant() string { return VariantPerformance }

func (s *PerformanceSubmission) Apply(r *SurveyRecord) {
	r.AvgFPS = s.AvgFPS
	r.LowFPS = s.LowFPS
	r.StabilityRating = s.StabilityRating
}

// BugReportSubmission — баг-репорт по четырём группам.
type BugReportSubmission struct {
	Gameplay *BugDetail `json:"gameplay" validate:"omitempty"`
	Graphics *BugDetail `json:"graphics" validate:"omitempty"`
	Audio    *BugDetail `json:"audio" validate:"omitempty"`
	UI       *BugDetail `json:"ui" validate:"omitempty"`
}

func (s *BugReportSubmission) Variant() string { return VariantBugReport }

func (s *BugReportSubmission) Apply(r *SurveyRecord) {
	s.Gameplay.apply(&r.BugGameplay, &r.BugGameplayResolved, &r.BugGameplayLink)
	s.Graphics.apply(&r.BugGraphics, &r.BugGraphicsResolved, &r.BugGraphicsLink)
	s.Audio.apply(&r.BugAudio, &r.BugAudioResolved, &r.BugAudioLink)
	s.UI.apply(&r.BugUI, &r.BugUIResolved, &r.BugUILink)
}

// QuestSubmission — оценка квестов.
type QuestSubmission struct {
	QuestRating  *int    `json:"quest_rating" validate:"required,min=1,max=5"`
	OpenFeedback *string `json:"open_feedback" validate:"omitempty,max=10000"`
}

func (s *QuestSubmission) Variant() string { return VariantQuest }

func (s *QuestSubmission) Apply(r *SurveyRecord) {
	r.QuestRating = s.QuestRating
	r.OpenFeedback = s.OpenFeedback
}

// StorySubmission — оценка сюжета.
type StorySubmission struct {
	StoryRating  *int    `json:"story_rating" validate:"required,min=1,max=5"`
	OpenFeedback *string `json:"open_feedback" validate:"omitempty,max=10000"`
}

func (s *StorySubmission) Variant() string { return VariantStory }

func (s *StorySubmission) Apply(r *SurveyRecord) {
	r.StoryRating = s.StoryRating
	r.OpenFeedback = s.OpenFeedback
}

// FullSubmission — legacy-полная форма: все разделы одной анкетой.
// Как и personal, требует age ≥ 16 и принятия условий.
type FullSubmission struct {
	DiscordName *string `json:"discord_name" validate:"omitempty,max=500"`
	Age         *int    `json:"age" validate:"required,min=16,max=120"`
	TOSAccepted *bool   `json:"tos_accepted" validate:"required"`

	CPU    *string `json:"cpu" validate:"omitempty,max=500"`
	GPU    *string `json:"gpu" validate:"omitempty,max=500"`
	RAM    *string `json:"ram" validate:"omitempty,max=500"`
	OSName *string `json:"os_name" validate:"omitempty,max=500"`

	AvgFPS          *int `json:"avg_fps" validate:"omitempty,min=0,max=1000"`
	LowFPS          *int `json:"low_fps" validate:"omitempty,min=0,max=1000"`
	StabilityRating *int `json:"stability_rating" validate:"omitempty,min=1,max=5"`

	Gameplay *BugDetail `json:"gameplay" validate:"omitempty"`
	Graphics *BugDetail `json:"graphics" validate:"omitempty"`
	Audio    *BugDetail `json:"audio" validate:"omitempty"`
	UI       *BugDetail `json:"ui" validate:"omitempty"`

	QuestRating    *int `json:"quest_rating" validate:"omitempty,min=1,max=5"`
	StoryRating    *int `json:"story_rating" validate:"omitempty,min=1,max=5"`
	GraphicsRating *int `json:"graphics_rating" validate:"omitempty,min=1,max=5"`

	OpenFeedback *string `json:"open_feedback" validate:"omitempty,max=10000"`
}

func (s *FullSubmission) Variant() string { return VariantFull }

func (s *FullSubmission) Apply(r *SurveyRecord) {
	r.DiscordName = s.DiscordName
	r.Age = s.Age
	r.TOSAccepted = s.TOSAccepted
	r.CPU = s.CPU
	r.GPU = s.GPU
	r.RAM = s.RAM
	r.OSName = s.OSName
	r.AvgFPS = s.AvgFPS
	r.LowFPS = s.LowFPS
	r.StabilityRating = s.StabilityRating
	s.Gameplay.apply(&r.BugGameplay, &r.BugGameplayResolved, &r.BugGameplayLink)
	s.Graphics.apply(&r.BugGraphics, &r.BugGraphicsResolved, &r.BugGraphicsLink)
	s.Audio.apply(&r.BugAudio, &r.BugAudioResolved, &r.BugAudioLink)
	s.UI.apply(&r.BugUI, &r.BugUIResolved, &r.BugUILink)
	r.QuestRating = s.QuestRating
	r.StoryRating = s.StoryRating
	r.GraphicsRating = s.GraphicsRating
	r.OpenFeedback = s.OpenFeedback
}
