// submissions.go — обработчики заявок: публичный приём и
// административный просмотр/возврат в очередь.
package handlers

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/surveyhub/internal/api/errors"
	"github.com/bigkaa/surveyhub/internal/domain/model"
	"github.com/bigkaa/surveyhub/internal/service"
)

// maxSubmissionBody — предел размера тела заявки.
const maxSubmissionBody = 1 << 20

// submissionAccepted — ответ на принятую заявку.
type submissionAccepted struct {
	ResponseID string `json:"response_id"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// submissionView — представление staging-записи в API.
type submissionView struct {
	ID         int64  `json:"id"`
	ResponseID string `json:"response_id,omitempty"`

	DiscordName *string `json:"discord_name,omitempty"`
	Age         *int    `json:"age,omitempty"`
	TOSAccepted *bool   `json:"tos_accepted,omitempty"`

	CPU    *string `json:"cpu,omitempty"`
	GPU    *string `json:"gpu,omitempty"`
	RAM    *string `json:"ram,omitempty"`
	OSName *string `json:"os_name,omitempty"`

	AvgFPS          *int `json:"avg_fps,omitempty"`
	LowFPS          *int `json:"low_fps,omitempty"`
	StabilityRating *int `json:"stability_rating,omitempty"`

	BugGameplay         *string `json:"bug_gameplay,omitempty"`
	BugGameplayResolved *bool   `json:"bug_gameplay_resolved,omitempty"`
	BugGameplayLink     *string `json:"bug_gameplay_link,omitempty"`
	BugGraphics         *string `json:"bug_graphics,omitempty"`
	BugGraphicsResolved *bool   `json:"bug_graphics_resolved,omitempty"`
	BugGraphicsLink     *string `json:"bug_graphics_link,omitempty"`
	BugAudio            *string `json:"bug_audio,omitempty"`
	BugAudioResolved    *bool   `json:"bug_audio_resolved,omitempty"`
	BugAudioLink        *string `json:"bug_audio_link,omitempty"`
	BugUI               *string `json:"bug_ui,omitempty"`
	BugUIResolved       *bool   `json:"bug_ui_resolved,omitempty"`
	BugUILink           *string `json:"bug_ui_link,omitempty"`

	QuestRating    *int `json:"quest_rating,omitempty"`
	StoryRating    *int `json:"story_rating,omitempty"`
	GraphicsRating *int `json:"graphics_rating,omitempty"`

	OpenFeedback *string `json:"open_feedback,omitempty"`

	SubmittedAt          time.Time  `json:"submitted_at"`
	SanitizationStatus   string     `json:"sanitization_status"`
	SanitizationAttempts int        `json:"sanitization_attempts"`
	SanitizedAt          *time.Time `json:"sanitized_at,omitempty"`
	RejectedReason       *string    `json:"rejected_reason,omitempty"`
}

// submissionListResponse — страница staging-записей.
type submissionListResponse struct {
	Items  []submissionView `json:"items"`
	Total  int              `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// toSubmissionView строит представление записи для API.
func toSubmissionView(rec *model.SurveyRecord) submissionView {
	responseID := ""
	if rec.ResponseID != nil {
		responseID = *rec.ResponseID
	}
	return submissionView{
		ID:                  rec.ID,
		ResponseID:          responseID,
		DiscordName:         rec.DiscordName,
		Age:                 rec.Age,
		TOSAccepted:         rec.TOSAccepted,
		CPU:                 rec.CPU,
		GPU:                 rec.GPU,
		RAM:                 rec.RAM,
		OSName:              rec.OSName,
		AvgFPS:              rec.AvgFPS,
		LowFPS:              rec.LowFPS,
		StabilityRating:     rec.StabilityRating,
		BugGameplay:         rec.BugGameplay,
		BugGameplayResolved: rec.BugGameplayResolved,
		BugGameplayLink:     rec.BugGameplayLink,
		BugGraphics:         rec.BugGraphics,
		BugGraphicsResolved: rec.BugGraphicsResolved,
		BugGraphicsLink:     rec.BugGraphicsLink,
		BugAudio:            rec.BugAudio,
		BugAudioResolved:    rec.BugAudioResolved,
		BugAudioLink:        rec.BugAudioLink,
		BugUI:               rec.BugUI,
		BugUIResolved:       rec.BugUIResolved,
		BugUILink:           rec.BugUILink,
		QuestRating:         rec.QuestRating,
		StoryRating:         rec.StoryRating,
		GraphicsRating:      rec.GraphicsRating,
		OpenFeedback:        rec.OpenFeedback,

		SubmittedAt:          rec.SubmittedAt,
		SanitizationStatus:   string(model.NormalizeStatus(rec.SanitizationStatus)),
		SanitizationAttempts: rec.SanitizationAttempts,
		SanitizedAt:          rec.SanitizedAt,
		RejectedReason:       rec.RejectedReason,
	}
}

// CreateSubmission — POST /api/v1/submissions. Публичный endpoint приёма
// заявок: payload с дискриминатором "variant" кладётся в staging.
func (h *APIHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSubmissionBody))
	if err != nil {
		apierrors.ValidationError(w, "Ошибка чтения тела запроса")
		return
	}

	sub, err := service.ParseSubmission(body)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	result, err := h.intake.Submit(r.Context(), clientAddr(r), sub)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, submissionAccepted{
		ResponseID: result.ResponseID,
		Status:     string(model.StatusPending),
		Message:    "Заявка принята и поставлена в очередь обработки",
	})
}

// ListSubmissions — GET /api/v1/submissions. Административный просмотр
// staging-таблицы с фильтрацией по статусу и пагинацией.
func (h *APIHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationDefaults(r)

	var status *string
	if raw := r.URL.Query().Get("status"); raw != "" {
		status = &raw
	}

	records, total, err := h.admin.List(r.Context(), status, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := submissionListResponse{
		Items:  make([]submissionView, 0, len(records)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, rec := range records {
		resp.Items = append(resp.Items, toSubmissionView(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetSubmission — GET /api/v1/submissions/{responseID}.
func (h *APIHandler) GetSubmission(w http.ResponseWriter, r *http.Request) {
	responseID := chi.URLParam(r, "responseID")

	rec, err := h.admin.Get(r.Context(), responseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionView(rec))
}

// RequeueSubmission — POST /api/v1/submissions/{responseID}/requeue.
// Возвращает отклонённую запись в очередь конвейера.
func (h *APIHandler) RequeueSubmission(w http.ResponseWriter, r *http.Request) {
	responseID := chi.URLParam(r, "responseID")

	rec, err := h.admin.Requeue(r.Context(), responseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionView(rec))
}

// clientAddr возвращает адрес клиента: первый адрес X-Forwarded-For
// (за reverse proxy) либо host-часть RemoteAddr.
func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		if addr := strings.TrimSpace(parts[0]); addr != "" {
			return addr
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
