// sanitization.go — обработчики управления конвейером санитизации.
package handlers

import (
	"net/http"
)

// RunSanitization — POST /api/v1/sanitization/run. Ручной запуск
// конвейера; доступен администратору и внешнему планировщику по
// секретному заголовку.
func (h *APIHandler) RunSanitization(w http.ResponseWriter, r *http.Request) {
	result, err := h.pipeline.TriggerRun(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SanitizationStatus — GET /api/v1/sanitization/status. Состояние
// конвейера: размер очереди, результат последнего запуска, время
// следующего планового запуска.
func (h *APIHandler) SanitizationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.pipeline.Status(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
