// auth.go — обработчики логина и логаута администратора.
// POST /api/v1/auth/session — вход (устанавливает session cookie и
// возвращает JWT), DELETE /api/v1/auth/session — выход.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/surveyhub/internal/api/errors"
	"github.com/bigkaa/surveyhub/internal/api/middleware"
)

// loginRequest — тело запроса логина.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse — ответ на успешный логин.
type loginResponse struct {
	Username    string    `json:"username"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Login — POST /api/v1/auth/session.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Нечитаемое тело запроса")
		return
	}
	if req.Username == "" || req.Password == "" {
		apierrors.ValidationError(w, "Требуются username и password")
		return
	}

	result, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    result.SessionToken,
		Path:     "/",
		Expires:  result.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Username:    result.Username,
		AccessToken: result.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   result.ExpiresAt,
	})
}

// Logout — DELETE /api/v1/auth/session.
// Удаляет сессию и гасит cookie. Без cookie отвечает 204.
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := ""
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		token = cookie.Value
	}

	if err := h.auth.Logout(r.Context(), token); err != nil {
		writeServiceError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
