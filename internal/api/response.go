package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"moviesite/internal/auth"
	"moviesite/internal/models"
	"moviesite/internal/service"
	"moviesite/internal/storage"

	"github.com/gorilla/mux"
)

// envelope is the body of every API response.
type envelope struct {
	Success    bool               `json:"success"`
	Message    string             `json:"message,omitempty"`
	Data       any                `json:"data,omitempty"`
	Pagination *models.Pagination `json:"pagination,omitempty"`
	IntentID   int64              `json:"intentId,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, envelope{Success: true, Data: data})
}

func writePage(w http.ResponseWriter, data any, page models.Pagination) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Pagination: &page})
}

func writeAccepted(w http.ResponseWriter, statusCode int, message string, intentID int64) {
	writeJSON(w, statusCode, envelope{Success: true, Message: message, IntentID: intentID})
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, envelope{Success: false, Message: message})
}

// writeServiceError maps service errors to status codes. Unknown errors are
// logged and reported without detail.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, strings.TrimPrefix(err.Error(), service.ErrValidation.Error()+": "))
		return
	case errors.Is(err, storage.ErrUnsupportedType), errors.Is(err, storage.ErrEmptyFile):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrSelfDelete):
		status = http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrAccountInactive):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrNotRequeueable):
		status = http.StatusConflict
	case errors.Is(err, service.ErrTooManyAttempts):
		status = http.StatusTooManyRequests
	default:
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// queryInt returns 0 for a missing or malformed value so that defaults apply.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return n
}
