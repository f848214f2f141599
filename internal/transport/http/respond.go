package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"gig-geni-service/internal/backend"
	"gig-geni-service/internal/domain"
	"go.uber.org/zap"
)

const (
	msgTryAgain     = "Something went wrong. Please try again later."
	msgSignIn       = "Your session has expired. Please sign in again."
	msgNotFound     = "Not found."
	msgInvalidInput = "Invalid request body."
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, message := classifyError(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, envelope{Success: false, Error: message})
}

// classifyError maps an error to an HTTP status and the message shown to the
// participant. Upstream details never reach the client.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, msgSignIn
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidAnswer),
		errors.Is(err, domain.ErrWordLimitExceeded),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrInvalidRound):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrRoundNotAvailable),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		backend.IsNotFound(err):
		return http.StatusNotFound, msgNotFound
	}
	return http.StatusBadGateway, msgTryAgain
}
