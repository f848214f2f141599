package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"gig-geni-service/internal/app"
	"gig-geni-service/internal/domain"
	"go.uber.org/zap"
)

const maxRequestBytes = 1 << 20

// APIHandler serves the journey and round endpoints.
type APIHandler struct {
	journeys *app.JourneyService
	logger   *zap.Logger
}

func NewAPIHandler(journeys *app.JourneyService, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{journeys: journeys, logger: logger}
}

// GetJourney handles GET /api/journey/{participantId}.
func (h *APIHandler) GetJourney(w http.ResponseWriter, r *http.Request) {
	view, err := h.journeys.Journey(r.Context(), r.PathValue("participantId"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, view)
}

// EvaluateJourney handles POST /api/journey/evaluate. The body is a
// participant record; nothing is fetched upstream.
func (h *APIHandler) EvaluateJourney(w http.ResponseWriter, r *http.Request) {
	var p domain.Participant
	if !h.decode(w, r, &p) {
		return
	}
	view, err := h.journeys.View(p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, view)
}

// SubmitVideo handles POST /api/participants/{participantId}/video.
func (h *APIHandler) SubmitVideo(w http.ResponseWriter, r *http.Request) {
	var in app.VideoSubmission
	if !h.decode(w, r, &in) {
		return
	}
	view, err := h.journeys.SubmitVideo(r.Context(), r.PathValue("participantId"), in)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, view)
}

// UpdateQuizSettings handles PATCH /api/competitions/{competitionId}/quiz-settings.
func (h *APIHandler) UpdateQuizSettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.QuizSettings
	if !h.decode(w, r, &settings) {
		return
	}
	competition, err := h.journeys.UpdateQuizSettings(r.Context(), r.PathValue("competitionId"), settings)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeData(w, competition)
}

func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, h.logger, fmt.Errorf("%w: %s", domain.ErrValidation, msgInvalidInput))
		return false
	}
	return true
}
