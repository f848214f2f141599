package http

import (
	"net/http"

	"gig-geni-service/internal/backend"
	"go.uber.org/zap"
)

// Routes lists the handlers the router mounts. Metrics may be nil.
type Routes struct {
	API     *APIHandler
	WS      *WSHandler
	Tokens  backend.TokenStore
	Metrics http.Handler
	Logger  *zap.Logger
}

// NewRouter mounts health, metrics, the REST API and the quiz websocket.
func NewRouter(routes Routes) http.Handler {
	logger := routes.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	authed := Authenticate(routes.Tokens, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	if routes.Metrics != nil {
		mux.Handle("GET /metrics", routes.Metrics)
	}

	mux.Handle("GET /api/journey/{participantId}", authed(http.HandlerFunc(routes.API.GetJourney)))
	mux.Handle("POST /api/journey/evaluate", authed(http.HandlerFunc(routes.API.EvaluateJourney)))
	mux.Handle("POST /api/participants/{participantId}/video", authed(http.HandlerFunc(routes.API.SubmitVideo)))
	mux.Handle("PATCH /api/competitions/{competitionId}/quiz-settings", authed(http.HandlerFunc(routes.API.UpdateQuizSettings)))
	mux.Handle("GET /ws/quiz", authed(http.HandlerFunc(routes.WS.ServeWS)))
	return mux
}
