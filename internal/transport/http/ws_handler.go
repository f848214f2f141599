package http

import (
	"context"
	"encoding/json"
	"net/http"

	"gig-geni-service/internal/app"
	"gig-geni-service/internal/auth"
	"gig-geni-service/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WSHandler struct {
	service  *app.QuizService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	Answer     any    `json:"answer"`
}

type gotoPayload struct {
	Index int `json:"index"`
}

type visibilityPayload struct {
	Hidden bool `json:"hidden"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type quizPayload struct {
	AttemptID   string             `json:"attemptId"`
	Competition domain.Competition `json:"competition"`
	Questions   []domain.Question  `json:"questions"`
	TimeLimit   int                `json:"timeLimit"`
}

type warningPayload struct {
	Count int `json:"count"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	_, message := classifyError(err)
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: message}}
}

// ServeWS upgrades HTTP requests to websockets and drives one participant's quiz.
// Closing the socket does not stop a started quiz; reconnecting resumes it.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	competitionID := r.URL.Query().Get("competitionId")
	participantID := r.URL.Query().Get("participantId")
	if competitionID == "" || participantID == "" {
		http.Error(w, "missing competitionId or participantId", http.StatusBadRequest)
		return
	}
	userID, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, domain.ErrUnauthenticated)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, err := h.service.Open(ctx, competitionID, participantID)
	if err != nil {
		if status, _ := classifyError(err); status >= http.StatusInternalServerError {
			h.logger.Error("open quiz failed", zap.String("competition", competitionID), zap.String("user", userID), zap.Error(err))
		}
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	key := app.SessionKey(competitionID, userID)

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		resultSent := false
		forward := func(msg outboundMessage[any]) bool {
			select {
			case send <- msg:
				return true
			case <-closeSignals:
				return false
			}
		}
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if !forward(outboundMessage[any]{Type: "state", Payload: snap}) {
					return
				}
				if snap.Result != nil && !resultSent {
					resultSent = true
					if !forward(outboundMessage[any]{Type: "result", Payload: *snap.Result}) {
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	quiz := session.Quiz()
	questions := make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		questions[i] = q.Public()
	}
	timeLimit := quiz.Competition.QuizSettings.TimeLimit
	if timeLimit <= 0 {
		timeLimit = int(app.DefaultTimeLimit.Minutes())
	}
	send <- outboundMessage[any]{Type: "quiz", Payload: quizPayload{
		AttemptID:   session.ID(),
		Competition: quiz.Competition,
		Questions:   questions,
		TimeLimit:   timeLimit,
	}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if msg, ok := h.handle(r, key, inbound); ok {
			send <- msg
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handle runs one inbound command. State changes reach the client through
// the session subscription, so only warnings and errors are returned here.
func (h *WSHandler) handle(r *http.Request, key string, inbound inboundMessage) (outboundMessage[any], bool) {
	ctx := r.Context()
	var err error
	switch inbound.Type {
	case "start":
		_, err = h.service.Start(ctx, key)
	case "answer":
		var payload answerPayload
		if json.Unmarshal(inbound.Payload, &payload) != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}, true
		}
		_, err = h.service.Answer(key, payload.QuestionID, payload.Answer)
	case "goto":
		var payload gotoPayload
		if json.Unmarshal(inbound.Payload, &payload) != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid goto payload"}}, true
		}
		_, err = h.service.GoTo(key, payload.Index)
	case "visibility":
		var payload visibilityPayload
		if json.Unmarshal(inbound.Payload, &payload) != nil {
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid visibility payload"}}, true
		}
		if !payload.Hidden {
			return outboundMessage[any]{}, false
		}
		count, verr := h.service.ReportVisibilityLoss(key)
		if verr == nil {
			return outboundMessage[any]{Type: "warning", Payload: warningPayload{Count: count}}, true
		}
		err = verr
	case "submit":
		// A dropped socket must not cancel scoring halfway.
		_, err = h.service.Submit(context.WithoutCancel(ctx), key)
	case "abandon":
		err = h.service.Abandon(key)
	default:
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}, true
	}
	if err != nil {
		return errorMessage(err), true
	}
	return outboundMessage[any]{}, false
}
