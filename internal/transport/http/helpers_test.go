package http

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gig-geni-service/internal/app"
	"gig-geni-service/internal/domain"
	"gig-geni-service/internal/infra/memory"
	"github.com/golang-jwt/jwt/v5"
)

type fakeBackend struct {
	mu           sync.Mutex
	participants map[string]domain.Participant
	submissions  []domain.QuizSubmission
	fail         error
}

func (b *fakeBackend) GetParticipant(_ context.Context, id string) (domain.Participant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return domain.Participant{}, b.fail
	}
	p, ok := b.participants[id]
	if !ok {
		return domain.Participant{}, errors.New("upstream: participant lookup failed")
	}
	return p, nil
}

func (b *fakeBackend) UpdateParticipantVideo(_ context.Context, id string, video domain.VideoRound) (domain.Participant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.participants[id]
	p.Round2Video = video
	b.participants[id] = p
	return p, nil
}

func (b *fakeBackend) UpdateQuizSettings(_ context.Context, id string, settings domain.QuizSettings) (domain.Competition, error) {
	return domain.Competition{ID: id, QuizSettings: settings}, nil
}

func (b *fakeBackend) SubmitQuizAnswers(_ context.Context, submission domain.QuizSubmission) (domain.QuizResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submissions = append(b.submissions, submission)
	return domain.QuizResult{Attempt: domain.Attempt{TotalScore: 1, Passed: true}, Message: "Quiz submitted"}, nil
}

func (b *fakeBackend) submissionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submissions)
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{participants: map[string]domain.Participant{
		"p1": {ID: "p1", CompetitionID: "comp-1", UserID: "u1", Round1Quiz: domain.QuizRound{Status: domain.StatusNotStarted}},
		"p2": {ID: "p2", CompetitionID: "comp-1", UserID: "u1",
			Round1Quiz:  domain.QuizRound{Status: domain.StatusPassed},
			Round2Video: domain.VideoRound{Status: domain.StatusNotStarted}},
	}}
}

func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"comp-1": {
			Competition: domain.Competition{ID: "comp-1", Title: "Go Challenge", QuizSettings: domain.QuizSettings{TimeLimit: 5}},
			Questions: []domain.Question{
				{
					ID:       "q1",
					Question: "What is 2 + 2?",
					Type:     domain.QuestionSingle,
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4", IsCorrect: true},
					},
					Points: 1,
				},
			},
		},
	}
}

type testEnv struct {
	server  *httptest.Server
	backend *fakeBackend
	tokens  *memory.TokenStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	backend := newFakeBackend()
	tokens := memory.NewTokenStore()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), time.Minute)
	quizService := app.NewQuizService(memory.NewSessionStore(), quizzes, backend, backend, memory.NewAttemptJournal(), nil)
	journeys := app.NewJourneyService(backend, nil, app.WithQuizCache(quizzes))

	server := httptest.NewServer(NewRouter(Routes{
		API:    NewAPIHandler(journeys, nil),
		WS:     NewWSHandler(quizService, nil),
		Tokens: tokens,
	}))
	t.Cleanup(server.Close)
	return &testEnv{server: server, backend: backend, tokens: tokens}
}

func accessToken(t *testing.T, sub string, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}
