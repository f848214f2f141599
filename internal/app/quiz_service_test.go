package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gig-geni-service/internal/app"
	"gig-geni-service/internal/auth"
	"gig-geni-service/internal/domain"
	"gig-geni-service/internal/infra/memory"
)

type stubBackend struct {
	mu           sync.Mutex
	participants map[string]domain.Participant
	submissions  []domain.QuizSubmission
	submitErr    error
	settings     []domain.QuizSettings
	rejectAuth   bool
}

func (b *stubBackend) GetParticipant(_ context.Context, id string) (domain.Participant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rejectAuth {
		return domain.Participant{}, domain.ErrUnauthenticated
	}
	p, ok := b.participants[id]
	if !ok {
		return domain.Participant{}, errors.New("participant not found")
	}
	return p, nil
}

func (b *stubBackend) UpdateParticipantVideo(_ context.Context, id string, video domain.VideoRound) (domain.Participant, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.participants[id]
	p.Round2Video = video
	b.participants[id] = p
	return p, nil
}

func (b *stubBackend) UpdateQuizSettings(_ context.Context, id string, settings domain.QuizSettings) (domain.Competition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings = append(b.settings, settings)
	return domain.Competition{ID: id, QuizSettings: settings}, nil
}

func (b *stubBackend) SubmitQuizAnswers(_ context.Context, submission domain.QuizSubmission) (domain.QuizResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submissions = append(b.submissions, submission)
	if b.submitErr != nil {
		return domain.QuizResult{}, b.submitErr
	}
	return domain.QuizResult{Attempt: domain.Attempt{TotalScore: 3, Passed: true}, Message: "Quiz submitted"}, nil
}

func (b *stubBackend) submissionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submissions)
}

type manualTicker struct {
	ch chan time.Time
}

func (m *manualTicker) fn(time.Duration) (<-chan time.Time, func()) {
	return m.ch, func() {}
}

func newBackend() *stubBackend {
	return &stubBackend{participants: map[string]domain.Participant{
		"p1": {ID: "p1", CompetitionID: "comp-1", UserID: "u1", Round1Quiz: domain.QuizRound{Status: domain.StatusNotStarted}},
		"p2": {ID: "p2", CompetitionID: "comp-1", UserID: "u2", Round1Quiz: domain.QuizRound{Status: domain.StatusSubmitted}},
		"p3": {ID: "p3", CompetitionID: "comp-1", UserID: "u3", Round1Quiz: domain.QuizRound{Status: domain.StatusNotStarted}, IsEliminated: true},
	}}
}

func quizFixture() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"comp-1": {
			Competition: domain.Competition{ID: "comp-1", Title: "Go Challenge", QuizSettings: domain.QuizSettings{TimeLimit: 1}},
			Questions: []domain.Question{
				{ID: "q1", Question: "What is 2 + 2?", Type: domain.QuestionSingle, Points: 1,
					Options: []domain.Option{{Text: "3"}, {Text: "4", IsCorrect: true}}},
				{ID: "q2", Question: "Go is statically typed", Type: domain.QuestionTrueFalse, Points: 1},
			},
		},
	}
}

func newTestService(backend *stubBackend, ticker *manualTicker) (*app.QuizService, *memory.SessionStore, *memory.AttemptJournal) {
	store := memory.NewSessionStore()
	journal := memory.NewAttemptJournal()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(quizFixture()), 5*time.Minute)
	svc := app.NewQuizService(store, quizzes, backend, backend, journal, nil, app.WithTicker(ticker.fn))
	return svc, store, journal
}

func userCtx(id string) context.Context {
	return auth.ContextWithUser(context.Background(), id)
}

func waitDone(t *testing.T, s *app.QuizSession) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not finish")
	}
}

func TestOpenReturnsSameSession(t *testing.T) {
	svc, _, _ := newTestService(newBackend(), &manualTicker{ch: make(chan time.Time)})

	first, err := svc.Open(userCtx("u1"), "comp-1", "p1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	second, err := svc.Open(userCtx("u1"), "comp-1", "p1")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if first != second {
		t.Fatalf("expected the live session to be reused")
	}
	if first.Snapshot().State != app.StateIdle {
		t.Fatalf("expected new session idle")
	}
}

func TestOpenChecksCallerBeforeReusingSession(t *testing.T) {
	backend := newBackend()
	svc, _, _ := newTestService(backend, &manualTicker{ch: make(chan time.Time)})

	if _, err := svc.Open(userCtx("u1"), "comp-1", "p1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	backend.mu.Lock()
	backend.rejectAuth = true
	backend.mu.Unlock()

	session, err := svc.Open(userCtx("u1"), "comp-1", "p1")
	if !errors.Is(err, domain.ErrUnauthenticated) || session != nil {
		t.Fatalf("expected live session withheld from rejected caller, got %v err=%v", session, err)
	}
}

func TestOpenGatesOnQuizRound(t *testing.T) {
	svc, _, _ := newTestService(newBackend(), &manualTicker{ch: make(chan time.Time)})

	cases := []struct {
		name, user, participant string
	}{
		{"already submitted", "u2", "p2"},
		{"eliminated", "u3", "p3"},
		{"someone else's record", "u9", "p1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Open(userCtx(tc.user), "comp-1", tc.participant); !errors.Is(err, domain.ErrRoundNotAvailable) {
				t.Fatalf("expected round not available, got %v", err)
			}
		})
	}

	if _, err := svc.Open(context.Background(), "comp-1", "p1"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated without user, got %v", err)
	}
}

func TestTimerAutoSubmitsOnceAndJournals(t *testing.T) {
	backend := newBackend()
	ticker := &manualTicker{ch: make(chan time.Time)}
	svc, store, journal := newTestService(backend, ticker)
	ctx := userCtx("u1")

	session, err := svc.Open(ctx, "comp-1", "p1")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	key := app.SessionKey("comp-1", "u1")
	if _, err := svc.Start(ctx, key); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Answer(key, "q1", "4"); err != nil {
		t.Fatalf("answer: %v", err)
	}

	for i := 0; i < 60; i++ {
		ticker.ch <- time.Now()
	}
	waitDone(t, session)

	if backend.submissionCount() != 1 {
		t.Fatalf("expected one auto-submit, got %d", backend.submissionCount())
	}
	sub := backend.submissions[0]
	if len(sub.Answers) != 2 || sub.Answers[1].Answer != nil {
		t.Fatalf("expected full payload with unanswered q2, got %+v", sub.Answers)
	}
	records := journal.Records()
	if len(records) != 1 || records[0].Reason != domain.FinishTimeout || !records[0].Passed {
		t.Fatalf("expected one timeout record, got %+v", records)
	}
	if store.Len() != 0 {
		t.Fatalf("expected finished session removed from store")
	}
}

func TestManualSubmitWithBackendFailure(t *testing.T) {
	backend := newBackend()
	backend.submitErr = errors.New("502 bad gateway")
	svc, _, journal := newTestService(backend, &manualTicker{ch: make(chan time.Time)})
	ctx := userCtx("u1")

	if _, err := svc.Open(ctx, "comp-1", "p1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	key := app.SessionKey("comp-1", "u1")
	if _, err := svc.Start(ctx, key); err != nil {
		t.Fatalf("start: %v", err)
	}
	count, err := svc.ReportVisibilityLoss(key)
	if err != nil || count != 1 {
		t.Fatalf("expected first warning, got %d err=%v", count, err)
	}

	res, err := svc.Submit(ctx, key)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Failed || res.TotalScore != 0 {
		t.Fatalf("expected failed zero-score result, got %+v", res)
	}
	records := journal.Records()
	if len(records) != 1 || records[0].WarningCount != 1 || records[0].SubmitError == "" {
		t.Fatalf("expected journaled failure with warning count, got %+v", records)
	}
	if _, err := svc.Submit(ctx, key); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected finished session gone, got %v", err)
	}
}

func TestAbandonLeavesAttemptUnsubmitted(t *testing.T) {
	backend := newBackend()
	svc, store, journal := newTestService(backend, &manualTicker{ch: make(chan time.Time)})
	ctx := userCtx("u1")

	if _, err := svc.Open(ctx, "comp-1", "p1"); err != nil {
		t.Fatalf("open: %v", err)
	}
	key := app.SessionKey("comp-1", "u1")
	if _, err := svc.Start(ctx, key); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.Abandon(key); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if backend.submissionCount() != 0 {
		t.Fatalf("expected no submission on abandon")
	}
	if store.Len() != 0 {
		t.Fatalf("expected abandoned session removed")
	}
	if records := journal.Records(); len(records) != 1 || records[0].Reason != domain.FinishAbandoned {
		t.Fatalf("expected abandoned record, got %+v", records)
	}
}
