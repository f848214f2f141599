package backend_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"gig-geni-service/internal/auth"
	"gig-geni-service/internal/backend"
	"gig-geni-service/internal/domain"
	"gig-geni-service/internal/infra/memory"
	"gig-geni-service/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap/zaptest"
)

type fakeAPI struct {
	mu        sync.Mutex
	valid     string
	refreshOK bool
	refreshes int32
	requests  []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests = append(f.requests, r.Method+" "+r.URL.RequestURI())
	f.mu.Unlock()

	if r.URL.Path == "/auth/refresh" {
		atomic.AddInt32(&f.refreshes, 1)
		var body struct {
			Token string `json:"token"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !f.refreshOK || body.Token != "refresh-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		f.mu.Lock()
		f.valid = "access-2"
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]string{"accessToken": "access-2"}})
		return
	}

	f.mu.Lock()
	valid := f.valid
	f.mu.Unlock()
	if r.Header.Get("Authorization") != "Bearer "+valid {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"jwt expired"}`))
		return
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/participant/p1":
		_, _ = w.Write([]byte(`{"success":true,"data":{"_id":"p1","competition":"c1","round1_quiz":{"status":"passed","score":80}}}`))
	case r.Method == http.MethodGet && r.URL.Path == "/competition/c1":
		_, _ = w.Write([]byte(`{"_id":"c1","title":"Go Challenge","quizSettings":{"timeLimit":10,"passingScore":60,"totalQuestions":1}}`))
	case r.Method == http.MethodGet && r.URL.Path == "/quiz-question":
		_, _ = w.Write([]byte(`{"questions":[{"_id":"q1","question":"Pick","type":"single","options":[{"text":"a","isCorrect":true}]}]}`))
	case r.Method == http.MethodPost && r.URL.Path == "/quizAnswer/create":
		_, _ = w.Write([]byte(`{"attempt":{"totalScore":70,"passed":true},"message":"Well done"}`))
	case r.Method == http.MethodPatch && r.URL.Path == "/participant/update":
		var body map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"data":{"_id":"p1","round2_video":` + string(body["round2_video"]) + `}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"not found"}`))
	}
}

func newClient(t *testing.T, api *fakeAPI, pair domain.TokenPair) (*backend.Client, *memory.TokenStore, *prometheus.Registry) {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	tokens := memory.NewTokenStore()
	if pair.AccessToken != "" {
		_ = tokens.Put(context.Background(), "u1", pair)
	}
	reg := prometheus.NewRegistry()
	rec := metrics.New(metrics.WithRegistry(reg))
	return backend.NewClient(srv.URL, srv.Client(), tokens, zaptest.NewLogger(t), rec), tokens, reg
}

func userCtx() context.Context {
	return auth.ContextWithUser(context.Background(), "u1")
}

func TestClientUsesPairNamedByCredential(t *testing.T) {
	api := &fakeAPI{valid: "access-own"}
	client, tokens, _ := newClient(t, api, domain.TokenPair{AccessToken: "access-other", RefreshToken: "refresh-other"})
	_ = tokens.Put(context.Background(), "cred-own", domain.TokenPair{AccessToken: "access-own", RefreshToken: "refresh-own"})

	ctx := auth.ContextWithCredential(userCtx(), "cred-own")
	if _, err := client.GetParticipant(ctx, "p1"); err != nil {
		t.Fatalf("GetParticipant: %v", err)
	}

	ctx = auth.ContextWithCredential(userCtx(), "cred-missing")
	if _, err := client.GetParticipant(ctx, "p1"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated without a stored pair, got %v", err)
	}
}

func TestClientDecodesDataEnvelope(t *testing.T) {
	api := &fakeAPI{valid: "access-1"}
	client, _, _ := newClient(t, api, domain.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	p, err := client.GetParticipant(userCtx(), "p1")
	if err != nil {
		t.Fatalf("GetParticipant: %v", err)
	}
	if p.ID != "p1" || p.Round1Quiz.Status != domain.StatusPassed {
		t.Fatalf("unexpected participant: %+v", p)
	}
	if p.Round1Quiz.Score == nil || *p.Round1Quiz.Score != 80 {
		t.Fatalf("expected score 80, got %v", p.Round1Quiz.Score)
	}
}

func TestClientRefreshesOnceAndRetries(t *testing.T) {
	api := &fakeAPI{valid: "access-2", refreshOK: true}
	client, tokens, reg := newClient(t, api, domain.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	if _, err := client.GetParticipant(userCtx(), "p1"); err != nil {
		t.Fatalf("GetParticipant after refresh: %v", err)
	}
	if got := atomic.LoadInt32(&api.refreshes); got != 1 {
		t.Fatalf("expected 1 refresh, got %d", got)
	}
	pair, err := tokens.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("tokens missing after refresh: %v", err)
	}
	if pair.AccessToken != "access-2" || pair.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected stored pair %+v", pair)
	}
	expected := `
# HELP gig_geni_backend_token_refreshes_total Token refresh attempts by result.
# TYPE gig_geni_backend_token_refreshes_total counter
gig_geni_backend_token_refreshes_total{result="success"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "gig_geni_backend_token_refreshes_total"); err != nil {
		t.Fatalf("refresh metric: %v", err)
	}
}

func TestClientClearsTokensWhenRefreshFails(t *testing.T) {
	api := &fakeAPI{valid: "access-2", refreshOK: false}
	client, tokens, _ := newClient(t, api, domain.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	_, err := client.GetParticipant(userCtx(), "p1")
	if !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, err := tokens.Get(context.Background(), "u1"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected tokens cleared, got %v", err)
	}
	if got := atomic.LoadInt32(&api.refreshes); got != 1 {
		t.Fatalf("expected exactly 1 refresh attempt, got %d", got)
	}
}

func TestClientWithoutTokensIsUnauthenticated(t *testing.T) {
	api := &fakeAPI{valid: "access-1"}
	client, _, _ := newClient(t, api, domain.TokenPair{})

	if _, err := client.GetParticipant(userCtx(), "p1"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if len(api.requests) != 0 {
		t.Fatalf("expected no backend call, got %v", api.requests)
	}
}

func TestClientReturnsAPIError(t *testing.T) {
	api := &fakeAPI{valid: "access-1"}
	client, _, _ := newClient(t, api, domain.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	_, err := client.GetParticipant(userCtx(), "missing")
	var apiErr *backend.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "not found" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if !backend.IsNotFound(err) {
		t.Fatal("expected IsNotFound")
	}
}

func TestSubmitQuizAnswers(t *testing.T) {
	api := &fakeAPI{valid: "access-1"}
	client, _, _ := newClient(t, api, domain.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	res, err := client.SubmitQuizAnswers(userCtx(), domain.QuizSubmission{
		CompetitionID: "c1",
		Answers:       []domain.AnswerEntry{{QuestionID: "q1", Answer: "a"}},
	})
	if err != nil {
		t.Fatalf("SubmitQuizAnswers: %v", err)
	}
	if res.Attempt.TotalScore != 70 || !res.Attempt.Passed || res.Message != "Well done" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestUpdateParticipantVideo(t *testing.T) {
	api := &fakeAPI{valid: "access-1"}
	client, _, _ := newClient(t, api, domain.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	p, err := client.UpdateParticipantVideo(userCtx(), "p1", domain.VideoRound{
		Status:   domain.StatusSubmitted,
		VideoURL: "https://videos.example/p1.mp4",
	})
	if err != nil {
		t.Fatalf("UpdateParticipantVideo: %v", err)
	}
	if p.Round2Video.Status != domain.StatusSubmitted || p.Round2Video.VideoURL != "https://videos.example/p1.mp4" {
		t.Fatalf("unexpected video round %+v", p.Round2Video)
	}
}

func TestQuizLoaderCombinesEndpoints(t *testing.T) {
	api := &fakeAPI{valid: "access-1"}
	client, _, _ := newClient(t, api, domain.TokenPair{AccessToken: "access-1", RefreshToken: "refresh-1"})

	quiz, err := backend.NewQuizLoader(client).LoadQuiz(userCtx(), "c1")
	if err != nil {
		t.Fatalf("LoadQuiz: %v", err)
	}
	if quiz.Competition.Title != "Go Challenge" || quiz.Competition.QuizSettings.TimeLimit != 10 {
		t.Fatalf("unexpected competition %+v", quiz.Competition)
	}
	if len(quiz.Questions) != 1 || quiz.Questions[0].ID != "q1" {
		t.Fatalf("unexpected questions %+v", quiz.Questions)
	}

	if _, err := backend.NewQuizLoader(client).LoadQuiz(userCtx(), "nope"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}
