package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gig-geni-service/internal/auth"
	"gig-geni-service/internal/domain"
	"gig-geni-service/internal/journey"
	"gig-geni-service/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionRepository abstracts where live quiz sessions are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	Get(key string) (*QuizSession, bool)
	// Add stores session unless key is taken; it returns whichever session is stored.
	Add(key string, session *QuizSession) (*QuizSession, bool)
	Delete(key string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, competitionID string) (domain.Quiz, error)
}

// ParticipantSource fetches participant records from the backend.
type ParticipantSource interface {
	GetParticipant(ctx context.Context, participantID string) (domain.Participant, error)
}

// AttemptJournal keeps a local record of every finished attempt.
type AttemptJournal interface {
	Record(ctx context.Context, record domain.AttemptRecord) error
}

// TickerFunc returns a tick channel and a stop function.
type TickerFunc func(d time.Duration) (<-chan time.Time, func())

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// QuizServiceOption customizes a QuizService.
type QuizServiceOption func(*QuizService)

// WithMetrics attaches a metrics recorder.
func WithMetrics(m *metrics.Recorder) QuizServiceOption {
	return func(s *QuizService) { s.metrics = m }
}

// WithTicker replaces the one-second wall-clock ticker (tests).
func WithTicker(fn TickerFunc) QuizServiceOption {
	return func(s *QuizService) { s.ticker = fn }
}

// WithClock replaces time.Now for new sessions (tests).
func WithClock(now func() time.Time) QuizServiceOption {
	return func(s *QuizService) { s.now = now }
}

// QuizService runs quiz attempts: gating, timers, and journaling.
type QuizService struct {
	sessions     SessionRepository
	quizzes      QuizRepository
	participants ParticipantSource
	submitter    Submitter
	journal      AttemptJournal
	logger       *zap.Logger
	metrics      *metrics.Recorder
	ticker       TickerFunc
	now          func() time.Time

	mu     sync.Mutex
	timers map[string]context.CancelFunc
}

func NewQuizService(store SessionRepository, quizzes QuizRepository, participants ParticipantSource, submitter Submitter, journal AttemptJournal, logger *zap.Logger, opts ...QuizServiceOption) *QuizService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &QuizService{
		sessions:     store,
		quizzes:      quizzes,
		participants: participants,
		submitter:    submitter,
		journal:      journal,
		logger:       logger,
		ticker:       realTicker,
		now:          time.Now,
		timers:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SessionKey identifies one user's attempt at one competition.
func SessionKey(competitionID, userID string) string {
	return competitionID + ":" + userID
}

// Open returns the user's live session for the competition, creating an idle
// one when the participant's quiz round is open. The participant is always
// fetched with the caller's own tokens first, so a live session is only
// handed to a caller the backend accepts.
func (s *QuizService) Open(ctx context.Context, competitionID, participantID string) (*QuizSession, error) {
	userID, ok := auth.UserFromContext(ctx)
	if !ok {
		return nil, domain.ErrUnauthenticated
	}
	participant, err := s.participants.GetParticipant(ctx, participantID)
	if err != nil {
		return nil, fmt.Errorf("load participant: %w", err)
	}
	if err := checkQuizOpen(participant, competitionID, userID); err != nil {
		return nil, err
	}

	key := SessionKey(competitionID, userID)
	if session, ok := s.sessions.Get(key); ok {
		return session, nil
	}

	quiz, err := s.quizzes.GetQuiz(ctx, competitionID)
	if err != nil {
		return nil, err
	}
	if len(quiz.Questions) == 0 {
		return nil, domain.ErrQuizNotFound
	}

	// TODO: expire idle sessions that are never started; today they live until abandoned.
	session := newQuizSessionWithClock(uuid.NewString(), userID, quiz, s.submitter, s.now)
	session.onFinish = func(record domain.AttemptRecord) { s.finished(key, record) }
	stored, _ := s.sessions.Add(key, session)
	return stored, nil
}

func checkQuizOpen(p domain.Participant, competitionID, userID string) error {
	if p.CompetitionID != "" && p.CompetitionID != competitionID {
		return fmt.Errorf("%w: participant belongs to another competition", domain.ErrRoundNotAvailable)
	}
	if p.UserID != "" && p.UserID != userID {
		return fmt.Errorf("%w: participant belongs to another user", domain.ErrRoundNotAvailable)
	}
	display, err := journey.EvaluateRound(domain.RoundQuiz, p)
	if err != nil {
		return err
	}
	if display != domain.DisplayCurrent {
		return fmt.Errorf("%w: quiz round is %s", domain.ErrRoundNotAvailable, display)
	}
	switch p.Round1Quiz.Status.Normalize() {
	case domain.StatusNotStarted, domain.StatusInProgress:
		return nil
	}
	return fmt.Errorf("%w: quiz already %s", domain.ErrRoundNotAvailable, p.Round1Quiz.Status)
}

// Session looks up a live session.
func (s *QuizService) Session(key string) (*QuizSession, error) {
	session, ok := s.sessions.Get(key)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Start activates the session and runs its countdown until it finishes. The
// countdown is detached from ctx's cancellation so a dropped connection
// cannot stop an auto-submit; only Abandon stops it.
func (s *QuizService) Start(ctx context.Context, key string) (Snapshot, error) {
	session, err := s.Session(key)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := session.Start()
	if err != nil {
		return snap, err
	}
	s.metrics.SessionStarted()

	timerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.timers[key] = cancel
	s.mu.Unlock()
	go s.runTimer(timerCtx, session)

	s.logger.Info("quiz started",
		zap.String("attempt", session.ID()),
		zap.String("competition", session.Quiz().Competition.ID),
		zap.String("user", session.UserID()),
		zap.Int("time_left", snap.TimeLeft),
	)
	return snap, nil
}

func (s *QuizService) runTimer(ctx context.Context, session *QuizSession) {
	ticks, stop := s.ticker(time.Second)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-session.Done():
			return
		case <-ticks:
			session.Tick(ctx)
		}
	}
}

// Answer records an answer in the session.
func (s *QuizService) Answer(key, questionID string, answer any) (Snapshot, error) {
	session, err := s.Session(key)
	if err != nil {
		return Snapshot{}, err
	}
	return session.SetAnswer(questionID, answer)
}

// GoTo moves the session's current question.
func (s *QuizService) GoTo(key string, index int) (Snapshot, error) {
	session, err := s.Session(key)
	if err != nil {
		return Snapshot{}, err
	}
	return session.GoTo(index)
}

// ReportVisibilityLoss raises the session's warning count.
func (s *QuizService) ReportVisibilityLoss(key string) (int, error) {
	session, err := s.Session(key)
	if err != nil {
		return 0, err
	}
	count, err := session.ReportVisibilityLoss()
	if err != nil {
		return count, err
	}
	s.metrics.VisibilityWarning()
	s.logger.Info("quiz visibility warning", zap.String("attempt", session.ID()), zap.Int("count", count))
	return count, nil
}

// Submit finishes the session on the participant's request.
func (s *QuizService) Submit(ctx context.Context, key string) (SessionResult, error) {
	session, err := s.Session(key)
	if err != nil {
		return SessionResult{}, err
	}
	return session.Submit(ctx)
}

// Abandon drops the session without submitting it.
func (s *QuizService) Abandon(key string) error {
	session, err := s.Session(key)
	if err != nil {
		return err
	}
	return session.Abandon()
}

// finished runs once per session, from whichever goroutine finished it.
func (s *QuizService) finished(key string, record domain.AttemptRecord) {
	s.mu.Lock()
	if cancel, ok := s.timers[key]; ok {
		cancel()
		delete(s.timers, key)
	}
	s.mu.Unlock()
	s.sessions.Delete(key)

	s.metrics.SessionFinished(string(record.Reason))
	fields := []zap.Field{
		zap.String("attempt", record.ID),
		zap.String("competition", record.CompetitionID),
		zap.String("user", record.UserID),
		zap.String("reason", string(record.Reason)),
		zap.Int("warnings", record.WarningCount),
	}
	if record.SubmitError != "" {
		s.metrics.SubmissionFailed()
		s.logger.Error("quiz submission failed", append(fields, zap.String("error", record.SubmitError))...)
	} else {
		s.logger.Info("quiz finished", append(fields, zap.Float64("score", record.TotalScore), zap.Bool("passed", record.Passed))...)
	}

	if s.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.Record(ctx, record); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("attempt journal write failed", append(fields, zap.Error(err))...)
	}
}
