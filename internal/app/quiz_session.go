package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"gig-geni-service/internal/domain"
)

// QuizState is the lifecycle stage of a quiz attempt.
type QuizState string

const (
	StateIdle     QuizState = "idle"
	StateActive   QuizState = "active"
	StateFinished QuizState = "finished"
)

// DefaultTimeLimit applies when a competition has no usable quiz time limit.
const DefaultTimeLimit = 30 * time.Minute

const submitFailedMessage = "We could not score your quiz. Your attempt has been closed."

// Submitter sends a finished attempt to the scoring backend.
type Submitter interface {
	SubmitQuizAnswers(ctx context.Context, submission domain.QuizSubmission) (domain.QuizResult, error)
}

// SessionResult is the outcome shown after a session finishes.
type SessionResult struct {
	Reason     domain.FinishReason `json:"reason"`
	TotalScore float64             `json:"totalScore"`
	Passed     bool                `json:"passed"`
	Message    string              `json:"message"`
	Failed     bool                `json:"failed"`
}

// Snapshot is a read-only view of a session, pushed to subscribers on every change.
type Snapshot struct {
	AttemptID       string         `json:"attemptId"`
	CompetitionID   string         `json:"competitionId"`
	State           QuizState      `json:"state"`
	TimeLeft        int            `json:"timeLeft"`
	WarningCount    int            `json:"warningCount"`
	CurrentQuestion int            `json:"currentQuestion"`
	Answered        int            `json:"answered"`
	Questions       int            `json:"questions"`
	Abandoned       bool           `json:"abandoned,omitempty"`
	Result          *SessionResult `json:"result,omitempty"`
}

// QuizSession is one participant's timed quiz attempt: idle -> active -> finished.
// The timer is authoritative; losing focus only raises the warning count.
type QuizSession struct {
	id        string
	userID    string
	quiz      domain.Quiz
	index     map[string]int
	submitter Submitter
	now       func() time.Time
	onFinish  func(domain.AttemptRecord)

	mu          sync.Mutex
	state       QuizState
	answers     map[string]any
	current     int
	timeLeft    int
	warnings    int
	reason      domain.FinishReason
	abandoned   bool
	startedAt   time.Time
	finishedAt  time.Time
	submission  domain.QuizSubmission
	result      *SessionResult
	subscribers map[chan Snapshot]struct{}
	done        chan struct{}
}

// NewQuizSession creates an idle session over quiz.
func NewQuizSession(id, userID string, quiz domain.Quiz, submitter Submitter) *QuizSession {
	return newQuizSessionWithClock(id, userID, quiz, submitter, time.Now)
}

func newQuizSessionWithClock(id, userID string, quiz domain.Quiz, submitter Submitter, now func() time.Time) *QuizSession {
	index := make(map[string]int, len(quiz.Questions))
	for i, q := range quiz.Questions {
		index[q.ID] = i
	}
	return &QuizSession{
		id:          id,
		userID:      userID,
		quiz:        quiz,
		index:       index,
		submitter:   submitter,
		now:         now,
		state:       StateIdle,
		answers:     make(map[string]any),
		subscribers: make(map[chan Snapshot]struct{}),
		done:        make(chan struct{}),
	}
}

func (s *QuizSession) ID() string { return s.id }

func (s *QuizSession) UserID() string { return s.userID }

func (s *QuizSession) Quiz() domain.Quiz { return s.quiz }

// Done is closed once the session has finished or been abandoned.
func (s *QuizSession) Done() <-chan struct{} { return s.done }

// Start moves idle -> active and arms the countdown.
func (s *QuizSession) Start() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return s.snapshotLocked(), domain.ErrInvalidTransition
	}
	limit := time.Duration(s.quiz.Competition.QuizSettings.TimeLimit) * time.Minute
	if limit <= 0 {
		limit = DefaultTimeLimit
	}
	s.state = StateActive
	s.timeLeft = int(limit / time.Second)
	s.startedAt = s.now()
	return s.broadcastLocked(), nil
}

// SetAnswer records an answer, replacing any earlier one for the same question.
// A nil answer clears it.
func (s *QuizSession) SetAnswer(questionID string, answer any) (Snapshot, error) {
	i, ok := s.index[questionID]
	if !ok {
		return s.Snapshot(), domain.ErrQuestionNotFound
	}
	var normalized any
	if answer != nil {
		var err error
		if normalized, err = normalizeAnswer(s.quiz.Questions[i], answer); err != nil {
			return s.Snapshot(), err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return s.snapshotLocked(), domain.ErrInvalidTransition
	}
	if normalized == nil {
		delete(s.answers, questionID)
	} else {
		s.answers[questionID] = normalized
	}
	s.current = i
	return s.broadcastLocked(), nil
}

// GoTo moves the participant's position within the question list.
func (s *QuizSession) GoTo(index int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return s.snapshotLocked(), domain.ErrInvalidTransition
	}
	if index < 0 || index >= len(s.quiz.Questions) {
		return s.snapshotLocked(), domain.ErrQuestionNotFound
	}
	s.current = index
	return s.broadcastLocked(), nil
}

// ReportVisibilityLoss counts a tab-hidden event and returns the new warning count.
func (s *QuizSession) ReportVisibilityLoss() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return s.warnings, domain.ErrInvalidTransition
	}
	s.warnings++
	s.broadcastLocked()
	return s.warnings, nil
}

// Tick advances the countdown by one second. Reaching zero submits the
// attempt; ticks outside the active state do nothing.
func (s *QuizSession) Tick(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.timeLeft--
	if s.timeLeft > 0 {
		s.broadcastLocked()
		s.mu.Unlock()
		return
	}
	s.timeLeft = 0
	submission := s.finishLocked(domain.FinishTimeout)
	s.mu.Unlock()

	s.complete(ctx, submission, domain.FinishTimeout)
}

// Submit finishes the attempt on the participant's request. A failed scoring
// call still finishes the session, with a zero score.
func (s *QuizSession) Submit(ctx context.Context) (SessionResult, error) {
	s.mu.Lock()
	if s.state != StateActive {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		if snap.Result != nil {
			return *snap.Result, domain.ErrInvalidTransition
		}
		return SessionResult{}, domain.ErrInvalidTransition
	}
	submission := s.finishLocked(domain.FinishManual)
	s.mu.Unlock()

	return s.complete(ctx, submission, domain.FinishManual), nil
}

// Abandon closes the session without submitting anything.
func (s *QuizSession) Abandon() error {
	s.mu.Lock()
	if s.state == StateFinished {
		s.mu.Unlock()
		return domain.ErrInvalidTransition
	}
	s.state = StateFinished
	s.abandoned = true
	s.reason = domain.FinishAbandoned
	s.finishedAt = s.now()
	s.broadcastLocked()
	record := s.recordLocked()
	s.mu.Unlock()

	if s.onFinish != nil {
		s.onFinish(record)
	}
	close(s.done)
	return nil
}

// finishLocked flips the state so that only one caller ever submits.
func (s *QuizSession) finishLocked(reason domain.FinishReason) domain.QuizSubmission {
	s.state = StateFinished
	s.reason = reason
	s.finishedAt = s.now()
	s.submission = s.submissionLocked()
	return s.submission
}

func (s *QuizSession) complete(ctx context.Context, submission domain.QuizSubmission, reason domain.FinishReason) SessionResult {
	outcome := SessionResult{Reason: reason}
	res, err := s.submitter.SubmitQuizAnswers(ctx, submission)
	submitErr := ""
	if err != nil {
		outcome.Failed = true
		outcome.Message = submitFailedMessage
		submitErr = err.Error()
	} else {
		outcome.TotalScore = res.Attempt.TotalScore
		outcome.Passed = res.Attempt.Passed
		outcome.Message = res.Message
	}

	s.mu.Lock()
	s.result = &outcome
	s.broadcastLocked()
	record := s.recordLocked()
	record.SubmitError = submitErr
	s.mu.Unlock()

	if s.onFinish != nil {
		s.onFinish(record)
	}
	close(s.done)
	return outcome
}

// submissionLocked lists every question in order; unanswered ones carry nil.
func (s *QuizSession) submissionLocked() domain.QuizSubmission {
	entries := make([]domain.AnswerEntry, len(s.quiz.Questions))
	for i, q := range s.quiz.Questions {
		entries[i] = domain.AnswerEntry{QuestionID: q.ID, Answer: s.answers[q.ID]}
	}
	return domain.QuizSubmission{
		CompetitionID: s.quiz.Competition.ID,
		Answers:       entries,
	}
}

func (s *QuizSession) recordLocked() domain.AttemptRecord {
	record := domain.AttemptRecord{
		ID:            s.id,
		CompetitionID: s.quiz.Competition.ID,
		UserID:        s.userID,
		Answers:       s.submission.Answers,
		WarningCount:  s.warnings,
		Reason:        s.reason,
		StartedAt:     s.startedAt,
		FinishedAt:    s.finishedAt,
	}
	if s.result != nil {
		record.TotalScore = s.result.TotalScore
		record.Passed = s.result.Passed
	}
	return record
}

// Snapshot returns the current view of the session.
func (s *QuizSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel of snapshots starting with the current one.
// The caller must invoke cancel to release it.
func (s *QuizSession) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *QuizSession) broadcastLocked() Snapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Slow reader: drop its oldest snapshot so it still sees the newest.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (s *QuizSession) snapshotLocked() Snapshot {
	snap := Snapshot{
		AttemptID:       s.id,
		CompetitionID:   s.quiz.Competition.ID,
		State:           s.state,
		TimeLeft:        s.timeLeft,
		WarningCount:    s.warnings,
		CurrentQuestion: s.current,
		Answered:        len(s.answers),
		Questions:       len(s.quiz.Questions),
		Abandoned:       s.abandoned,
	}
	if s.result != nil {
		res := *s.result
		snap.Result = &res
	}
	return snap
}

// normalizeAnswer checks an answer against its question type and returns the
// canonical value (string or []string) stored in the session.
func normalizeAnswer(q domain.Question, answer any) (any, error) {
	switch q.Type {
	case domain.QuestionMultiple:
		values, err := stringList(answer)
		if err != nil {
			return nil, err
		}
		for _, v := range values {
			if !q.HasOption(v) {
				return nil, fmt.Errorf("%w: unknown option %q", domain.ErrInvalidAnswer, v)
			}
		}
		return values, nil
	case domain.QuestionTrueFalse:
		if b, ok := answer.(bool); ok {
			return strconv.FormatBool(b), nil
		}
		v, ok := answer.(string)
		if !ok || v == "" {
			return nil, domain.ErrInvalidAnswer
		}
		if len(q.Options) == 0 {
			if _, err := strconv.ParseBool(v); err != nil {
				return nil, fmt.Errorf("%w: %q is not true or false", domain.ErrInvalidAnswer, v)
			}
			return v, nil
		}
		if !q.HasOption(v) {
			return nil, fmt.Errorf("%w: unknown option %q", domain.ErrInvalidAnswer, v)
		}
		return v, nil
	case domain.QuestionSingle:
		v, ok := answer.(string)
		if !ok || v == "" {
			return nil, domain.ErrInvalidAnswer
		}
		if !q.HasOption(v) {
			return nil, fmt.Errorf("%w: unknown option %q", domain.ErrInvalidAnswer, v)
		}
		return v, nil
	case domain.QuestionShort, domain.QuestionBroad:
		v, ok := answer.(string)
		if !ok {
			return nil, domain.ErrInvalidAnswer
		}
		if q.WordLimit > 0 && len(strings.Fields(v)) > q.WordLimit {
			return nil, domain.ErrWordLimitExceeded
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: unsupported question type %q", domain.ErrInvalidAnswer, q.Type)
}

func stringList(answer any) ([]string, error) {
	switch v := answer.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, domain.ErrInvalidAnswer
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, domain.ErrInvalidAnswer
}
