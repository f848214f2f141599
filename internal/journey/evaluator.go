// Package journey derives a participant's per-round display status from the
// round outcomes stored by the backend.
package journey

import (
	"fmt"

	"gig-geni-service/internal/domain"
	"go.uber.org/zap"
)

type outcome int

const (
	outcomePending outcome = iota
	outcomePass
	outcomeFail
)

// roundRule classifies the raw statuses of one round.
type roundRule struct {
	name    string
	passing []domain.RoundStatus
	failing []domain.RoundStatus
	pending []domain.RoundStatus
}

var rules = [domain.RoundCount + 1]roundRule{
	domain.RoundQuiz: {
		name:    "quiz",
		passing: []domain.RoundStatus{domain.StatusPassed},
		failing: []domain.RoundStatus{domain.StatusFailed},
		pending: []domain.RoundStatus{domain.StatusNotStarted, domain.StatusInProgress, domain.StatusSubmitted, domain.StatusUnderReview},
	},
	domain.RoundVideo: {
		name:    "video",
		passing: []domain.RoundStatus{domain.StatusPassed, domain.StatusApproved},
		failing: []domain.RoundStatus{domain.StatusFailed, domain.StatusRejected},
		pending: []domain.RoundStatus{domain.StatusNotStarted, domain.StatusPending, domain.StatusSubmitted},
	},
	domain.RoundMeeting: {
		name:    "meeting",
		passing: []domain.RoundStatus{domain.StatusPassed},
		failing: []domain.RoundStatus{domain.StatusFailed},
		pending: []domain.RoundStatus{domain.StatusNotStarted, domain.StatusScheduled},
	},
	domain.RoundTask: {
		name:    "task",
		passing: []domain.RoundStatus{domain.StatusPassed},
		failing: []domain.RoundStatus{domain.StatusFailed},
		pending: []domain.RoundStatus{domain.StatusNotStarted},
	},
}

// transitions gives the display of a round whose gate is open, indexed by
// [outcome][eliminated]. Elimination only locks pending rounds.
var transitions = [3][2]domain.DisplayStatus{
	outcomePending: {domain.DisplayCurrent, domain.DisplayLocked},
	outcomePass:    {domain.DisplayCompleted, domain.DisplayCompleted},
	outcomeFail:    {domain.DisplayFailed, domain.DisplayFailed},
}

// classify maps a raw status to its outcome. Statuses the round does not
// know are treated as pending and reported through known.
func (r roundRule) classify(status domain.RoundStatus) (o outcome, known bool) {
	for _, s := range r.passing {
		if s == status {
			return outcomePass, true
		}
	}
	for _, s := range r.failing {
		if s == status {
			return outcomeFail, true
		}
	}
	for _, s := range r.pending {
		if s == status {
			return outcomePending, true
		}
	}
	return outcomePending, false
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EvaluateRound returns the display status for round (1..4). It is a pure
// function of the participant record and only fails for an out-of-range round.
func EvaluateRound(round int, p domain.Participant) (domain.DisplayStatus, error) {
	if round < domain.RoundQuiz || round > domain.RoundTask {
		return "", domain.ErrInvalidRound
	}

	// The gate is transitive: a round opens only once the previous round is
	// displayed as completed, which in turn requires its own gate to be open.
	if round > domain.RoundQuiz {
		prev, err := EvaluateRound(round-1, p)
		if err != nil {
			return "", err
		}
		if prev != domain.DisplayCompleted {
			// A closed gate hides the round's own status entirely.
			return domain.DisplayLocked, nil
		}
	}

	status, _ := p.RoundStatus(round)
	own, _ := rules[round].classify(status)
	return transitions[own][btoi(p.IsEliminated)], nil
}

// RoundName returns the short name of a round (quiz, video, meeting, task).
func RoundName(round int) string {
	if round < domain.RoundQuiz || round > domain.RoundTask {
		return ""
	}
	return rules[round].name
}

// Evaluate computes every round of a participant's journey. Unrecognised
// statuses and a winner flag on a failed round are listed in Warnings.
func Evaluate(p domain.Participant) (domain.Journey, error) {
	j := domain.Journey{
		ParticipantID: p.ID,
		Rounds:        make([]domain.RoundView, 0, domain.RoundCount),
		Eliminated:    p.IsEliminated,
		Winner:        p.IsWinner,
	}
	for round := domain.RoundQuiz; round <= domain.RoundTask; round++ {
		display, err := EvaluateRound(round, p)
		if err != nil {
			return domain.Journey{}, err
		}
		raw, _ := p.RoundStatus(round)
		name := RoundName(round)
		j.Rounds = append(j.Rounds, domain.RoundView{
			Round:  round,
			Name:   name,
			Raw:    raw,
			Status: display,
		})
		own, known := rules[round].classify(raw)
		if !known {
			j.Warnings = append(j.Warnings, fmt.Sprintf("round %d (%s) has unrecognised status %q", round, name, raw))
		}
		if own == outcomeFail && p.IsWinner {
			j.Warnings = append(j.Warnings, fmt.Sprintf("round %d (%s) failed but participant is marked winner", round, name))
		}
	}
	return j, nil
}

// Evaluator wraps Evaluate and reports contradictory records to the log.
type Evaluator struct {
	logger *zap.Logger
}

func NewEvaluator(logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{logger: logger}
}

func (e *Evaluator) Evaluate(p domain.Participant) (domain.Journey, error) {
	j, err := Evaluate(p)
	if err != nil {
		e.logger.Warn("journey evaluation failed", zap.String("participant", p.ID), zap.Error(err))
		return j, err
	}
	for _, w := range j.Warnings {
		e.logger.Warn("suspicious participant record", zap.String("participant", p.ID), zap.String("detail", w))
	}
	return j, nil
}
