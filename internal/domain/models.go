package domain

import "time"

// RoundStatus is the raw status string the backend stores for a round.
type RoundStatus string

const (
	StatusNotStarted  RoundStatus = "not_started"
	StatusInProgress  RoundStatus = "in_progress"
	StatusSubmitted   RoundStatus = "submitted"
	StatusUnderReview RoundStatus = "under_review"
	StatusPending     RoundStatus = "pending"
	StatusScheduled   RoundStatus = "scheduled"
	StatusApproved    RoundStatus = "approved"
	StatusRejected    RoundStatus = "rejected"
	StatusPassed      RoundStatus = "passed"
	StatusFailed      RoundStatus = "failed"
)

// Normalize maps the empty status to not_started.
func (s RoundStatus) Normalize() RoundStatus {
	if s == "" {
		return StatusNotStarted
	}
	return s
}

// DisplayStatus is what a participant sees for a round on their journey.
type DisplayStatus string

const (
	DisplayCompleted DisplayStatus = "completed"
	DisplayCurrent   DisplayStatus = "current"
	DisplayLocked    DisplayStatus = "locked"
	DisplayFailed    DisplayStatus = "failed"
)

// Rounds are numbered 1..4 in this fixed order.
const (
	RoundQuiz    = 1
	RoundVideo   = 2
	RoundMeeting = 3
	RoundTask    = 4

	RoundCount = 4
)

// QuizRound is the round1_quiz sub-record.
type QuizRound struct {
	Status RoundStatus `json:"status"`
	Score  *float64    `json:"score,omitempty"`
}

// VideoRound is the round2_video sub-record.
type VideoRound struct {
	Status      RoundStatus `json:"status"`
	VideoURL    string      `json:"videoUrl,omitempty"`
	SubmittedAt *time.Time  `json:"submittedAt,omitempty"`
}

// MeetingRound is the round3_meeting sub-record.
type MeetingRound struct {
	Status RoundStatus `json:"status"`
}

// TaskRound is the round4_task sub-record.
type TaskRound struct {
	Status RoundStatus `json:"status"`
}

// Participant is a competitor's record as owned by the backend.
type Participant struct {
	ID            string       `json:"_id,omitempty"`
	CompetitionID string       `json:"competition,omitempty"`
	UserID        string       `json:"user,omitempty"`
	Round1Quiz    QuizRound    `json:"round1_quiz"`
	Round2Video   VideoRound   `json:"round2_video"`
	Round3Meeting MeetingRound `json:"round3_meeting"`
	Round4Task    TaskRound    `json:"round4_task"`
	IsEliminated  bool         `json:"isEliminated"`
	IsWinner      bool         `json:"isWinner"`
}

// RoundStatus returns the normalized raw status of round n (1..4).
func (p Participant) RoundStatus(n int) (RoundStatus, error) {
	switch n {
	case RoundQuiz:
		return p.Round1Quiz.Status.Normalize(), nil
	case RoundVideo:
		return p.Round2Video.Status.Normalize(), nil
	case RoundMeeting:
		return p.Round3Meeting.Status.Normalize(), nil
	case RoundTask:
		return p.Round4Task.Status.Normalize(), nil
	}
	return "", ErrInvalidRound
}

// RoundView is one evaluated round on a journey.
type RoundView struct {
	Round  int           `json:"round"`
	Name   string        `json:"name"`
	Raw    RoundStatus   `json:"rawStatus"`
	Status DisplayStatus `json:"status"`
}

// Journey is the evaluated progression of a participant across all rounds.
type Journey struct {
	ParticipantID string      `json:"participantId,omitempty"`
	Rounds        []RoundView `json:"rounds"`
	Eliminated    bool        `json:"eliminated"`
	Winner        bool        `json:"winner"`
	Warnings      []string    `json:"warnings,omitempty"`
}

// VideoStage describes which video submission view applies.
type VideoStage string

const (
	VideoLocked      VideoStage = "locked"
	VideoForm        VideoStage = "form"
	VideoUnderReview VideoStage = "under_review"
	VideoClosed      VideoStage = "closed"
)

// TokenPair is the access/refresh pair issued by the auth API.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
