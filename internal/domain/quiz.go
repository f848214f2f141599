package domain

import (
	"encoding/base64"
	"strings"
	"time"
	"unicode/utf8"
)

// QuestionType enumerates the supported quiz question kinds.
type QuestionType string

const (
	QuestionSingle    QuestionType = "single"
	QuestionMultiple  QuestionType = "multiple"
	QuestionTrueFalse QuestionType = "true_false"
	QuestionShort     QuestionType = "short"
	QuestionBroad     QuestionType = "broad"
)

// Option is a selectable answer.
type Option struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect,omitempty"`
}

// Question models a quiz question as served by the backend.
type Question struct {
	ID         string       `json:"_id"`
	Question   string       `json:"question"`
	Type       QuestionType `json:"type"`
	Options    []Option     `json:"options,omitempty"`
	WordLimit  int          `json:"wordLimit,omitempty"`
	Points     int          `json:"points"`
	Difficulty string       `json:"difficulty,omitempty"`
}

// Text returns the question body, decoding it when the backend stored base64 HTML.
func (q Question) Text() string {
	raw := strings.TrimSpace(q.Question)
	if raw == "" || strings.ContainsAny(raw, " <>") {
		return q.Question
	}
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil || !utf8.Valid(decoded) || !strings.Contains(string(decoded), "<") {
		return q.Question
	}
	return string(decoded)
}

// Public returns a copy safe to send to participants (correct flags removed).
func (q Question) Public() Question {
	out := q
	out.Question = q.Text()
	if len(q.Options) > 0 {
		out.Options = make([]Option, len(q.Options))
		for i, opt := range q.Options {
			out.Options[i] = Option{Text: opt.Text}
		}
	}
	return out
}

// HasOption reports whether text names one of the options. Questions without
// options accept any text.
func (q Question) HasOption(text string) bool {
	if len(q.Options) == 0 {
		return true
	}
	for _, opt := range q.Options {
		if opt.Text == text {
			return true
		}
	}
	return false
}

// Distribution splits the total question count by difficulty.
type Distribution struct {
	Easy   int `json:"easy" validate:"gte=0"`
	Medium int `json:"medium" validate:"gte=0"`
	Hard   int `json:"hard" validate:"gte=0"`
}

// Total is the sum of all difficulty buckets.
func (d Distribution) Total() int {
	return d.Easy + d.Medium + d.Hard
}

// QuizSettings is the employer-configured quiz round setup.
type QuizSettings struct {
	TimeLimit      int          `json:"timeLimit" validate:"gte=1,lte=300"` // minutes
	PassingScore   int          `json:"passingScore" validate:"gte=0,lte=100"`
	TotalQuestions int          `json:"totalQuestions" validate:"gte=1"`
	Distribution   Distribution `json:"distribution"`
}

// Competition is the subset of the backend competition the journey needs.
type Competition struct {
	ID           string       `json:"_id"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	StartDate    *time.Time   `json:"startDate,omitempty"`
	EndDate      *time.Time   `json:"endDate,omitempty"`
	Prize        string       `json:"prize,omitempty"`
	Location     string       `json:"location,omitempty"`
	QuizSettings QuizSettings `json:"quizSettings"`
}

// Quiz is a competition with its ordered questions.
type Quiz struct {
	Competition Competition `json:"competition"`
	Questions   []Question  `json:"questions"`
}

// AnswerEntry is one answer in a submission. Answer is nil when unanswered.
type AnswerEntry struct {
	QuestionID string `json:"questionId"`
	Answer     any    `json:"answer"`
}

// QuizSubmission is the body sent to the scoring endpoint.
type QuizSubmission struct {
	CompetitionID string        `json:"competitionId"`
	Answers       []AnswerEntry `json:"answers"`
}

// Attempt is the scored attempt as reported by the backend.
type Attempt struct {
	TotalScore float64 `json:"totalScore"`
	Passed     bool    `json:"passed"`
}

// QuizResult is the scoring endpoint response.
type QuizResult struct {
	Attempt Attempt `json:"attempt"`
	Message string  `json:"message"`
}

// FinishReason records why a quiz session ended.
type FinishReason string

const (
	FinishManual    FinishReason = "manual"
	FinishTimeout   FinishReason = "timeout"
	FinishAbandoned FinishReason = "abandoned"
)

// AttemptRecord is a finalized quiz attempt kept in the local journal.
type AttemptRecord struct {
	ID            string        `json:"id"`
	CompetitionID string        `json:"competitionId"`
	UserID        string        `json:"userId"`
	Answers       []AnswerEntry `json:"answers"`
	WarningCount  int           `json:"warningCount"`
	Reason        FinishReason  `json:"reason"`
	TotalScore    float64       `json:"totalScore"`
	Passed        bool          `json:"passed"`
	SubmitError   string        `json:"submitError,omitempty"`
	StartedAt     time.Time     `json:"startedAt"`
	FinishedAt    time.Time     `json:"finishedAt"`
}
