package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"gig-geni-service/internal/domain"
)

// GetCompetition fetches one competition with its quiz settings.
func (c *Client) GetCompetition(ctx context.Context, competitionID string) (domain.Competition, error) {
	raw, err := c.do(ctx, "competition.get", http.MethodGet, "/competition/"+url.PathEscape(competitionID), nil)
	if err != nil {
		return domain.Competition{}, err
	}
	var out domain.Competition
	if err := decodeData(raw, &out); err != nil {
		return domain.Competition{}, fmt.Errorf("competition.get: decode: %w", err)
	}
	return out, nil
}

// ListQuizQuestions returns the competition's questions in backend order.
func (c *Client) ListQuizQuestions(ctx context.Context, competitionID string) ([]domain.Question, error) {
	path := "/quiz-question?" + url.Values{"competition": {competitionID}}.Encode()
	raw, err := c.do(ctx, "question.list", http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var questions []domain.Question
	if err := decodeData(raw, &questions); err == nil {
		return questions, nil
	}
	// Some deployments wrap the list as {"questions": [...]}.
	var wrapped struct {
		Questions []domain.Question `json:"questions"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("question.list: decode: %w", err)
	}
	return wrapped.Questions, nil
}

// SubmitQuizAnswers posts a finished attempt for scoring.
func (c *Client) SubmitQuizAnswers(ctx context.Context, submission domain.QuizSubmission) (domain.QuizResult, error) {
	raw, err := c.do(ctx, "quiz.submit", http.MethodPost, "/quizAnswer/create", submission)
	if err != nil {
		return domain.QuizResult{}, err
	}
	var body struct {
		domain.QuizResult
		Data *domain.QuizResult `json:"data"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return domain.QuizResult{}, fmt.Errorf("quiz.submit: decode: %w", err)
	}
	result := body.QuizResult
	if body.Data != nil {
		result.Attempt = body.Data.Attempt
		if body.Data.Message != "" {
			result.Message = body.Data.Message
		}
	}
	return result, nil
}

// GetParticipant fetches a participant record.
func (c *Client) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	raw, err := c.do(ctx, "participant.get", http.MethodGet, "/participant/"+url.PathEscape(participantID), nil)
	if err != nil {
		return domain.Participant{}, err
	}
	var out domain.Participant
	if err := decodeData(raw, &out); err != nil {
		return domain.Participant{}, fmt.Errorf("participant.get: decode: %w", err)
	}
	return out, nil
}

type videoUpdate struct {
	ID    string            `json:"id"`
	Video domain.VideoRound `json:"round2_video"`
}

// UpdateParticipantVideo replaces the participant's round 2 record.
func (c *Client) UpdateParticipantVideo(ctx context.Context, participantID string, video domain.VideoRound) (domain.Participant, error) {
	raw, err := c.do(ctx, "participant.update", http.MethodPatch, "/participant/update", videoUpdate{ID: participantID, Video: video})
	if err != nil {
		return domain.Participant{}, err
	}
	var out domain.Participant
	if err := decodeData(raw, &out); err != nil {
		return domain.Participant{}, fmt.Errorf("participant.update: decode: %w", err)
	}
	return out, nil
}

type settingsUpdate struct {
	QuizSettings domain.QuizSettings `json:"quizSettings"`
}

// UpdateQuizSettings stores new quiz settings on the competition.
func (c *Client) UpdateQuizSettings(ctx context.Context, competitionID string, settings domain.QuizSettings) (domain.Competition, error) {
	raw, err := c.do(ctx, "competition.update", http.MethodPatch, "/competition/"+url.PathEscape(competitionID), settingsUpdate{QuizSettings: settings})
	if err != nil {
		return domain.Competition{}, err
	}
	var out domain.Competition
	if err := decodeData(raw, &out); err != nil {
		return domain.Competition{}, fmt.Errorf("competition.update: decode: %w", err)
	}
	return out, nil
}
