package backend

import (
	"context"
	"fmt"

	"gig-geni-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// QuizLoader assembles a quiz from the competition and question endpoints.
type QuizLoader struct {
	client *Client
}

func NewQuizLoader(client *Client) *QuizLoader {
	return &QuizLoader{client: client}
}

// LoadQuiz fetches competition and questions concurrently.
func (l *QuizLoader) LoadQuiz(ctx context.Context, competitionID string) (domain.Quiz, error) {
	var (
		competition domain.Competition
		questions   []domain.Question
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		competition, err = l.client.GetCompetition(gctx, competitionID)
		return err
	})
	g.Go(func() error {
		var err error
		questions, err = l.client.ListQuizQuestions(gctx, competitionID)
		return err
	})
	if err := g.Wait(); err != nil {
		if IsNotFound(err) {
			return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, competitionID)
		}
		return domain.Quiz{}, err
	}
	if competition.ID == "" {
		competition.ID = competitionID
	}
	return domain.Quiz{Competition: competition, Questions: questions}, nil
}
