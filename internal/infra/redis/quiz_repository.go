package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"gig-geni-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches a competition and its questions from the backend.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, competitionID string) (domain.Quiz, error)
}

// QuizRepository caches quizzes in Redis so every instance shares one copy,
// and falls back to the loader on a miss.
// Layout: SET quiz:{competitionID} <quiz json> EX ttl
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	logger *zap.Logger
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration, logger *zap.Logger) *QuizRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, competitionID string) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, competitionID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(competitionID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := r.cached(ctx, competitionID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, competitionID)
		if err != nil {
			return domain.Quiz{}, err
		}

		payload, err := json.Marshal(quiz)
		if err == nil {
			err = r.client.Set(ctx, r.key(competitionID), payload, r.ttlWithJitter()).Err()
		}
		if err != nil {
			r.logger.Warn("quiz cache write failed", zap.String("competition", competitionID), zap.Error(err))
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops a cached quiz, e.g. after its settings changed upstream.
func (r *QuizRepository) Invalidate(ctx context.Context, competitionID string) error {
	return r.client.Del(ctx, r.key(competitionID)).Err()
}

func (r *QuizRepository) cached(ctx context.Context, competitionID string) (domain.Quiz, bool) {
	payload, err := r.client.Get(ctx, r.key(competitionID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("quiz cache read failed", zap.String("competition", competitionID), zap.Error(err))
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(payload, &quiz); err != nil {
		r.logger.Warn("quiz cache entry unreadable", zap.String("competition", competitionID), zap.Error(err))
		return domain.Quiz{}, false
	}
	return quiz, true
}

func (r *QuizRepository) key(competitionID string) string {
	return "quiz:" + competitionID
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
