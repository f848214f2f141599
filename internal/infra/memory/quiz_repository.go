package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"gig-geni-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches a competition and its questions from the backend.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, competitionID string) (domain.Quiz, error)
}

// QuizRepository caches quizzes with TTL to avoid refetching them for every attempt.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand
	cache map[string]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, competitionID string) (domain.Quiz, error) {
	if quiz, ok := r.lookup(competitionID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(competitionID, func() (interface{}, error) {
		if quiz, ok := r.lookup(competitionID); ok {
			return quiz, nil
		}

		quiz, err := r.loader.LoadQuiz(ctx, competitionID)
		if err != nil {
			return domain.Quiz{}, err
		}

		r.mu.Lock()
		r.cache[competitionID] = cachedQuiz{
			quiz:      quiz,
			expiresAt: r.clock().Add(r.ttlWithJitterLocked()),
		}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops a cached quiz, e.g. after its settings changed upstream.
func (r *QuizRepository) Invalidate(_ context.Context, competitionID string) error {
	r.mu.Lock()
	delete(r.cache, competitionID)
	r.mu.Unlock()
	return nil
}

func (r *QuizRepository) lookup(competitionID string) (domain.Quiz, bool) {
	now := r.clock()
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[competitionID]
	if !ok || !entry.expiresAt.After(now) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

// StaticQuizLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, competitionID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[competitionID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

func (r *QuizRepository) ttlWithJitterLocked() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
