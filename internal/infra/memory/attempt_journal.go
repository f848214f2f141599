package memory

import (
	"context"
	"sync"

	"gig-geni-service/internal/domain"
)

// AttemptJournal appends finished attempts to a slice. Used when Postgres is not configured.
type AttemptJournal struct {
	mu      sync.Mutex
	records []domain.AttemptRecord
}

func NewAttemptJournal() *AttemptJournal {
	return &AttemptJournal{}
}

func (j *AttemptJournal) Record(_ context.Context, record domain.AttemptRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, record)
	return nil
}

// Records returns a copy of everything journaled so far.
func (j *AttemptJournal) Records() []domain.AttemptRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]domain.AttemptRecord(nil), j.records...)
}
