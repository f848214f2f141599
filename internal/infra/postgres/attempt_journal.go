package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"gig-geni-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AttemptJournal stores finished quiz attempts in quiz_attempts.
type AttemptJournal struct {
	pool *pgxpool.Pool
}

func NewAttemptJournal(pool *pgxpool.Pool) *AttemptJournal {
	return &AttemptJournal{pool: pool}
}

func (j *AttemptJournal) Record(ctx context.Context, record domain.AttemptRecord) error {
	answers, err := json.Marshal(record.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	_, err = j.pool.Exec(ctx, `
		INSERT INTO quiz_attempts
			(id, competition_id, user_id, answers, warning_count, reason, total_score, passed, submit_error, started_at, finished_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, NULLIF($9, ''), $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		record.ID, record.CompetitionID, record.UserID, string(answers), record.WarningCount,
		string(record.Reason), record.TotalScore, record.Passed, record.SubmitError,
		record.StartedAt, record.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Attempts lists a user's attempts at a competition, newest first.
func (j *AttemptJournal) Attempts(ctx context.Context, competitionID, userID string) ([]domain.AttemptRecord, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT id, competition_id, user_id, answers, warning_count, reason, total_score, passed,
			COALESCE(submit_error, ''), started_at, finished_at
		FROM quiz_attempts
		WHERE competition_id = $1 AND user_id = $2
		ORDER BY finished_at DESC`, competitionID, userID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.AttemptRecord
	for rows.Next() {
		var (
			rec    domain.AttemptRecord
			raw    []byte
			reason string
		)
		if err := rows.Scan(&rec.ID, &rec.CompetitionID, &rec.UserID, &raw, &rec.WarningCount, &reason,
			&rec.TotalScore, &rec.Passed, &rec.SubmitError, &rec.StartedAt, &rec.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if err := json.Unmarshal(raw, &rec.Answers); err != nil {
			return nil, fmt.Errorf("unmarshal answers: %w", err)
		}
		rec.Reason = domain.FinishReason(reason)
		out = append(out, rec)
	}
	return out, rows.Err()
}
