package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Job statuses recorded in dq_job.
const (
	JobRunning  = "running"
	JobComplete = "complete"
	JobFailed   = "failed"
)

// Job is a row in dq_job.
type Job struct {
	ID              int64      `json:"id"`
	RunID           uuid.UUID  `json:"run_id"`
	Status          string     `json:"status"`
	StartRound      int        `json:"start_round"`
	EndRound        int        `json:"end_round"`
	RoundsCompleted int        `json:"rounds_completed"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Error           string     `json:"error,omitempty"`
}

const jobColumns = `job_id, run_id, status, start_round, end_round, rounds_completed, started_at, completed_at, error`

// StartJob assigns a new job id and records the run.
func (s *PostgresStore) StartJob(ctx context.Context, startRound, endRound int) (*Job, error) {
	j := &Job{
		RunID:      uuid.New(),
		Status:     JobRunning,
		StartRound: startRound,
		EndRound:   endRound,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO dq_job (run_id, status, start_round, end_round, started_at)
		 VALUES ($1, 'running', $2, $3, now()) RETURNING job_id, started_at`,
		j.RunID, startRound, endRound,
	).Scan(&j.ID, &j.StartedAt)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: start")
	}
	return j, nil
}

// LatestJob returns the job with the highest id, or nil when none exists.
func (s *PostgresStore) LatestJob(ctx context.Context) (*Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM dq_job ORDER BY job_id DESC LIMIT 1`)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "jobs: latest")
	}
	return j, nil
}

// ResumeJob marks an existing job as running again for an extension run.
func (s *PostgresStore) ResumeJob(ctx context.Context, jobID int64, endRound int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE dq_job SET status = 'running', end_round = $1, completed_at = NULL, error = NULL
		 WHERE job_id = $2`,
		endRound, jobID,
	)
	return eris.Wrapf(err, "jobs: resume %d", jobID)
}

// RoundComplete records the last finished round of a job.
func (s *PostgresStore) RoundComplete(ctx context.Context, jobID int64, round int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE dq_job SET rounds_completed = $1 WHERE job_id = $2`,
		round, jobID,
	)
	return eris.Wrapf(err, "jobs: round %d complete for job %d", round, jobID)
}

// CompleteJob marks a job as successfully completed.
func (s *PostgresStore) CompleteJob(ctx context.Context, jobID int64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE dq_job SET status = 'complete', completed_at = now() WHERE job_id = $1`,
		jobID,
	)
	return eris.Wrapf(err, "jobs: complete %d", jobID)
}

// FailJob marks a job as failed with an error message.
func (s *PostgresStore) FailJob(ctx context.Context, jobID int64, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE dq_job SET status = 'failed', completed_at = now(), error = $1 WHERE job_id = $2`,
		errMsg, jobID,
	)
	return eris.Wrapf(err, "jobs: fail %d", jobID)
}

// ListJobs returns the most recent jobs first.
func (s *PostgresStore) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM dq_job ORDER BY job_id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "jobs: list")
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "jobs: scan")
		}
		jobs = append(jobs, *j)
	}
	return jobs, eris.Wrap(rows.Err(), "jobs: list")
}

// HasReports reports whether dq_page or dq_stats holds rows for jobID or any
// later job.
func (s *PostgresStore) HasReports(ctx context.Context, jobID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dq_page WHERE job_id >= $1)
		     OR EXISTS (SELECT 1 FROM dq_stats WHERE job_id >= $1)`,
		jobID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "jobs: check reports for %d", jobID)
	}
	return exists, nil
}

// TouchQueryCache records ts as the last refresh of the named cache.
func (s *PostgresStore) TouchQueryCache(ctx context.Context, cacheType string, ts time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO querycache_info (type, timestamp) VALUES ($1, $2)
		 ON CONFLICT (type) DO UPDATE SET timestamp = EXCLUDED.timestamp`,
		cacheType, ts,
	)
	return eris.Wrapf(err, "jobs: touch querycache %s", cacheType)
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var errStr *string
	if err := row.Scan(&j.ID, &j.RunID, &j.Status, &j.StartRound, &j.EndRound,
		&j.RoundsCompleted, &j.StartedAt, &j.CompletedAt, &errStr); err != nil {
		return nil, err
	}
	if errStr != nil {
		j.Error = *errStr
	}
	return &j, nil
}
