package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dataquality/internal/db"
	"github.com/sells-group/dataquality/internal/metrics"
	"github.com/sells-group/dataquality/internal/model"
)

var issueCaptureColumns = []string{"job_id", "namespace", "title", "category", "description"}

// IssueBuffer deduplicates and batches issue captures for one job. An issue is
// accepted only when it is neither pending in the buffer nor already
// committed for the job.
type IssueBuffer struct {
	pool    db.Pool
	jobID   int64
	size    int
	metrics *metrics.Metrics

	pending []model.Issue
	seen    map[model.IssueKey]struct{}
}

// NewIssueBuffer creates an IssueBuffer that flushes every size issues.
func NewIssueBuffer(pool db.Pool, jobID int64, size int, m *metrics.Metrics) *IssueBuffer {
	if size <= 0 {
		size = 1000
	}
	return &IssueBuffer{
		pool:    pool,
		jobID:   jobID,
		size:    size,
		metrics: m,
		seen:    make(map[model.IssueKey]struct{}),
	}
}

// CreateIssue buffers issue unless it is a duplicate. It reports whether the
// issue was accepted. A full buffer is flushed before returning; a flush
// error is returned after the accepted issue has been dropped with the batch.
func (b *IssueBuffer) CreateIssue(ctx context.Context, issue model.Issue) (bool, error) {
	key := issue.Key()
	if _, ok := b.seen[key]; ok {
		return false, nil
	}

	var exists bool
	err := b.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM dq_issue_capture
			WHERE job_id = $1 AND namespace = $2 AND title = $3 AND category = $4 AND description = $5)`,
		b.jobID, int(issue.Namespace), issue.Title, issue.Category, issue.Description,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "store: check issue")
	}
	b.seen[key] = struct{}{}
	if exists {
		return false, nil
	}

	b.pending = append(b.pending, issue)
	b.metrics.AddIssue(issue.Category)
	if len(b.pending) >= b.size {
		return true, b.Flush(ctx)
	}
	return true, nil
}

// Size returns the batch size at which the buffer flushes.
func (b *IssueBuffer) Size() int {
	return b.size
}

// Pending returns the number of buffered issues.
func (b *IssueBuffer) Pending() int {
	return len(b.pending)
}

// Flush writes the buffered issues in one transaction. The buffer is cleared
// whether or not the write succeeds. Keys of a dropped batch are forgotten so
// a later occurrence can be captured again.
func (b *IssueBuffer) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = nil

	rows := make([][]any, len(batch))
	for i, is := range batch {
		rows[i] = []any{b.jobID, int(is.Namespace), is.Title, is.Category, is.Description}
	}
	_, err := db.BulkUpsert(ctx, b.pool, db.UpsertConfig{
		Table:           "dq_issue_capture",
		Columns:         issueCaptureColumns,
		ConflictKeys:    issueCaptureColumns,
		IgnoreConflicts: true,
	}, rows)
	if err != nil {
		for _, is := range batch {
			delete(b.seen, is.Key())
		}
		b.metrics.BatchFailed("dq_issue_capture")
		return eris.Wrapf(err, "store: flush %d issues", len(batch))
	}
	return nil
}
