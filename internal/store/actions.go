package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dataquality/internal/db"
	"github.com/sells-group/dataquality/internal/metrics"
	"github.com/sells-group/dataquality/internal/model"
)

var actionColumns = []string{"job_id", "page_id", "namespace", "title", "type", "description", "action_by"}

// ActionBuffer batches verification and deferral actions for one job.
type ActionBuffer struct {
	pool    db.Pool
	jobID   int64
	size    int
	metrics *metrics.Metrics

	pending []model.Action
}

// NewActionBuffer creates an ActionBuffer that flushes every size actions.
func NewActionBuffer(pool db.Pool, jobID int64, size int, m *metrics.Metrics) *ActionBuffer {
	if size <= 0 {
		size = 1000
	}
	return &ActionBuffer{pool: pool, jobID: jobID, size: size, metrics: m}
}

// RecordAction buffers a. Deferral actions without an identified user are
// ignored.
func (b *ActionBuffer) RecordAction(ctx context.Context, a model.Action) error {
	if a.Type == model.ActionPage && !a.Identified() {
		return nil
	}
	if len(a.ActionBy) == 0 {
		a.ActionBy = []string{model.Unidentified}
	}
	b.pending = append(b.pending, a)
	if len(b.pending) >= b.size {
		return b.Flush(ctx)
	}
	return nil
}

// Size returns the batch size at which the buffer flushes.
func (b *ActionBuffer) Size() int {
	return b.size
}

// Pending returns the number of buffered actions.
func (b *ActionBuffer) Pending() int {
	return len(b.pending)
}

// Flush copies the buffered actions in one transaction and clears the buffer.
func (b *ActionBuffer) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	batch := b.pending
	b.pending = nil

	rows := make([][]any, len(batch))
	counts := make(map[model.ActionType]int)
	for i, a := range batch {
		rows[i] = []any{b.jobID, a.PageID, int(a.Namespace), a.Title, string(a.Type), a.Description, a.ActionBy}
		counts[a.Type]++
	}
	err := db.InTx(ctx, b.pool, func(tx pgx.Tx) error {
		_, err := tx.CopyFrom(ctx, pgx.Identifier{"dq_action"}, actionColumns, pgx.CopyFromRows(rows))
		return eris.Wrap(err, "store: copy actions")
	})
	if err != nil {
		b.metrics.BatchFailed("dq_action")
		return eris.Wrapf(err, "store: flush %d actions", len(batch))
	}
	for typ, n := range counts {
		b.metrics.AddActions(string(typ), n)
	}
	return nil
}

// ListActions returns the job's actions of the given type.
func (s *PostgresStore) ListActions(ctx context.Context, jobID int64, typ model.ActionType) ([]model.Action, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT page_id, namespace, title, type, description, action_by
		 FROM dq_action
		 WHERE job_id = $1 AND type = $2
		 ORDER BY namespace, title`,
		jobID, string(typ),
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: list actions")
	}
	defer rows.Close()

	var out []model.Action
	for rows.Next() {
		a := model.Action{JobID: jobID}
		var ns int
		var t string
		if err := rows.Scan(&a.PageID, &ns, &a.Title, &t, &a.Description, &a.ActionBy); err != nil {
			return nil, eris.Wrap(err, "store: scan action")
		}
		a.Namespace = model.Namespace(ns)
		a.Type = model.ActionType(t)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "store: list actions")
}

// ResolveTalkPageIDs points the job's talk-page actions at their article's
// page id. Talk pages whose article has no analysis row keep their own id.
func (s *PostgresStore) ResolveTalkPageIDs(ctx context.Context, jobID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dq_action ac
		 SET page_id = pa.page_id
		 FROM dq_page_analysis pa
		 WHERE ac.job_id = $1 AND pa.job_id = $1
		   AND ac.namespace IN ($2, $3)
		   AND pa.namespace = ac.namespace - 1
		   AND pa.title = ac.title
		   AND ac.page_id IS DISTINCT FROM pa.page_id`,
		jobID, int(model.NamespacePersonTalk), int(model.NamespaceFamilyTalk),
	)
	if err != nil {
		return 0, eris.Wrap(err, "store: resolve talk page ids")
	}
	return tag.RowsAffected(), nil
}
