package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dataquality/internal/db"
	"github.com/sells-group/dataquality/internal/model"
)

var analysisColumns = []string{
	"job_id", "page_id", "namespace", "title",
	"earliest_birth_year", "latest_birth_year", "latest_death_year",
	"earliest_marriage_year", "latest_marriage_year",
	"parent_page", "husband_page", "wife_page",
	"died_young_ind", "famous_ind", "ancient_ind",
	"last_user", "birth_calc", "viewed_by",
}

// linkIndexes are the secondary indexes on the link columns, dropped for the
// round-1 bulk load.
var linkIndexes = []struct{ name, column string }{
	{"dq_page_analysis_parent_page", "parent_page"},
	{"dq_page_analysis_husband_page", "husband_page"},
	{"dq_page_analysis_wife_page", "wife_page"},
}

// InsertAnalysisRows writes one batch of analysis rows in a single
// transaction. A row that already exists for the job keeps its values.
func (s *PostgresStore) InsertAnalysisRows(ctx context.Context, rows []model.AnalysisRow) (int64, error) {
	data := make([][]any, 0, len(rows))
	for _, r := range rows {
		data = append(data, []any{
			r.JobID, r.PageID, int(r.Namespace), r.Title,
			r.Birth.Earliest, r.Birth.Latest, r.LatestDeath,
			r.Marriage.Earliest, r.Marriage.Latest,
			nullString(r.ParentPage), nullString(r.HusbandPage), nullString(r.WifePage),
			r.DiedYoung, r.Famous, r.Ancient,
			nullString(r.LastUser), r.BirthCalc, r.ViewedBy,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:           "dq_page_analysis",
		Columns:         analysisColumns,
		ConflictKeys:    []string{"title", "job_id", "namespace"},
		IgnoreConflicts: true,
	}, data)
	if err != nil {
		return 0, eris.Wrap(err, "store: insert analysis rows")
	}
	return n, nil
}

// SelectUnbounded returns the next page of Person rows, in ascending page id
// order after afterPageID, whose birth bracket is open or wider than
// threshold years. Contradictory brackets have a negative width and are
// never selected.
func (s *PostgresStore) SelectUnbounded(ctx context.Context, jobID, afterPageID int64, threshold, limit int) ([]model.AnalysisRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT page_id, title, earliest_birth_year, latest_birth_year, latest_death_year,
		        COALESCE(parent_page, ''), died_young_ind, birth_calc
		 FROM dq_page_analysis
		 WHERE job_id = $1 AND namespace = $2 AND page_id > $3
		   AND (earliest_birth_year IS NULL OR latest_birth_year IS NULL
		        OR latest_birth_year - earliest_birth_year > $4)
		 ORDER BY page_id
		 LIMIT $5`,
		jobID, int(model.NamespacePerson), afterPageID, threshold, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: select unbounded")
	}
	defer rows.Close()

	var out []model.AnalysisRow
	for rows.Next() {
		r := model.AnalysisRow{JobID: jobID, Namespace: model.NamespacePerson}
		if err := rows.Scan(&r.PageID, &r.Title, &r.Birth.Earliest, &r.Birth.Latest, &r.LatestDeath,
			&r.ParentPage, &r.DiedYoung, &r.BirthCalc); err != nil {
			return nil, eris.Wrap(err, "store: scan unbounded row")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "store: select unbounded")
}

// UpdateBrackets writes the birth bracket and trace of each changed row in
// one statement and one transaction.
func (s *PostgresStore) UpdateBrackets(ctx context.Context, jobID int64, rows []model.AnalysisRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	ids := make([]int64, len(rows))
	earliest := make([]*int, len(rows))
	latest := make([]*int, len(rows))
	calc := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.PageID
		earliest[i] = r.Birth.Earliest
		latest[i] = r.Birth.Latest
		calc[i] = r.BirthCalc
	}

	var updated int64
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE dq_page_analysis a
			 SET earliest_birth_year = u.earliest, latest_birth_year = u.latest, birth_calc = u.calc
			 FROM unnest($2::bigint[], $3::int[], $4::int[], $5::text[]) AS u(page_id, earliest, latest, calc)
			 WHERE a.job_id = $1 AND a.namespace = $6 AND a.page_id = u.page_id`,
			jobID, ids, earliest, latest, calc, int(model.NamespacePerson),
		)
		if err != nil {
			return eris.Wrap(err, "store: update brackets")
		}
		updated = tag.RowsAffected()
		return nil
	})
	return updated, err
}

// DropLinkIndexes removes the link column indexes before a bulk load.
func (s *PostgresStore) DropLinkIndexes(ctx context.Context) error {
	for _, idx := range linkIndexes {
		sql := fmt.Sprintf("DROP INDEX IF EXISTS %s", pgx.Identifier{idx.name}.Sanitize())
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return eris.Wrapf(err, "store: drop index %s", idx.name)
		}
	}
	return nil
}

// CreateLinkIndexes restores the link column indexes after a bulk load.
func (s *PostgresStore) CreateLinkIndexes(ctx context.Context) error {
	for _, idx := range linkIndexes {
		sql := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON dq_page_analysis (job_id, %s)",
			pgx.Identifier{idx.name}.Sanitize(), pgx.Identifier{idx.column}.Sanitize())
		if _, err := s.pool.Exec(ctx, sql); err != nil {
			return eris.Wrapf(err, "store: create index %s", idx.name)
		}
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
