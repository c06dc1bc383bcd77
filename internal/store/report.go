package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/dataquality/internal/db"
	"github.com/sells-group/dataquality/internal/model"
)

// retainedTables are purged by PurgeOldJobs, report tables first.
var retainedTables = []string{
	"dq_page", "dq_issue", "dq_stats",
	"dq_page_analysis", "dq_issue_capture", "dq_action",
}

// userSep joins attribution lists for array transport. It cannot appear in a
// wiki username.
const userSep = "|"

// PurgeOldJobs deletes every row older than the most recent job published
// before jobID, and any report rows already written for jobID itself, in one
// transaction. It returns the oldest job id kept.
func (s *PostgresStore) PurgeOldJobs(ctx context.Context, jobID int64) (int64, error) {
	var keepFrom int64
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE((SELECT max(job_id) FROM dq_stats WHERE job_id < $1), $1)`,
			jobID,
		).Scan(&keepFrom); err != nil {
			return eris.Wrap(err, "report: find retention boundary")
		}

		for _, table := range retainedTables {
			sql := fmt.Sprintf("DELETE FROM %s WHERE job_id < $1", pgx.Identifier{table}.Sanitize())
			if _, err := tx.Exec(ctx, sql, keepFrom); err != nil {
				return eris.Wrapf(err, "report: purge %s", table)
			}
		}
		for _, table := range retainedTables[:3] {
			sql := fmt.Sprintf("DELETE FROM %s WHERE job_id = $1", pgx.Identifier{table}.Sanitize())
			if _, err := tx.Exec(ctx, sql, jobID); err != nil {
				return eris.Wrapf(err, "report: clear %s for job %d", table, jobID)
			}
		}
		return nil
	})
	return keepFrom, err
}

// CopyIssues copies the job's captured issues into dq_issue, resolving each
// record's page id.
func (s *PostgresStore) CopyIssues(ctx context.Context, jobID int64) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO dq_issue (job_id, page_id, namespace, title, category, description)
		 SELECT c.job_id, COALESCE(a.page_id, 0), c.namespace, c.title, c.category, c.description
		 FROM dq_issue_capture c
		 LEFT JOIN dq_page_analysis a
		   ON a.job_id = c.job_id AND a.namespace = c.namespace AND a.title = c.title
		 WHERE c.job_id = $1`,
		jobID,
	)
	if err != nil {
		return 0, eris.Wrap(err, "report: copy issues")
	}
	return tag.RowsAffected(), nil
}

// SetVerifiedBy writes merged anomaly attributions onto the matching issues.
func (s *PostgresStore) SetVerifiedBy(ctx context.Context, jobID int64, attrs []model.Attribution) (int64, error) {
	return s.setAttribution(ctx, jobID, attrs,
		`UPDATE dq_issue i SET verified_by = string_to_array(u.users, '|')
		 FROM unnest($2::int[], $3::text[], $4::text[], $5::text[]) AS u(namespace, title, description, users)
		 WHERE i.job_id = $1 AND i.namespace = u.namespace AND i.title = u.title
		   AND i.description = u.description`,
		"report: set verified by")
}

// SetViewedBy writes merged deferral attributions onto the matching report
// pages.
func (s *PostgresStore) SetViewedBy(ctx context.Context, jobID int64, attrs []model.Attribution) (int64, error) {
	return s.setAttribution(ctx, jobID, attrs,
		`UPDATE dq_page p SET viewed_by = string_to_array(u.users, '|')
		 FROM unnest($2::int[], $3::text[], $4::text[], $5::text[]) AS u(namespace, title, description, users)
		 WHERE p.job_id = $1 AND p.namespace = u.namespace AND p.title = u.title`,
		"report: set viewed by")
}

func (s *PostgresStore) setAttribution(ctx context.Context, jobID int64, attrs []model.Attribution, sql, msg string) (int64, error) {
	if len(attrs) == 0 {
		return 0, nil
	}
	ns := make([]int, len(attrs))
	titles := make([]string, len(attrs))
	descs := make([]string, len(attrs))
	users := make([]string, len(attrs))
	for i, a := range attrs {
		ns[i] = int(a.Namespace)
		titles[i] = a.Title
		descs[i] = a.Description
		users[i] = strings.Join(a.Users, userSep)
	}

	var n int64
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sql, jobID, ns, titles, descs, users)
		if err != nil {
			return eris.Wrap(err, msg)
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

// CopyReportPages copies into dq_page every analysis row of the job that has
// a contradictory birth bracket, could belong to a living person born after
// livingCutoff, or carries an unverified issue.
func (s *PostgresStore) CopyReportPages(ctx context.Context, jobID int64, livingCutoff int) (int64, error) {
	cols := strings.Join(analysisColumns, ", ")
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO dq_page (`+cols+`)
		 SELECT `+cols+` FROM dq_page_analysis a
		 WHERE a.job_id = $1 AND (
		     (a.namespace = $3 AND a.earliest_birth_year > a.latest_birth_year)
		  OR (a.namespace = $3 AND a.latest_death_year IS NULL
		      AND NOT a.famous_ind AND NOT a.died_young_ind AND NOT a.ancient_ind
		      AND a.latest_birth_year > $2)
		  OR EXISTS (SELECT 1 FROM dq_issue i
		             WHERE i.job_id = a.job_id AND i.namespace = a.namespace
		               AND i.title = a.title AND i.verified_by IS NULL))`,
		jobID, livingCutoff, int(model.NamespacePerson),
	)
	if err != nil {
		return 0, eris.Wrap(err, "report: copy pages")
	}
	return tag.RowsAffected(), nil
}

// ComputeStats counts the job's pages and unresolved issues. Every stat is
// stamped with now.
func (s *PostgresStore) ComputeStats(ctx context.Context, jobID int64, livingCutoff int, now time.Time) ([]model.Stat, error) {
	stat := func(category, description string, count int64) model.Stat {
		return model.Stat{JobID: jobID, Date: now, Category: category, Description: description, Count: count}
	}
	var stats []model.Stat

	byNamespace, err := s.countByNamespace(ctx,
		`SELECT namespace, count(*) FROM dq_page_analysis WHERE job_id = $1 GROUP BY namespace ORDER BY namespace`,
		jobID)
	if err != nil {
		return nil, eris.Wrap(err, "report: count pages")
	}
	for _, c := range byNamespace {
		stats = append(stats, stat(model.StatPages, c.ns.String(), c.n))
	}

	var potentially, considered, noDate, contradictions int64
	err = s.pool.QueryRow(ctx,
		`SELECT
		   count(*) FILTER (WHERE latest_death_year IS NULL AND NOT famous_ind AND NOT died_young_ind
		                    AND NOT ancient_ind AND latest_birth_year > $2),
		   count(*) FILTER (WHERE latest_death_year IS NULL AND NOT famous_ind AND NOT died_young_ind
		                    AND NOT ancient_ind AND earliest_birth_year > $2),
		   count(*) FILTER (WHERE earliest_birth_year IS NULL AND latest_birth_year IS NULL),
		   count(*) FILTER (WHERE earliest_birth_year > latest_birth_year)
		 FROM dq_page_analysis WHERE job_id = $1 AND namespace = $3`,
		jobID, livingCutoff, int(model.NamespacePerson),
	).Scan(&potentially, &considered, &noDate, &contradictions)
	if err != nil {
		return nil, eris.Wrap(err, "report: count living")
	}
	stats = append(stats,
		stat(model.StatLiving, "Potentially living", potentially),
		stat(model.StatLiving, "Considered living", considered),
		stat(model.StatNoDate, model.NamespacePerson.String(), noDate),
		stat(model.StatContradiction, model.NamespacePerson.String(), contradictions),
	)

	rows, err := s.pool.Query(ctx,
		`SELECT category, description, count(*) FROM dq_issue
		 WHERE job_id = $1 AND verified_by IS NULL
		 GROUP BY category, description ORDER BY category, description`,
		jobID)
	if err != nil {
		return nil, eris.Wrap(err, "report: count issues")
	}
	defer rows.Close()
	for rows.Next() {
		var category, description string
		var n int64
		if err := rows.Scan(&category, &description, &n); err != nil {
			return nil, eris.Wrap(err, "report: scan issue count")
		}
		stats = append(stats, stat(category, description, n))
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "report: count issues")
	}

	impact, err := s.countByNamespace(ctx,
		`SELECT namespace, count(DISTINCT title) FROM dq_issue
		 WHERE job_id = $1 AND verified_by IS NULL AND category IN ('Error', 'Anomaly')
		 GROUP BY namespace ORDER BY namespace`,
		jobID)
	if err != nil {
		return nil, eris.Wrap(err, "report: count impact")
	}
	for _, c := range impact {
		stats = append(stats, stat(model.StatImpact, c.ns.String(), c.n))
	}
	return stats, nil
}

type namespaceCount struct {
	ns model.Namespace
	n  int64
}

func (s *PostgresStore) countByNamespace(ctx context.Context, sql string, jobID int64) ([]namespaceCount, error) {
	rows, err := s.pool.Query(ctx, sql, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []namespaceCount
	for rows.Next() {
		var ns int
		var n int64
		if err := rows.Scan(&ns, &n); err != nil {
			return nil, err
		}
		out = append(out, namespaceCount{ns: model.Namespace(ns), n: n})
	}
	return out, rows.Err()
}

// InsertStats writes stats in one transaction.
func (s *PostgresStore) InsertStats(ctx context.Context, stats []model.Stat) (int64, error) {
	rows := make([][]any, len(stats))
	for i, st := range stats {
		rows[i] = []any{st.JobID, st.Date, st.Category, st.Description, st.Count}
	}
	var n int64
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		n, err = db.CopyFrom(ctx, tx, "dq_stats", []string{"job_id", "date", "category", "description", "count"}, rows)
		return err
	})
	if err != nil {
		return 0, eris.Wrap(err, "report: insert stats")
	}
	return n, nil
}
