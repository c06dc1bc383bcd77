// Package loader runs round 1 of a job: it reads every Person and Family page
// once, records each one's own dates, links and flags, and captures local
// issues and verification markers.
package loader

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dataquality/internal/detect"
	"github.com/sells-group/dataquality/internal/metrics"
	"github.com/sells-group/dataquality/internal/model"
)

// RowWriter stores batches of analysis rows.
type RowWriter interface {
	InsertAnalysisRows(ctx context.Context, rows []model.AnalysisRow) (int64, error)
}

// IssueRecorder accepts deduplicated issues.
type IssueRecorder interface {
	CreateIssue(ctx context.Context, issue model.Issue) (bool, error)
	Flush(ctx context.Context) error
}

// ActionRecorder accepts verification and deferral actions.
type ActionRecorder interface {
	RecordAction(ctx context.Context, a model.Action) error
	Flush(ctx context.Context) error
}

// Scanner finds verification and deferral markers in page text.
type Scanner interface {
	Scan(page model.Page) []model.Action
}

// Options configures the loader.
type Options struct {
	RowBatchSize     int
	UsualLongestLife int
	AncientYear      int
	FamousMarkers    []string
}

// Stats summarizes a load.
type Stats struct {
	Pages         int
	Rows          int
	Redirects     int
	ParseErrors   int
	Issues        int
	Actions       int
	FailedBatches int
}

// Loader builds one analysis row per Person and Family page.
type Loader struct {
	rows     RowWriter
	issues   IssueRecorder
	actions  ActionRecorder
	detector detect.Detector
	scanner  Scanner
	opts     Options
	markers  []string
	metrics  *metrics.Metrics
	log      *zap.Logger

	pending []model.AnalysisRow
	stats   Stats
}

// New creates a Loader.
func New(rows RowWriter, issues IssueRecorder, actions ActionRecorder, det detect.Detector, scanner Scanner, opts Options, m *metrics.Metrics) *Loader {
	if opts.RowBatchSize <= 0 {
		opts.RowBatchSize = 500
	}
	markers := make([]string, 0, len(opts.FamousMarkers))
	for _, mk := range opts.FamousMarkers {
		if mk = strings.ToLower(strings.TrimSpace(mk)); mk != "" {
			markers = append(markers, mk)
		}
	}
	return &Loader{
		rows:     rows,
		issues:   issues,
		actions:  actions,
		detector: det,
		scanner:  scanner,
		opts:     opts,
		markers:  markers,
		metrics:  m,
		log:      zap.L().With(zap.String("component", "loader")),
	}
}

// Run consumes pages until the channel closes, then flushes every partial
// buffer. Failed batches are logged and dropped; only cancellation stops the
// load early.
func (l *Loader) Run(ctx context.Context, jobID int64, pages <-chan model.Page) (Stats, error) {
	start := time.Now()
	l.stats = Stats{}
	l.pending = l.pending[:0]

	for {
		select {
		case <-ctx.Done():
			return l.stats, eris.Wrap(ctx.Err(), "loader: cancelled")
		case p, ok := <-pages:
			if !ok {
				l.finish(ctx)
				elapsed := time.Since(start)
				l.metrics.ObservePhase("load", elapsed)
				l.log.Info("round 1 complete",
					zap.Int64("job_id", jobID),
					zap.Int("pages", l.stats.Pages),
					zap.Int("rows", l.stats.Rows),
					zap.Int("issues", l.stats.Issues),
					zap.Int("actions", l.stats.Actions),
					zap.Int("parse_errors", l.stats.ParseErrors),
					zap.Int("failed_batches", l.stats.FailedBatches),
					zap.Duration("elapsed", elapsed),
				)
				return l.stats, nil
			}
			l.handle(ctx, jobID, p)
		}
	}
}

func (l *Loader) handle(ctx context.Context, jobID int64, p model.Page) {
	l.stats.Pages++
	if p.Redirect {
		l.stats.Redirects++
		return
	}

	for _, a := range l.scanner.Scan(p) {
		a.JobID = jobID
		if err := l.actions.RecordAction(ctx, a); err != nil {
			l.batchFailed("dq_action", err)
			continue
		}
		l.stats.Actions++
	}

	if !p.Namespace.Analyzed() {
		return
	}

	row, issues, err := l.analyze(jobID, p)
	if err != nil {
		l.stats.ParseErrors++
		l.log.Warn("loader: skipping unparseable record",
			zap.String("namespace", p.Namespace.String()), zap.String("title", p.Title), zap.Error(err))
		return
	}

	for _, is := range issues {
		ok, err := l.issues.CreateIssue(ctx, is)
		if err != nil {
			l.batchFailed("dq_issue_capture", err)
			continue
		}
		if ok {
			l.stats.Issues++
		}
	}

	l.pending = append(l.pending, row)
	if len(l.pending) >= l.opts.RowBatchSize {
		l.flushRows(ctx)
	}
}

// analyze builds the page's row from its own data only.
func (l *Loader) analyze(jobID int64, p model.Page) (model.AnalysisRow, []model.Issue, error) {
	row := model.AnalysisRow{
		JobID:     jobID,
		PageID:    p.PageID,
		Namespace: p.Namespace,
		Title:     p.Title,
		LastUser:  p.Username,
		Famous:    l.famous(p.Text),
	}

	switch p.Namespace {
	case model.NamespacePerson:
		rec, err := detect.ParsePerson(p.Text)
		if err != nil {
			return row, nil, err
		}
		facts, issues := l.detector.Person(p.Title, rec)
		row.Birth = seed(facts.Birth, l.opts.UsualLongestLife)
		row.LatestDeath = facts.Death.Latest
		row.DiedYoung = facts.DiedYoung
		row.ParentPage = first(rec.ParentFamilies)
		row.Ancient = row.Birth.Latest != nil && *row.Birth.Latest < l.opts.AncientYear
		if !row.Birth.Empty() {
			row.BirthCalc = model.AppendTrace("", model.TraceEntry{Round: 1, Rule: "own", Title: p.Title, Bracket: row.Birth})
		}
		return row, issues, nil

	case model.NamespaceFamily:
		rec, err := detect.ParseFamily(p.Text)
		if err != nil {
			return row, nil, err
		}
		facts, issues := l.detector.Family(p.Title, rec)
		row.Marriage = facts.Marriage
		row.HusbandPage = first(rec.Husbands)
		row.WifePage = first(rec.Wives)
		return row, issues, nil
	}
	return row, nil, eris.Errorf("loader: namespace %d is not analyzed", int(p.Namespace))
}

func (l *Loader) famous(text string) bool {
	if len(l.markers) == 0 {
		return false
	}
	lower := strings.ToLower(text)
	for _, mk := range l.markers {
		if strings.Contains(lower, mk) {
			return true
		}
	}
	return false
}

func (l *Loader) flushRows(ctx context.Context) {
	if len(l.pending) == 0 {
		return
	}
	batch := l.pending
	l.pending = make([]model.AnalysisRow, 0, l.opts.RowBatchSize)

	if _, err := l.rows.InsertAnalysisRows(ctx, batch); err != nil {
		l.batchFailed("dq_page_analysis", eris.Wrapf(err, "loader: dropped %d rows", len(batch)))
		return
	}
	l.stats.Rows += len(batch)
	var persons, families int
	for _, r := range batch {
		if r.Namespace == model.NamespacePerson {
			persons++
		} else {
			families++
		}
	}
	l.metrics.AddRowsLoaded(model.NamespacePerson.String(), persons)
	l.metrics.AddRowsLoaded(model.NamespaceFamily.String(), families)
}

func (l *Loader) finish(ctx context.Context) {
	l.flushRows(ctx)
	if err := l.issues.Flush(ctx); err != nil {
		l.batchFailed("dq_issue_capture", err)
	}
	if err := l.actions.Flush(ctx); err != nil {
		l.batchFailed("dq_action", err)
	}
}

func (l *Loader) batchFailed(table string, err error) {
	l.stats.FailedBatches++
	// The issue and action buffers count their own failures.
	if table == "dq_page_analysis" {
		l.metrics.BatchFailed(table)
	}
	l.log.Warn("loader: batch failed, continuing", zap.String("table", table), zap.Error(err))
}

// seed fills one missing end of a birth bracket from the other.
func seed(b model.Bracket, span int) model.Bracket {
	switch {
	case b.Earliest != nil && b.Latest == nil:
		b.Latest = model.IntPtr(*b.Earliest + span)
	case b.Latest != nil && b.Earliest == nil:
		b.Earliest = model.IntPtr(*b.Latest - span)
	}
	return b
}

func first(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}
