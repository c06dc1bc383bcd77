// Package propagate narrows Person birth-year brackets from the dates of
// their relatives, one round at a time.
package propagate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dataquality/internal/config"
	"github.com/sells-group/dataquality/internal/metrics"
	"github.com/sells-group/dataquality/internal/model"
)

// Store is the slice of the record store the engine reads and writes.
type Store interface {
	SelectUnbounded(ctx context.Context, jobID, afterPageID int64, threshold, limit int) ([]model.AnalysisRow, error)
	ChildrenOf(ctx context.Context, jobID int64, titles []string) ([]model.ChildFact, error)
	SpouseFamiliesOf(ctx context.Context, jobID int64, titles []string) ([]model.SpouseFact, error)
	ParentFamilies(ctx context.Context, jobID int64, familyTitles []string) ([]model.ParentFact, error)
	SiblingsIn(ctx context.Context, jobID int64, familyTitles []string) ([]model.SiblingFact, error)
	UpdateBrackets(ctx context.Context, jobID int64, rows []model.AnalysisRow) (int64, error)
}

// IssueRecorder accepts deduplicated issues.
type IssueRecorder interface {
	CreateIssue(ctx context.Context, issue model.Issue) (bool, error)
	Flush(ctx context.Context) error
}

// Options controls paging.
type Options struct {
	PageSize         int
	BracketThreshold int
}

// RoundResult summarizes one round.
type RoundResult struct {
	Round     int
	Processed int
	Updated   int
	Failed    int // pages whose reads or write failed and were skipped
}

// Engine runs propagation rounds for one job.
type Engine struct {
	store     Store
	issues    IssueRecorder
	tightener *Tightener
	opts      Options
	metrics   *metrics.Metrics
	log       *zap.Logger
}

// NewEngine creates an Engine.
func NewEngine(store Store, issues IssueRecorder, rules config.RulesConfig, opts Options, m *metrics.Metrics) *Engine {
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	if opts.BracketThreshold <= 0 {
		opts.BracketThreshold = 10
	}
	return &Engine{
		store:     store,
		issues:    issues,
		tightener: NewTightener(rules),
		opts:      opts,
		metrics:   m,
		log:       zap.L().With(zap.String("component", "propagate")),
	}
}

// RunRounds runs rounds from..to inclusive, exactly to-from+1 of them. done,
// when non-nil, is called after each round; an error from done stops the run.
func (e *Engine) RunRounds(ctx context.Context, jobID int64, from, to int, done func(ctx context.Context, res RoundResult) error) ([]RoundResult, error) {
	if from > to {
		return nil, nil
	}
	results := make([]RoundResult, 0, to-from+1)
	for round := from; round <= to; round++ {
		res, err := e.RunRound(ctx, jobID, round)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if done != nil {
			if err := done(ctx, res); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

// RunRound pages through every open or wide Person row once, in ascending
// page id order, and writes back the rows whose bracket narrowed.
func (e *Engine) RunRound(ctx context.Context, jobID int64, round int) (RoundResult, error) {
	start := time.Now()
	log := e.log.With(zap.Int64("job_id", jobID), zap.Int("round", round))
	res := RoundResult{Round: round}

	var after int64
	for {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrapf(err, "propagate: round %d cancelled", round)
		}

		rows, err := e.store.SelectUnbounded(ctx, jobID, after, e.opts.BracketThreshold, e.opts.PageSize)
		if err != nil {
			return res, eris.Wrapf(err, "propagate: round %d select after page %d", round, after)
		}
		if len(rows) == 0 {
			break
		}
		after = rows[len(rows)-1].PageID
		res.Processed += len(rows)

		updated, err := e.processPage(ctx, jobID, round, rows)
		if err != nil {
			res.Failed++
			e.metrics.BatchFailed("dq_page_analysis")
			log.Warn("propagate: page failed, skipping",
				zap.Int64("last_page_id", after), zap.Int("rows", len(rows)), zap.Error(err))
		}
		res.Updated += updated

		if len(rows) < e.opts.PageSize {
			break
		}
	}

	if err := e.issues.Flush(ctx); err != nil {
		log.Warn("propagate: issue flush failed", zap.Error(err))
	}

	elapsed := time.Since(start)
	e.metrics.ObserveRound(strconv.Itoa(round), res.Processed, res.Updated, elapsed)
	log.Info(fmt.Sprintf("processed %d rows, updated %d rows", res.Processed, res.Updated),
		zap.Int("failed_pages", res.Failed),
		zap.Duration("elapsed", elapsed),
	)
	return res, nil
}

// processPage reads every relation of the page's members, then tightens each
// member and writes the changed rows in one transaction.
func (e *Engine) processPage(ctx context.Context, jobID int64, round int, rows []model.AnalysisRow) (int, error) {
	hoods, err := e.readNeighborhoods(ctx, jobID, rows)
	if err != nil {
		return 0, err
	}

	var changed []model.AnalysisRow
	for _, row := range rows {
		out := e.tightener.Tighten(round, row, hoods[row.Title])
		for _, is := range out.Issues {
			if _, err := e.issues.CreateIssue(ctx, is); err != nil {
				e.log.Warn("propagate: record issue failed",
					zap.String("title", is.Title), zap.String("issue", is.Description), zap.Error(err))
			}
		}
		if !out.Changed {
			continue
		}
		row.Birth = out.Birth
		row.BirthCalc = model.AppendTrace(row.BirthCalc, out.Trace...)
		changed = append(changed, row)
	}
	if len(changed) == 0 {
		return 0, nil
	}

	if _, err := e.store.UpdateBrackets(ctx, jobID, changed); err != nil {
		return 0, err
	}
	return len(changed), nil
}

// readNeighborhoods runs every relation read for the page before any rule is
// applied and groups the results by member title.
func (e *Engine) readNeighborhoods(ctx context.Context, jobID int64, rows []model.AnalysisRow) (map[string]Neighborhood, error) {
	titles := make([]string, 0, len(rows))
	var parentTitles []string
	seenParent := make(map[string]bool)
	for _, r := range rows {
		titles = append(titles, r.Title)
		if r.ParentPage != "" && !seenParent[r.ParentPage] {
			seenParent[r.ParentPage] = true
			parentTitles = append(parentTitles, r.ParentPage)
		}
	}

	children, err := e.store.ChildrenOf(ctx, jobID, titles)
	if err != nil {
		return nil, err
	}
	spouses, err := e.store.SpouseFamiliesOf(ctx, jobID, titles)
	if err != nil {
		return nil, err
	}
	parents, err := e.store.ParentFamilies(ctx, jobID, parentTitles)
	if err != nil {
		return nil, err
	}

	parentByTitle := make(map[string]*model.ParentFact, len(parents))
	for i := range parents {
		parentByTitle[parents[i].FamilyTitle] = &parents[i]
	}
	var orphaned []string
	for _, t := range parentTitles {
		if parentByTitle[t] == nil {
			orphaned = append(orphaned, t)
		}
	}
	siblings, err := e.store.SiblingsIn(ctx, jobID, orphaned)
	if err != nil {
		return nil, err
	}
	siblingsOf := make(map[string][]model.SiblingFact)
	for _, s := range siblings {
		siblingsOf[s.ParentPage] = append(siblingsOf[s.ParentPage], s)
	}

	hoods := make(map[string]Neighborhood, len(rows))
	for _, c := range children {
		for _, t := range spouseTitles(c.HusbandPage, c.WifePage) {
			nb := hoods[t]
			nb.Children = append(nb.Children, c)
			hoods[t] = nb
		}
	}
	for _, f := range spouses {
		for _, t := range spouseTitles(f.HusbandPage, f.WifePage) {
			nb := hoods[t]
			nb.Spouses = append(nb.Spouses, f)
			hoods[t] = nb
		}
	}
	for _, r := range rows {
		nb := hoods[r.Title]
		if r.ParentPage != "" {
			nb.Parents = parentByTitle[r.ParentPage]
			if nb.Parents == nil {
				nb.Siblings = siblingsOf[r.ParentPage]
			}
		}
		hoods[r.Title] = nb
	}
	return hoods, nil
}

// spouseTitles lists the distinct non-empty spouse titles of a family.
func spouseTitles(husband, wife string) []string {
	switch {
	case husband == "" && wife == "":
		return nil
	case husband == "" || husband == wife:
		return []string{wife}
	case wife == "":
		return []string{husband}
	}
	return []string{husband, wife}
}
