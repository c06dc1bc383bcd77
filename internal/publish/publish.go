// Package publish turns a finished job's working rows into the public report:
// dq_issue, dq_page and dq_stats.
package publish

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dataquality/internal/metrics"
	"github.com/sells-group/dataquality/internal/model"
	"github.com/sells-group/dataquality/internal/tracker"
)

// Store is the slice of the record store the publisher uses. Each call runs
// in its own transaction.
type Store interface {
	PurgeOldJobs(ctx context.Context, jobID int64) (int64, error)
	CopyIssues(ctx context.Context, jobID int64) (int64, error)
	ListActions(ctx context.Context, jobID int64, typ model.ActionType) ([]model.Action, error)
	SetVerifiedBy(ctx context.Context, jobID int64, attrs []model.Attribution) (int64, error)
	CopyReportPages(ctx context.Context, jobID int64, livingCutoff int) (int64, error)
	SetViewedBy(ctx context.Context, jobID int64, attrs []model.Attribution) (int64, error)
	ComputeStats(ctx context.Context, jobID int64, livingCutoff int, now time.Time) ([]model.Stat, error)
	InsertStats(ctx context.Context, stats []model.Stat) (int64, error)
}

// Result counts what a publish wrote.
type Result struct {
	KeptFrom int64 `json:"kept_from"`
	Issues   int64 `json:"issues"`
	Verified int64 `json:"verified"`
	Pages    int64 `json:"pages"`
	Deferred int64 `json:"deferred"`
	Stats    int64 `json:"stats"`
}

// Publisher writes the report tables for a job.
type Publisher struct {
	store            Store
	usualLongestLife int
	now              func() time.Time
	metrics          *metrics.Metrics
	log              *zap.Logger
}

// New creates a Publisher. A person is potentially living when no death is
// recorded and the latest possible birth is within usualLongestLife years of
// the current year.
func New(store Store, usualLongestLife int, m *metrics.Metrics) *Publisher {
	return &Publisher{
		store:            store,
		usualLongestLife: usualLongestLife,
		now:              time.Now,
		metrics:          m,
		log:              zap.L().With(zap.String("component", "publish")),
	}
}

// Publish runs every step for jobID in order. A failed step stops the
// publish; steps already committed stay committed and a re-publish starts by
// clearing them.
func (p *Publisher) Publish(ctx context.Context, jobID int64) (Result, error) {
	start := time.Now()
	now := p.now()
	cutoff := now.Year() - p.usualLongestLife
	log := p.log.With(zap.Int64("job_id", jobID))
	var res Result
	var err error

	if res.KeptFrom, err = p.store.PurgeOldJobs(ctx, jobID); err != nil {
		return res, eris.Wrap(err, "publish: purge")
	}
	log.Info("purged old jobs", zap.Int64("kept_from", res.KeptFrom))

	if res.Issues, err = p.store.CopyIssues(ctx, jobID); err != nil {
		return res, eris.Wrap(err, "publish: copy issues")
	}
	if res.Verified, err = p.updateVerifiedBy(ctx, jobID); err != nil {
		return res, err
	}

	if res.Pages, err = p.store.CopyReportPages(ctx, jobID, cutoff); err != nil {
		return res, eris.Wrap(err, "publish: copy pages")
	}
	if res.Deferred, err = p.updateDeferredBy(ctx, jobID); err != nil {
		return res, err
	}

	stats, err := p.store.ComputeStats(ctx, jobID, cutoff, now)
	if err != nil {
		return res, eris.Wrap(err, "publish: compute stats")
	}
	if res.Stats, err = p.store.InsertStats(ctx, stats); err != nil {
		return res, eris.Wrap(err, "publish: insert stats")
	}

	p.metrics.ObservePhase("publish", time.Since(start))
	log.Info("publish complete",
		zap.Int64("issues", res.Issues),
		zap.Int64("verified", res.Verified),
		zap.Int64("pages", res.Pages),
		zap.Int64("deferred", res.Deferred),
		zap.Int64("stats", res.Stats),
		zap.Int("living_cutoff", cutoff),
	)
	return res, nil
}

// updateVerifiedBy merges the article and talk copies of each anomaly
// verification and writes the users onto the matching issues.
func (p *Publisher) updateVerifiedBy(ctx context.Context, jobID int64) (int64, error) {
	actions, err := p.store.ListActions(ctx, jobID, model.ActionAnomaly)
	if err != nil {
		return 0, eris.Wrap(err, "publish: list verifications")
	}
	n, err := p.store.SetVerifiedBy(ctx, jobID, tracker.Merge(actions))
	return n, eris.Wrap(err, "publish: update verified by")
}

// updateDeferredBy merges deferrals the same way and writes them onto the
// report pages.
func (p *Publisher) updateDeferredBy(ctx context.Context, jobID int64) (int64, error) {
	actions, err := p.store.ListActions(ctx, jobID, model.ActionPage)
	if err != nil {
		return 0, eris.Wrap(err, "publish: list deferrals")
	}
	n, err := p.store.SetViewedBy(ctx, jobID, tracker.Merge(actions))
	return n, eris.Wrap(err, "publish: update deferred by")
}
