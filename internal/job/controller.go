// Package job sequences one data-quality run: job id assignment, the round-1
// load, propagation rounds and publishing.
package job

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dataquality/internal/corpus"
	"github.com/sells-group/dataquality/internal/loader"
	"github.com/sells-group/dataquality/internal/model"
	"github.com/sells-group/dataquality/internal/propagate"
	"github.com/sells-group/dataquality/internal/publish"
	"github.com/sells-group/dataquality/internal/store"
)

// ErrJobHasReports is returned when an extension run targets a job whose
// report rows, or a later job's, already exist.
var ErrJobHasReports = eris.New("job: reports already published for this or a later job")

// ErrNoJob is returned when an extension run finds no job to extend.
var ErrNoJob = eris.New("job: no job to extend")

// QueryCacheType is the querycache_info row touched after a successful run.
const QueryCacheType = "DataQuality"

// Ledger is the job bookkeeping slice of the record store.
type Ledger interface {
	StartJob(ctx context.Context, startRound, endRound int) (*store.Job, error)
	LatestJob(ctx context.Context) (*store.Job, error)
	ResumeJob(ctx context.Context, jobID int64, endRound int) error
	HasReports(ctx context.Context, jobID int64) (bool, error)
	RoundComplete(ctx context.Context, jobID int64, round int) error
	CompleteJob(ctx context.Context, jobID int64) error
	FailJob(ctx context.Context, jobID int64, errMsg string) error
	DropLinkIndexes(ctx context.Context) error
	CreateLinkIndexes(ctx context.Context) error
	ResolveTalkPageIDs(ctx context.Context, jobID int64) (int64, error)
	TouchQueryCache(ctx context.Context, cacheType string, ts time.Time) error
}

// Loader runs round 1.
type Loader interface {
	Run(ctx context.Context, jobID int64, pages <-chan model.Page) (loader.Stats, error)
}

// Propagator runs rounds 2 and later.
type Propagator interface {
	RunRounds(ctx context.Context, jobID int64, from, to int, done func(context.Context, propagate.RoundResult) error) ([]propagate.RoundResult, error)
}

// Publisher writes the report tables.
type Publisher interface {
	Publish(ctx context.Context, jobID int64) (publish.Result, error)
}

// Stages are the per-job workers. Issue and action buffers are bound to a job
// id, so stages are built once the id is known.
type Stages struct {
	Loader     Loader
	Propagator Propagator
	Publisher  Publisher
}

// StageBuilder builds the stages for jobID.
type StageBuilder func(jobID int64) (Stages, error)

// PageSource opens the record stream for round 1.
type PageSource func(ctx context.Context, path string) (<-chan model.Page, <-chan error, io.Closer, error)

// Options selects the rounds to run.
type Options struct {
	CorpusPath string
	StartRound int
	EndRound   int
}

// Summary reports what a run did.
type Summary struct {
	JobID   int64
	Job     *store.Job
	Load    *loader.Stats
	Rounds  []propagate.RoundResult
	Publish publish.Result
}

// Controller runs jobs.
type Controller struct {
	ledger Ledger
	build  StageBuilder
	source PageSource
	now    func() time.Time
	log    *zap.Logger
}

// NewController creates a Controller reading records from dump files.
func NewController(ledger Ledger, build StageBuilder) *Controller {
	return &Controller{
		ledger: ledger,
		build:  build,
		source: OpenDump,
		now:    time.Now,
		log:    zap.L().With(zap.String("component", "job")),
	}
}

// OpenDump opens a dump file and streams its pages.
func OpenDump(ctx context.Context, path string) (<-chan model.Page, <-chan error, io.Closer, error) {
	rc, err := corpus.Open(path)
	if err != nil {
		return nil, nil, nil, err
	}
	pages, errs := corpus.Pages(ctx, rc)
	return pages, errs, rc, nil
}

// Run executes one job. A run starting at round 1 gets a new job id; a later
// start round extends the latest job, which is refused with ErrJobHasReports
// once that job or a later one has been published. Sequencing errors are
// returned before anything is written.
func (c *Controller) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.StartRound < 1 {
		return nil, eris.Errorf("job: start round must be >= 1, got %d", opts.StartRound)
	}
	if opts.EndRound < opts.StartRound {
		return nil, eris.Errorf("job: end round %d is before start round %d", opts.EndRound, opts.StartRound)
	}

	// Stops the record stream if the run ends before it is drained.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		pages  <-chan model.Page
		errs   <-chan error
		closer io.Closer
		j      *store.Job
		err    error
	)
	if opts.StartRound == 1 {
		pages, errs, closer, err = c.source(ctx, opts.CorpusPath)
		if err != nil {
			return nil, eris.Wrapf(err, "job: open corpus %s", opts.CorpusPath)
		}
		defer closer.Close()

		if j, err = c.ledger.StartJob(ctx, opts.StartRound, opts.EndRound); err != nil {
			return nil, err
		}
	} else {
		if j, err = c.extend(ctx, opts); err != nil {
			return nil, err
		}
	}

	sum := &Summary{JobID: j.ID, Job: j}
	log := c.log.With(zap.Int64("job_id", j.ID), zap.String("run_id", j.RunID.String()))
	log.Info("job started", zap.Int("start_round", opts.StartRound), zap.Int("end_round", opts.EndRound))

	if err := c.execute(ctx, opts, j.ID, pages, errs, sum); err != nil {
		log.Error("job failed", zap.Error(err))
		// The run context may be cancelled; record the failure regardless.
		if ferr := c.ledger.FailJob(context.WithoutCancel(ctx), j.ID, err.Error()); ferr != nil {
			log.Warn("job: failed to record failure", zap.Error(ferr))
		}
		return sum, err
	}

	if err := c.ledger.CompleteJob(ctx, j.ID); err != nil {
		return sum, err
	}
	log.Info("job complete", zap.Int("rounds", len(sum.Rounds)))
	return sum, nil
}

// extend resolves the job an extension run continues and applies the
// report guard. Nothing is written until the guard passes.
func (c *Controller) extend(ctx context.Context, opts Options) (*store.Job, error) {
	j, err := c.ledger.LatestJob(ctx)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, ErrNoJob
	}
	has, err := c.ledger.HasReports(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	if has {
		return nil, eris.Wrapf(ErrJobHasReports, "job %d", j.ID)
	}
	if err := c.ledger.ResumeJob(ctx, j.ID, opts.EndRound); err != nil {
		return nil, err
	}
	j.Status = store.JobRunning
	j.EndRound = opts.EndRound
	return j, nil
}

func (c *Controller) execute(ctx context.Context, opts Options, jobID int64, pages <-chan model.Page, errs <-chan error, sum *Summary) error {
	stages, err := c.build(jobID)
	if err != nil {
		return eris.Wrap(err, "job: build stages")
	}

	if opts.StartRound == 1 {
		if err := c.ledger.DropLinkIndexes(ctx); err != nil {
			return err
		}
		stats, err := stages.Loader.Run(ctx, jobID, pages)
		if err != nil {
			return err
		}
		sum.Load = &stats
		if errs != nil {
			if err := <-errs; err != nil {
				return eris.Wrap(err, "job: read corpus")
			}
		}
		if err := c.ledger.CreateLinkIndexes(ctx); err != nil {
			return err
		}
		resolved, err := c.ledger.ResolveTalkPageIDs(ctx, jobID)
		if err != nil {
			return err
		}
		c.log.Debug("talk page actions resolved", zap.Int64("job_id", jobID), zap.Int64("actions", resolved))
		if err := c.ledger.RoundComplete(ctx, jobID, 1); err != nil {
			return err
		}
	}

	from := max(opts.StartRound, 2)
	rounds, err := stages.Propagator.RunRounds(ctx, jobID, from, opts.EndRound,
		func(ctx context.Context, res propagate.RoundResult) error {
			return c.ledger.RoundComplete(ctx, jobID, res.Round)
		})
	sum.Rounds = rounds
	if err != nil {
		return err
	}

	if sum.Publish, err = stages.Publisher.Publish(ctx, jobID); err != nil {
		return err
	}
	return c.ledger.TouchQueryCache(ctx, QueryCacheType, c.now())
}
