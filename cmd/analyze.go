package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dataquality/internal/config"
	"github.com/sells-group/dataquality/internal/db"
	"github.com/sells-group/dataquality/internal/detect"
	"github.com/sells-group/dataquality/internal/job"
	"github.com/sells-group/dataquality/internal/loader"
	"github.com/sells-group/dataquality/internal/metrics"
	"github.com/sells-group/dataquality/internal/propagate"
	"github.com/sells-group/dataquality/internal/publish"
	"github.com/sells-group/dataquality/internal/store"
	"github.com/sells-group/dataquality/internal/tracker"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <corpus> [host] [user] [password] [startRound] [endRound]",
	Short: "Run a data-quality job",
	Long: "Round 1 loads the dump into dq_page_analysis, rounds 2 and later tighten birth brackets, " +
		"then the report tables are published. A start round above 1 extends the latest job.",
	Args: cobra.RangeArgs(1, 6),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		corpusPath, err := applyArgs(cfg, args)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		m := metrics.New()
		build, err := newStageBuilder(cfg, st, m)
		if err != nil {
			return err
		}

		ctrl := job.NewController(st, build)
		sum, runErr := ctrl.Run(ctx, job.Options{
			CorpusPath: corpusPath,
			StartRound: cfg.Job.StartRound,
			EndRound:   cfg.Job.EndRound,
		})
		if sum != nil {
			formatSummary(os.Stdout, sum)
		}
		if err := m.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			zap.L().Warn("metrics textfile not written", zap.Error(err))
		}
		if runErr != nil {
			return eris.Wrap(runErr, "analyze")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

// applyArgs overlays the positional arguments on the config and returns the
// corpus path. Empty host, user or password arguments keep the configured value.
func applyArgs(c *config.Config, args []string) (string, error) {
	if len(args) == 0 {
		return "", eris.New("analyze: corpus path is required")
	}
	str := []*string{&c.Store.Host, &c.Store.User, &c.Store.Password}
	for i, dst := range str {
		if len(args) > i+1 && args[i+1] != "" {
			*dst = args[i+1]
			c.Store.DatabaseURL = ""
		}
	}
	rounds := []*int{&c.Job.StartRound, &c.Job.EndRound}
	for i, dst := range rounds {
		if len(args) <= i+4 {
			break
		}
		n, err := strconv.Atoi(args[i+4])
		if err != nil {
			return "", eris.Wrapf(err, "analyze: invalid round %q", args[i+4])
		}
		*dst = n
	}
	return args[0], nil
}

// newStageBuilder wires the per-job loader, engine and publisher.
func newStageBuilder(c *config.Config, st *store.PostgresStore, m *metrics.Metrics) (job.StageBuilder, error) {
	templates, err := loadTemplates(c.Tracker)
	if err != nil {
		return nil, err
	}
	scanner := tracker.New(templates, c.Tracker.DeferralTemplate)
	det := detect.NewRuleDetector(detect.Limits{
		UsualLongestLife: c.Rules.UsualLongestLife,
		MinMarriageAge:   c.Rules.MinMarriageAge,
	})

	return func(jobID int64) (job.Stages, error) {
		issues, actions := newBuffers(c, st.Pool(), jobID, m)

		ld := loader.New(st, issues, actions, det, scanner, loader.Options{
			RowBatchSize:     c.Job.RowBatchSize,
			UsualLongestLife: c.Rules.UsualLongestLife,
			AncientYear:      c.Detect.AncientYear,
			FamousMarkers:    c.Detect.FamousMarkers,
		}, m)
		engine := propagate.NewEngine(st, issues, c.Rules, propagate.Options{
			PageSize:         c.Job.PageSize,
			BracketThreshold: c.Job.BracketThreshold,
		}, m)

		return job.Stages{
			Loader:     ld,
			Propagator: engine,
			Publisher:  publish.New(st, c.Rules.UsualLongestLife, m),
		}, nil
	}, nil
}

// newBuffers creates the job's issue and action buffers.
func newBuffers(c *config.Config, pool db.Pool, jobID int64, m *metrics.Metrics) (*store.IssueBuffer, *store.ActionBuffer) {
	return store.NewIssueBuffer(pool, jobID, c.Job.IssueBatchSize, m),
		store.NewActionBuffer(pool, jobID, c.Job.ActionBatchSize, m)
}

func loadTemplates(tc config.TrackerConfig) ([]tracker.Template, error) {
	if tc.TemplatesFile != "" {
		return tracker.LoadTemplates(tc.TemplatesFile)
	}
	return tracker.DefaultTemplates()
}

// formatSummary writes the run summary to w.
func formatSummary(out io.Writer, sum *job.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Job:\t%d\n", sum.JobID)
	if sum.Load != nil {
		_, _ = fmt.Fprintf(w, "Round 1:\tpages %d, rows %d, issues %d, actions %d, parse errors %d, failed batches %d\n",
			sum.Load.Pages, sum.Load.Rows, sum.Load.Issues, sum.Load.Actions, sum.Load.ParseErrors, sum.Load.FailedBatches)
	}
	for _, r := range sum.Rounds {
		_, _ = fmt.Fprintf(w, "Round %d:\tprocessed %d rows, updated %d rows\n", r.Round, r.Processed, r.Updated)
	}
	p := sum.Publish
	_, _ = fmt.Fprintf(w, "Published:\tissues %d, verified %d, pages %d, deferred %d, stats %d\n",
		p.Issues, p.Verified, p.Pages, p.Deferred, p.Stats)
	_ = w.Flush()
}
