package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/dataquality/internal/config"
	"github.com/sells-group/dataquality/internal/job"
	"github.com/sells-group/dataquality/internal/loader"
	"github.com/sells-group/dataquality/internal/metrics"
	"github.com/sells-group/dataquality/internal/propagate"
	"github.com/sells-group/dataquality/internal/publish"
	"github.com/sells-group/dataquality/internal/store"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"analyze", "migrate", "jobs", "publish"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "dataquality", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestAnalyzeCommand_Args(t *testing.T) {
	assert.Error(t, analyzeCmd.Args(analyzeCmd, nil))
	assert.NoError(t, analyzeCmd.Args(analyzeCmd, []string{"dump.xml"}))
	assert.NoError(t, analyzeCmd.Args(analyzeCmd, []string{"dump.xml", "h", "u", "p", "1", "4"}))
	assert.Error(t, analyzeCmd.Args(analyzeCmd, []string{"dump.xml", "h", "u", "p", "1", "4", "x"}))
}

func TestJobsCommand_Flags(t *testing.T) {
	flag := jobsCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "20", flag.DefValue)
}

func TestApplyArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantCorpus string
		wantHost   string
		wantUser   string
		wantPass   string
		wantStart  int
		wantEnd    int
		wantURL    string
	}{
		{
			name:       "corpus only keeps config",
			args:       []string{"pages.xml.gz"},
			wantCorpus: "pages.xml.gz",
			wantHost:   "localhost",
			wantUser:   "wiki",
			wantStart:  1,
			wantEnd:    4,
			wantURL:    "postgres://cfg@db/wikidb",
		},
		{
			name:       "connection and rounds",
			args:       []string{"pages.xml", "db.internal", "dq", "s3cret", "3", "6"},
			wantCorpus: "pages.xml",
			wantHost:   "db.internal",
			wantUser:   "dq",
			wantPass:   "s3cret",
			wantStart:  3,
			wantEnd:    6,
		},
		{
			name:       "start round only",
			args:       []string{"pages.xml", "", "", "", "2"},
			wantCorpus: "pages.xml",
			wantHost:   "localhost",
			wantUser:   "wiki",
			wantStart:  2,
			wantEnd:    4,
			wantURL:    "postgres://cfg@db/wikidb",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &config.Config{
				Store: config.StoreConfig{DatabaseURL: "postgres://cfg@db/wikidb", Host: "localhost", User: "wiki"},
				Job:   config.JobConfig{StartRound: 1, EndRound: 4},
			}
			corpus, err := applyArgs(c, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCorpus, corpus)
			assert.Equal(t, tt.wantHost, c.Store.Host)
			assert.Equal(t, tt.wantUser, c.Store.User)
			assert.Equal(t, tt.wantPass, c.Store.Password)
			assert.Equal(t, tt.wantStart, c.Job.StartRound)
			assert.Equal(t, tt.wantEnd, c.Job.EndRound)
			assert.Equal(t, tt.wantURL, c.Store.DatabaseURL)
		})
	}
}

func TestApplyArgs_InvalidRound(t *testing.T) {
	c := &config.Config{}
	_, err := applyArgs(c, []string{"pages.xml", "h", "u", "p", "three"})
	assert.ErrorContains(t, err, "invalid round")
}

func TestNewStageBuilder(t *testing.T) {
	c := &config.Config{
		Job:     config.JobConfig{RowBatchSize: 10, IssueBatchSize: 10, PageSize: 10, BracketThreshold: 10},
		Rules:   config.RulesConfig{UsualLongestLife: 110, MinMarriageAge: 12},
		Tracker: config.TrackerConfig{DeferralTemplate: "DeferredDQ"},
	}
	build, err := newStageBuilder(c, store.NewWithPool(nil), metrics.New())
	require.NoError(t, err)

	stages, err := build(7)
	require.NoError(t, err)
	assert.IsType(t, &loader.Loader{}, stages.Loader)
	assert.IsType(t, &propagate.Engine{}, stages.Propagator)
	assert.IsType(t, &publish.Publisher{}, stages.Publisher)
}

func TestNewBuffers_BatchSizes(t *testing.T) {
	c := &config.Config{Job: config.JobConfig{RowBatchSize: 500, IssueBatchSize: 1000, ActionBatchSize: 1000}}

	issues, actions := newBuffers(c, nil, 7, nil)
	assert.Equal(t, 1000, issues.Size())
	assert.Equal(t, 1000, actions.Size())

	c.Job.ActionBatchSize = 250
	_, actions = newBuffers(c, nil, 7, nil)
	assert.Equal(t, 250, actions.Size())
}

func TestNewStageBuilder_MissingTemplates(t *testing.T) {
	c := &config.Config{Tracker: config.TrackerConfig{TemplatesFile: "/nonexistent/templates.yaml"}}
	_, err := newStageBuilder(c, store.NewWithPool(nil), nil)
	assert.Error(t, err)
}

func TestFormatSummary(t *testing.T) {
	sum := &job.Summary{
		JobID: 12,
		Load:  &loader.Stats{Pages: 40, Rows: 30, Issues: 5, Actions: 2},
		Rounds: []propagate.RoundResult{
			{Round: 2, Processed: 30, Updated: 12},
			{Round: 3, Processed: 18, Updated: 0},
		},
		Publish: publish.Result{Issues: 5, Pages: 9, Stats: 14},
	}

	var buf bytes.Buffer
	formatSummary(&buf, sum)

	out := buf.String()
	assert.Contains(t, out, "Job:")
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "pages 40, rows 30")
	assert.Contains(t, out, "processed 30 rows, updated 12 rows")
	assert.Contains(t, out, "processed 18 rows, updated 0 rows")
	assert.Contains(t, out, "pages 9")
}

func TestFormatSummary_Extension(t *testing.T) {
	var buf bytes.Buffer
	formatSummary(&buf, &job.Summary{JobID: 3, Rounds: []propagate.RoundResult{{Round: 5}}})
	assert.NotContains(t, buf.String(), "Round 1:")
	assert.Contains(t, buf.String(), "Round 5:")
}

func TestFormatJobsList(t *testing.T) {
	started := time.Date(2026, 10, 18, 2, 0, 0, 0, time.UTC)
	done := started.Add(95 * time.Minute)
	jobs := []store.Job{
		{
			ID:              9,
			RunID:           uuid.MustParse("abc12345-6789-0000-0000-000000000000"),
			Status:          store.JobComplete,
			StartRound:      1,
			EndRound:        4,
			RoundsCompleted: 4,
			StartedAt:       started,
			CompletedAt:     &done,
		},
		{
			ID:         10,
			RunID:      uuid.MustParse("def12345-6789-0000-0000-000000000000"),
			Status:     store.JobFailed,
			StartRound: 1,
			EndRound:   4,
			StartedAt:  started,
			Error:      "store: flush 1000 issues: connection reset by peer while writing",
		},
	}

	var buf bytes.Buffer
	formatJobsList(&buf, jobs)

	out := buf.String()
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "abc12345")
	assert.Contains(t, out, "1h35m0s")
	assert.Contains(t, out, "2026-10-18 02:00")
	assert.Contains(t, out, store.JobFailed)
	assert.Contains(t, out, "...")
	assert.NotContains(t, out, "while writing")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
