package job

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/dataquality/internal/loader"
	"github.com/sells-group/dataquality/internal/model"
	"github.com/sells-group/dataquality/internal/propagate"
	"github.com/sells-group/dataquality/internal/publish"
	"github.com/sells-group/dataquality/internal/store"
)

// mockLedger records every call; writes are the calls that change state.
type mockLedger struct {
	calls      []string
	latest     *store.Job
	hasReports bool
	nextID     int64
	failedMsg  string
	touched    time.Time
	rounds     []int
}

func (m *mockLedger) StartJob(_ context.Context, start, end int) (*store.Job, error) {
	m.calls = append(m.calls, "start")
	m.nextID++
	return &store.Job{ID: m.nextID, RunID: uuid.New(), Status: store.JobRunning, StartRound: start, EndRound: end}, nil
}

func (m *mockLedger) LatestJob(context.Context) (*store.Job, error) {
	m.calls = append(m.calls, "latest")
	return m.latest, nil
}

func (m *mockLedger) ResumeJob(context.Context, int64, int) error {
	m.calls = append(m.calls, "resume")
	return nil
}

func (m *mockLedger) HasReports(context.Context, int64) (bool, error) {
	m.calls = append(m.calls, "has reports")
	return m.hasReports, nil
}

func (m *mockLedger) RoundComplete(_ context.Context, _ int64, round int) error {
	m.rounds = append(m.rounds, round)
	return nil
}

func (m *mockLedger) CompleteJob(context.Context, int64) error {
	m.calls = append(m.calls, "complete")
	return nil
}

func (m *mockLedger) FailJob(_ context.Context, _ int64, msg string) error {
	m.calls = append(m.calls, "fail")
	m.failedMsg = msg
	return nil
}

func (m *mockLedger) DropLinkIndexes(context.Context) error {
	m.calls = append(m.calls, "drop indexes")
	return nil
}

func (m *mockLedger) CreateLinkIndexes(context.Context) error {
	m.calls = append(m.calls, "create indexes")
	return nil
}

func (m *mockLedger) ResolveTalkPageIDs(context.Context, int64) (int64, error) {
	m.calls = append(m.calls, "resolve talk ids")
	return 2, nil
}

func (m *mockLedger) TouchQueryCache(_ context.Context, _ string, ts time.Time) error {
	m.calls = append(m.calls, "querycache")
	m.touched = ts
	return nil
}

type mockLoader struct {
	jobID int64
	pages int
	err   error
}

func (m *mockLoader) Run(_ context.Context, jobID int64, pages <-chan model.Page) (loader.Stats, error) {
	m.jobID = jobID
	for range pages {
		m.pages++
	}
	return loader.Stats{Pages: m.pages, Rows: m.pages}, m.err
}

type mockPropagator struct {
	from, to int
	calls    int
}

func (m *mockPropagator) RunRounds(ctx context.Context, _ int64, from, to int, done func(context.Context, propagate.RoundResult) error) ([]propagate.RoundResult, error) {
	m.calls++
	m.from, m.to = from, to
	var out []propagate.RoundResult
	for r := from; r <= to; r++ {
		res := propagate.RoundResult{Round: r}
		out = append(out, res)
		if err := done(ctx, res); err != nil {
			return out, err
		}
	}
	return out, nil
}

type mockPublisher struct {
	jobID int64
	err   error
}

func (m *mockPublisher) Publish(_ context.Context, jobID int64) (publish.Result, error) {
	m.jobID = jobID
	return publish.Result{Pages: 3}, m.err
}

type nopCloser struct{ closed bool }

func (c *nopCloser) Close() error {
	c.closed = true
	return nil
}

// staticSource serves a fixed page list and an optional stream error.
func staticSource(streamErr error, pages ...model.Page) (PageSource, *nopCloser) {
	closer := &nopCloser{}
	return func(context.Context, string) (<-chan model.Page, <-chan error, io.Closer, error) {
		out := make(chan model.Page, len(pages))
		for _, p := range pages {
			out <- p
		}
		close(out)
		errs := make(chan error, 1)
		if streamErr != nil {
			errs <- streamErr
		}
		close(errs)
		return out, errs, closer, nil
	}, closer
}
