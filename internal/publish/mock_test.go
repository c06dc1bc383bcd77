package publish

import (
	"context"
	"sort"
	"time"

	"github.com/sells-group/dataquality/internal/model"
)

// mockStore records publisher calls and models job retention across the
// report and working tables as sets of job ids.
type mockStore struct {
	calls   []string
	tables  map[string]map[int64]bool
	actions map[model.ActionType][]model.Action

	verified []model.Attribution
	viewed   []model.Attribution
	cutoffs  []int
	inserted []model.Stat

	failOn string
	err    error
}

var allTables = []string{"dq_page", "dq_issue", "dq_stats", "dq_page_analysis", "dq_issue_capture", "dq_action"}

func newMockStore() *mockStore {
	m := &mockStore{
		tables:  make(map[string]map[int64]bool),
		actions: make(map[model.ActionType][]model.Action),
	}
	for _, t := range allTables {
		m.tables[t] = make(map[int64]bool)
	}
	return m
}

// published marks jobID as fully published.
func (m *mockStore) published(jobID int64) {
	for _, t := range allTables {
		m.tables[t][jobID] = true
	}
}

// loaded marks jobID as loaded but not yet published.
func (m *mockStore) loaded(jobID int64) {
	for _, t := range []string{"dq_page_analysis", "dq_issue_capture", "dq_action"} {
		m.tables[t][jobID] = true
	}
}

func (m *mockStore) jobs(table string) []int64 {
	var ids []int64
	for id := range m.tables[table] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (m *mockStore) step(name string) error {
	m.calls = append(m.calls, name)
	if m.failOn == name {
		return m.err
	}
	return nil
}

func (m *mockStore) PurgeOldJobs(_ context.Context, jobID int64) (int64, error) {
	if err := m.step("purge"); err != nil {
		return 0, err
	}
	keep := jobID
	for id := range m.tables["dq_stats"] {
		if id < jobID && (keep == jobID || id > keep) {
			keep = id
		}
	}
	for _, t := range allTables {
		for id := range m.tables[t] {
			if id < keep {
				delete(m.tables[t], id)
			}
		}
	}
	for _, t := range []string{"dq_page", "dq_issue", "dq_stats"} {
		delete(m.tables[t], jobID)
	}
	return keep, nil
}

func (m *mockStore) CopyIssues(_ context.Context, jobID int64) (int64, error) {
	if err := m.step("copy issues"); err != nil {
		return 0, err
	}
	m.tables["dq_issue"][jobID] = true
	return 3, nil
}

func (m *mockStore) ListActions(_ context.Context, _ int64, typ model.ActionType) ([]model.Action, error) {
	if err := m.step("list " + string(typ)); err != nil {
		return nil, err
	}
	return m.actions[typ], nil
}

func (m *mockStore) SetVerifiedBy(_ context.Context, _ int64, attrs []model.Attribution) (int64, error) {
	if err := m.step("verified by"); err != nil {
		return 0, err
	}
	m.verified = attrs
	return int64(len(attrs)), nil
}

func (m *mockStore) CopyReportPages(_ context.Context, jobID int64, cutoff int) (int64, error) {
	if err := m.step("copy pages"); err != nil {
		return 0, err
	}
	m.cutoffs = append(m.cutoffs, cutoff)
	m.tables["dq_page"][jobID] = true
	return 5, nil
}

func (m *mockStore) SetViewedBy(_ context.Context, _ int64, attrs []model.Attribution) (int64, error) {
	if err := m.step("viewed by"); err != nil {
		return 0, err
	}
	m.viewed = attrs
	return int64(len(attrs)), nil
}

func (m *mockStore) ComputeStats(_ context.Context, jobID int64, cutoff int, now time.Time) ([]model.Stat, error) {
	if err := m.step("compute stats"); err != nil {
		return nil, err
	}
	m.cutoffs = append(m.cutoffs, cutoff)
	return []model.Stat{{JobID: jobID, Date: now, Category: model.StatPages, Description: "Person", Count: 10}}, nil
}

func (m *mockStore) InsertStats(_ context.Context, stats []model.Stat) (int64, error) {
	if err := m.step("insert stats"); err != nil {
		return 0, err
	}
	for _, s := range stats {
		m.tables["dq_stats"][s.JobID] = true
	}
	m.inserted = append(m.inserted, stats...)
	return int64(len(stats)), nil
}
