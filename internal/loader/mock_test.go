package loader

import (
	"context"
	"errors"

	"github.com/sells-group/dataquality/internal/model"
)

type mockRows struct {
	batches [][]model.AnalysisRow
	failOn  int // 1-based batch number that fails; 0 never fails
	calls   int
}

func (m *mockRows) InsertAnalysisRows(_ context.Context, rows []model.AnalysisRow) (int64, error) {
	m.calls++
	if m.calls == m.failOn {
		return 0, errors.New("unique violation")
	}
	m.batches = append(m.batches, append([]model.AnalysisRow(nil), rows...))
	return int64(len(rows)), nil
}

func (m *mockRows) all() []model.AnalysisRow {
	var out []model.AnalysisRow
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func (m *mockRows) byTitle(title string) (model.AnalysisRow, bool) {
	for _, r := range m.all() {
		if r.Title == title {
			return r, true
		}
	}
	return model.AnalysisRow{}, false
}

type mockIssues struct {
	seen    map[model.IssueKey]bool
	issues  []model.Issue
	flushes int
}

func (m *mockIssues) CreateIssue(_ context.Context, is model.Issue) (bool, error) {
	if m.seen == nil {
		m.seen = make(map[model.IssueKey]bool)
	}
	if m.seen[is.Key()] {
		return false, nil
	}
	m.seen[is.Key()] = true
	m.issues = append(m.issues, is)
	return true, nil
}

func (m *mockIssues) Flush(context.Context) error {
	m.flushes++
	return nil
}

type mockActions struct {
	actions  []model.Action
	flushErr error
	flushes  int
}

func (m *mockActions) RecordAction(_ context.Context, a model.Action) error {
	m.actions = append(m.actions, a)
	return nil
}

func (m *mockActions) Flush(context.Context) error {
	m.flushes++
	return m.flushErr
}
