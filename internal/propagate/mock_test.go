package propagate

import (
	"context"
	"errors"
	"sort"

	"github.com/sells-group/dataquality/internal/model"
)

// memStore is an in-memory Store keyed by namespace and title.
type memStore struct {
	rows        map[string]*model.AnalysisRow
	updateErr   error
	updateCalls int
	selectCalls int
	selected    map[string]int // times each title was returned by SelectUnbounded
}

func newMemStore(rows ...model.AnalysisRow) *memStore {
	s := &memStore{rows: make(map[string]*model.AnalysisRow), selected: make(map[string]int)}
	for i := range rows {
		s.put(rows[i])
	}
	return s
}

func (s *memStore) put(r model.AnalysisRow) {
	r.Birth = r.Birth.Clone()
	s.rows[key(r.Namespace, r.Title)] = &r
}

func key(ns model.Namespace, title string) string {
	return ns.String() + ":" + title
}

func (s *memStore) person(title string) *model.AnalysisRow {
	return s.rows[key(model.NamespacePerson, title)]
}

func (s *memStore) family(title string) *model.AnalysisRow {
	return s.rows[key(model.NamespaceFamily, title)]
}

func (s *memStore) SelectUnbounded(_ context.Context, _ int64, after int64, threshold, limit int) ([]model.AnalysisRow, error) {
	s.selectCalls++
	var out []model.AnalysisRow
	for _, r := range s.rows {
		if r.Namespace != model.NamespacePerson || r.PageID <= after {
			continue
		}
		if w, ok := r.Birth.Width(); ok && w <= threshold {
			continue
		}
		c := *r
		c.Birth = r.Birth.Clone()
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageID < out[j].PageID })
	if len(out) > limit {
		out = out[:limit]
	}
	for _, r := range out {
		s.selected[r.Title]++
	}
	return out, nil
}

func (s *memStore) ChildrenOf(_ context.Context, _ int64, titles []string) ([]model.ChildFact, error) {
	var out []model.ChildFact
	for _, f := range s.rows {
		if f.Namespace != model.NamespaceFamily || !(contains(titles, f.HusbandPage) || contains(titles, f.WifePage)) {
			continue
		}
		for _, c := range s.rows {
			if c.Namespace == model.NamespacePerson && c.ParentPage == f.Title {
				out = append(out, model.ChildFact{
					FamilyTitle: f.Title, HusbandPage: f.HusbandPage, WifePage: f.WifePage,
					ChildTitle: c.Title, ChildBirth: c.Birth.Clone(),
				})
			}
		}
	}
	return out, nil
}

func (s *memStore) SpouseFamiliesOf(_ context.Context, _ int64, titles []string) ([]model.SpouseFact, error) {
	var out []model.SpouseFact
	for _, f := range s.rows {
		if f.Namespace != model.NamespaceFamily || !(contains(titles, f.HusbandPage) || contains(titles, f.WifePage)) {
			continue
		}
		out = append(out, model.SpouseFact{
			FamilyTitle:  f.Title,
			Marriage:     f.Marriage.Clone(),
			HusbandPage:  f.HusbandPage,
			HusbandBirth: s.birthOf(f.HusbandPage),
			WifePage:     f.WifePage,
			WifeBirth:    s.birthOf(f.WifePage),
		})
	}
	return out, nil
}

func (s *memStore) ParentFamilies(_ context.Context, _ int64, familyTitles []string) ([]model.ParentFact, error) {
	var out []model.ParentFact
	for _, t := range familyTitles {
		f := s.family(t)
		if f == nil {
			continue
		}
		p := model.ParentFact{
			FamilyTitle: f.Title,
			Marriage:    f.Marriage.Clone(),
			FatherTitle: f.HusbandPage,
			FatherBirth: s.birthOf(f.HusbandPage),
			MotherTitle: f.WifePage,
			MotherBirth: s.birthOf(f.WifePage),
		}
		if h := s.person(f.HusbandPage); h != nil {
			p.FatherLatestDeath = h.LatestDeath
		}
		if w := s.person(f.WifePage); w != nil {
			p.MotherLatestDeath = w.LatestDeath
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *memStore) SiblingsIn(_ context.Context, _ int64, familyTitles []string) ([]model.SiblingFact, error) {
	var out []model.SiblingFact
	for _, r := range s.rows {
		if r.Namespace == model.NamespacePerson && contains(familyTitles, r.ParentPage) {
			out = append(out, model.SiblingFact{ParentPage: r.ParentPage, Title: r.Title, Birth: r.Birth.Clone()})
		}
	}
	return out, nil
}

func (s *memStore) UpdateBrackets(_ context.Context, _ int64, rows []model.AnalysisRow) (int64, error) {
	s.updateCalls++
	if s.updateErr != nil {
		return 0, s.updateErr
	}
	for _, r := range rows {
		cur := s.person(r.Title)
		if cur == nil {
			return 0, errors.New("no such row")
		}
		cur.Birth = r.Birth.Clone()
		cur.BirthCalc = r.BirthCalc
	}
	return int64(len(rows)), nil
}

// InsertAnalysisRows keeps the first row per namespace and title, so the
// store doubles as the round-1 row writer.
func (s *memStore) InsertAnalysisRows(_ context.Context, rows []model.AnalysisRow) (int64, error) {
	var n int64
	for _, r := range rows {
		if _, ok := s.rows[key(r.Namespace, r.Title)]; ok {
			continue
		}
		s.put(r)
		n++
	}
	return n, nil
}

func (s *memStore) birthOf(title string) model.Bracket {
	if r := s.person(title); r != nil {
		return r.Birth.Clone()
	}
	return model.Bracket{}
}

func contains(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// memIssues is an in-memory IssueRecorder with the same dedup rule as the
// store buffer.
type memIssues struct {
	seen    map[model.IssueKey]bool
	issues  []model.Issue
	flushes int
}

func newMemIssues() *memIssues {
	return &memIssues{seen: make(map[model.IssueKey]bool)}
}

func (m *memIssues) CreateIssue(_ context.Context, is model.Issue) (bool, error) {
	if m.seen[is.Key()] {
		return false, nil
	}
	m.seen[is.Key()] = true
	m.issues = append(m.issues, is)
	return true, nil
}

func (m *memIssues) Flush(context.Context) error {
	m.flushes++
	return nil
}

type memActions struct {
	actions []model.Action
}

func (m *memActions) RecordAction(_ context.Context, a model.Action) error {
	m.actions = append(m.actions, a)
	return nil
}

func (m *memActions) Flush(context.Context) error { return nil }
