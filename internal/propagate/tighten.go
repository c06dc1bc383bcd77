package propagate

import (
	"github.com/sells-group/dataquality/internal/config"
	"github.com/sells-group/dataquality/internal/model"
)

// Rule names as they appear in the birth calculation trace.
const (
	RuleChild           = "child"
	RuleMarriage        = "marriage"
	RuleSpouse          = "spouse"
	RuleParentsMarriage = "parents marriage"
	RuleFather          = "father"
	RuleMother          = "mother"
	RuleFatherDeath     = "father death"
	RuleMotherDeath     = "mother death"
	RuleSibling         = "sibling"
	RuleSeed            = "seed"
)

// Issue descriptions recorded when a member was born too late for a parent.
const (
	IssueAfterMotherDied = "Born after mother died"
	IssueAfterFatherDied = "Born more than 1 year after father died"
)

// Neighborhood is everything read about one member's relatives.
type Neighborhood struct {
	Children []model.ChildFact
	Spouses  []model.SpouseFact
	Parents  *model.ParentFact
	Siblings []model.SiblingFact
}

// Result is the outcome of tightening one member.
type Result struct {
	Birth   model.Bracket
	Trace   []model.TraceEntry
	Issues  []model.Issue
	Changed bool
}

// Tightener applies the bracket rules to one member at a time. It never
// touches the store.
type Tightener struct {
	rules config.RulesConfig
}

// NewTightener creates a Tightener for rules.
func NewTightener(rules config.RulesConfig) *Tightener {
	return &Tightener{rules: rules}
}

// narrowing accumulates the max of all lower bounds and the min of all upper
// bounds.
type narrowing struct {
	round int
	lo    *int
	hi    *int
	trace []model.TraceEntry
}

// bound applies one relative's candidate bounds. Either may be nil. One trace
// entry is written when the bracket tightens.
func (n *narrowing) bound(rule, title string, lo, hi *int) {
	changed := false
	if lo != nil && (n.lo == nil || *lo > *n.lo) {
		n.lo = model.IntPtr(*lo)
		changed = true
	}
	if hi != nil && (n.hi == nil || *hi < *n.hi) {
		n.hi = model.IntPtr(*hi)
		changed = true
	}
	if changed {
		n.trace = append(n.trace, model.TraceEntry{
			Round:   n.round,
			Rule:    rule,
			Title:   title,
			Bracket: model.Bracket{Earliest: n.lo, Latest: n.hi}.Clone(),
		})
	}
}

// offset returns v+d, or nil when v is unknown.
func offset(v *int, d int) *int {
	if v == nil {
		return nil
	}
	return model.IntPtr(*v + d)
}

// Tighten derives the member's new birth bracket. The rules run in a fixed
// order, but the result depends only on the set of bounds. Seeding of a
// missing end runs once, after every rule.
func (t *Tightener) Tighten(round int, member model.AnalysisRow, nb Neighborhood) Result {
	r := t.rules
	n := &narrowing{round: round}
	start := member.Birth.Clone()
	n.lo, n.hi = start.Earliest, start.Latest

	for _, c := range nb.Children {
		if c.WifePage == member.Title {
			n.bound(RuleChild, c.ChildTitle,
				offset(c.ChildBirth.Earliest, -r.UsualOldestMother),
				offset(c.ChildBirth.Latest, -r.UsualYoungestMother))
		}
		if c.HusbandPage == member.Title {
			n.bound(RuleChild, c.ChildTitle,
				offset(c.ChildBirth.Earliest, -r.UsualOldestFather),
				offset(c.ChildBirth.Latest, -r.UsualYoungestFather))
		}
	}

	for _, f := range nb.Spouses {
		m := seed(f.Marriage, r.UsualLongestLife)
		n.bound(RuleMarriage, f.FamilyTitle,
			offset(m.Earliest, -r.MaxMarriageAge),
			offset(m.Latest, -r.MinMarriageAge))
	}

	for _, f := range nb.Spouses {
		var title string
		var birth model.Bracket
		switch member.Title {
		case f.WifePage:
			title, birth = f.HusbandPage, f.HusbandBirth
		case f.HusbandPage:
			title, birth = f.WifePage, f.WifeBirth
		default:
			continue
		}
		if title == "" {
			continue
		}
		n.bound(RuleSpouse, title,
			offset(birth.Earliest, -r.MaxSpouseGap),
			offset(birth.Latest, r.MaxSpouseGap))
	}

	var issues []model.Issue
	if p := nb.Parents; p != nil {
		n.bound(RuleParentsMarriage, p.FamilyTitle,
			p.Marriage.Earliest,
			offset(p.Marriage.Latest, r.MaxAfterParentMarriage))

		if p.FatherTitle != "" {
			n.bound(RuleFather, p.FatherTitle,
				offset(p.FatherBirth.Earliest, r.UsualYoungestFather),
				offset(p.FatherBirth.Latest, r.UsualOldestFather))
		}
		if p.MotherTitle != "" {
			n.bound(RuleMother, p.MotherTitle,
				offset(p.MotherBirth.Earliest, r.UsualYoungestMother),
				offset(p.MotherBirth.Latest, r.UsualOldestMother))
		}

		if p.MotherTitle != "" && p.MotherLatestDeath != nil {
			n.bound(RuleMotherDeath, p.MotherTitle, nil, p.MotherLatestDeath)
		}
		if p.FatherTitle != "" && p.FatherLatestDeath != nil {
			n.bound(RuleFatherDeath, p.FatherTitle, nil, offset(p.FatherLatestDeath, 1))
		}
	} else {
		for _, s := range nb.Siblings {
			if s.Title == member.Title {
				continue
			}
			n.bound(RuleSibling, s.Title,
				offset(s.Birth.Earliest, -r.MaxSiblingGap),
				offset(s.Birth.Latest, r.MaxSiblingGap))
		}
	}

	if n.lo != nil && n.hi == nil {
		n.bound(RuleSeed, member.Title, nil, offset(n.lo, r.UsualLongestLife))
	} else if n.hi != nil && n.lo == nil {
		n.bound(RuleSeed, member.Title, offset(n.hi, -r.UsualLongestLife), nil)
	}

	if p := nb.Parents; p != nil && n.lo != nil {
		if p.MotherTitle != "" && p.MotherLatestDeath != nil && *n.lo > *p.MotherLatestDeath {
			issues = append(issues, relationalIssue(member.Title, IssueAfterMotherDied))
		}
		if p.FatherTitle != "" && p.FatherLatestDeath != nil && *n.lo > *p.FatherLatestDeath+1 {
			issues = append(issues, relationalIssue(member.Title, IssueAfterFatherDied))
		}
	}

	birth := model.Bracket{Earliest: n.lo, Latest: n.hi}
	return Result{
		Birth:   birth,
		Trace:   n.trace,
		Issues:  issues,
		Changed: !birth.Equal(member.Birth),
	}
}

// seed fills one missing end of b from the other.
func seed(b model.Bracket, span int) model.Bracket {
	switch {
	case b.Earliest != nil && b.Latest == nil:
		return model.Bracket{Earliest: b.Earliest, Latest: offset(b.Earliest, span)}
	case b.Latest != nil && b.Earliest == nil:
		return model.Bracket{Earliest: offset(b.Latest, -span), Latest: b.Latest}
	}
	return b
}

func relationalIssue(title, desc string) model.Issue {
	return model.Issue{
		Category:    model.CategoryError,
		Description: desc,
		Namespace:   model.NamespacePerson,
		Title:       title,
	}
}
