package detect

import (
	"fmt"
	"strings"

	"github.com/sells-group/dataquality/internal/model"
)

// PersonFacts are the bounds a Person record states about itself.
type PersonFacts struct {
	Birth     model.Bracket
	Death     model.Bracket
	DiedYoung bool
}

// FamilyFacts are the bounds a Family record states about itself.
type FamilyFacts struct {
	Marriage model.Bracket
}

// Detector classifies one record's own dates. Implementations must not look
// at other records.
type Detector interface {
	Person(title string, rec *PersonRecord) (PersonFacts, []model.Issue)
	Family(title string, rec *FamilyRecord) (FamilyFacts, []model.Issue)
}

// Limits holds the spans the built-in rules compare against.
type Limits struct {
	UsualLongestLife int
	MinMarriageAge   int
}

// RuleDetector is the built-in Detector.
type RuleDetector struct {
	limits Limits
}

// NewRuleDetector creates a RuleDetector.
func NewRuleDetector(limits Limits) *RuleDetector {
	return &RuleDetector{limits: limits}
}

var (
	birthTypes       = []string{"Birth"}
	christeningTypes = []string{"Christening", "Baptism"}
	deathTypes       = []string{"Death"}
	burialTypes      = []string{"Burial"}
	marriageTypes    = []string{"Marriage"}
	bannsTypes       = []string{"Marriage Banns", "Marriage License", "Engagement"}
	diedYoungTypes   = []string{"Died Young", "Stillborn"}
)

// Person derives birth and death brackets and local issues for a Person.
func (d *RuleDetector) Person(title string, rec *PersonRecord) (PersonFacts, []model.Issue) {
	var issues []model.Issue
	add := func(category, desc string) {
		issues = append(issues, model.Issue{Category: category, Description: desc, Namespace: model.NamespacePerson, Title: title})
	}

	birth := merge(eventsOf(rec.Events, birthTypes...))
	chr := merge(eventsOf(rec.Events, christeningTypes...))
	death := merge(eventsOf(rec.Events, deathTypes...))
	burial := merge(eventsOf(rec.Events, burialTypes...))

	if birth.Complete() && chr.Latest != nil && *chr.Latest < *birth.Earliest {
		add(model.CategoryError, "Christened/baptized before born")
	}
	if death.Complete() && burial.Latest != nil && *burial.Latest < *death.Earliest {
		add(model.CategoryError, "Buried before died")
	}
	if birth.Contradictory() {
		add(model.CategoryError, "Birth date range is reversed")
	}

	// Christening bounds birth from above when there is no birth date.
	if birth.Empty() && chr.Latest != nil {
		birth.Latest = model.IntPtr(*chr.Latest)
	}
	// Burial bounds death from above when there is no death date.
	if death.Empty() && burial.Latest != nil {
		death.Latest = model.IntPtr(*burial.Latest)
	}

	bornAfterDied := birth.Earliest != nil && death.Latest != nil && *birth.Earliest > *death.Latest
	if bornAfterDied {
		add(model.CategoryError, "Born after died")
	}
	livedTooLong := birth.Latest != nil && death.Earliest != nil && *death.Earliest-*birth.Latest > d.limits.UsualLongestLife
	if livedTooLong {
		add(model.CategoryAnomaly, fmt.Sprintf("Lived more than %d years", d.limits.UsualLongestLife))
	}

	// A known death also bounds the birth. Both steps only narrow, so a
	// record that contradicts itself ends up with a contradictory bracket.
	if death.Latest != nil {
		birth.Latest = lower(birth.Latest, *death.Latest)
	}
	if death.Earliest != nil {
		birth.Earliest = raise(birth.Earliest, *death.Earliest-d.limits.UsualLongestLife)
	}

	g := rec.Gender
	if g != "M" && g != "F" {
		add(model.CategoryIncomplete, "Missing gender")
	}
	if len(rec.ParentFamilies) > 1 {
		add(model.CategoryAnomaly, "Multiple sets of parents")
	}

	diedYoung := len(eventsOf(rec.Events, diedYoungTypes...)) > 0
	for _, e := range eventsOf(rec.Events, deathTypes...) {
		if strings.Contains(strings.ToLower(e.Desc), "young") {
			diedYoung = true
		}
	}
	if b := merge(eventsOf(rec.Events, birthTypes...)); b.Earliest != nil && death.Latest != nil &&
		*death.Latest-*b.Earliest < d.limits.MinMarriageAge {
		diedYoung = true
	}

	return PersonFacts{Birth: birth, Death: death, DiedYoung: diedYoung}, issues
}

// Family derives the marriage bracket and local issues for a Family.
func (d *RuleDetector) Family(title string, rec *FamilyRecord) (FamilyFacts, []model.Issue) {
	var issues []model.Issue
	add := func(category, desc string) {
		issues = append(issues, model.Issue{Category: category, Description: desc, Namespace: model.NamespaceFamily, Title: title})
	}

	marriage := merge(eventsOf(rec.Events, marriageTypes...))
	if marriage.Empty() {
		// Banns and licences precede the marriage by weeks, not years.
		marriage = merge(eventsOf(rec.Events, bannsTypes...))
	}
	if marriage.Contradictory() {
		add(model.CategoryError, "Marriage date range is reversed")
	}

	if len(rec.Husbands) == 0 && len(rec.Wives) == 0 {
		add(model.CategoryIncomplete, "Missing husband and wife")
	}
	if len(rec.Husbands) > 1 {
		add(model.CategoryAnomaly, "Multiple husbands")
	}
	if len(rec.Wives) > 1 {
		add(model.CategoryAnomaly, "Multiple wives")
	}

	return FamilyFacts{Marriage: marriage}, issues
}

func lower(cur *int, v int) *int {
	if cur == nil || v < *cur {
		return model.IntPtr(v)
	}
	return cur
}

func raise(cur *int, v int) *int {
	if cur == nil || v > *cur {
		return model.IntPtr(v)
	}
	return cur
}
