package model

// Issue categories.
const (
	CategoryError      = "Error"
	CategoryAnomaly    = "Anomaly"
	CategoryIncomplete = "Incomplete"
)

// Issue is a detected data-quality problem on one record.
type Issue struct {
	Category    string
	Description string
	Namespace   Namespace
	Title       string
}

// Key identifies an issue within a job.
type IssueKey struct {
	Namespace   Namespace
	Title       string
	Category    string
	Description string
}

// Key returns the dedup key of the issue.
func (i Issue) Key() IssueKey {
	return IssueKey{Namespace: i.Namespace, Title: i.Title, Category: i.Category, Description: i.Description}
}

// ActionType distinguishes issue verifications from page deferrals.
type ActionType string

const (
	ActionAnomaly ActionType = "Anomaly"
	ActionPage    ActionType = "Page"
)

// Unidentified marks an action whose marker carries no attributable user.
const Unidentified = "unidentified"

// DeferralDescription is the description stored on page deferral actions.
const DeferralDescription = "Deferred"

// Action is a human verification or deferral found in page text.
type Action struct {
	JobID       int64
	PageID      int64
	Namespace   Namespace
	Title       string
	Type        ActionType
	Description string
	ActionBy    []string
}

// Identified reports whether at least one real username is attributed.
func (a Action) Identified() bool {
	for _, u := range a.ActionBy {
		if u != Unidentified {
			return true
		}
	}
	return false
}

// Attribution is the merged set of users behind one verification or deferral,
// keyed by the article namespace.
type Attribution struct {
	Namespace   Namespace
	Title       string
	Type        ActionType
	Description string
	Users       []string
}
