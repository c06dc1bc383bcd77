package model

import (
	"fmt"
	"strings"
)

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

// Bracket is an inclusive year range. Either end may be unknown.
type Bracket struct {
	Earliest *int `json:"earliest,omitempty"`
	Latest   *int `json:"latest,omitempty"`
}

// NewBracket builds a fully known bracket.
func NewBracket(earliest, latest int) Bracket {
	return Bracket{Earliest: IntPtr(earliest), Latest: IntPtr(latest)}
}

// Empty reports whether neither end is known.
func (b Bracket) Empty() bool {
	return b.Earliest == nil && b.Latest == nil
}

// Complete reports whether both ends are known.
func (b Bracket) Complete() bool {
	return b.Earliest != nil && b.Latest != nil
}

// Contradictory reports whether both ends are known and earliest > latest.
func (b Bracket) Contradictory() bool {
	return b.Complete() && *b.Earliest > *b.Latest
}

// Width returns latest - earliest, or false when either end is unknown.
func (b Bracket) Width() (int, bool) {
	if !b.Complete() {
		return 0, false
	}
	return *b.Latest - *b.Earliest, true
}

// Equal reports whether both brackets have the same ends.
func (b Bracket) Equal(o Bracket) bool {
	return intEqual(b.Earliest, o.Earliest) && intEqual(b.Latest, o.Latest)
}

// Clone returns a copy that shares no pointers with b.
func (b Bracket) Clone() Bracket {
	var c Bracket
	if b.Earliest != nil {
		c.Earliest = IntPtr(*b.Earliest)
	}
	if b.Latest != nil {
		c.Latest = IntPtr(*b.Latest)
	}
	return c
}

func (b Bracket) String() string {
	return fmt.Sprintf("%s-%s", yearString(b.Earliest), yearString(b.Latest))
}

func yearString(y *int) string {
	if y == nil {
		return "?"
	}
	return fmt.Sprintf("%d", *y)
}

func intEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// AnalysisRow is one analyzed Person or Family record within a job
// (dq_page_analysis). Birth and death fields apply to Person rows; marriage
// and spouse fields apply to Family rows.
type AnalysisRow struct {
	JobID       int64
	PageID      int64
	Namespace   Namespace
	Title       string
	Birth       Bracket
	LatestDeath *int
	Marriage    Bracket
	ParentPage  string
	HusbandPage string
	WifePage    string
	DiedYoung   bool
	Famous      bool
	Ancient     bool
	LastUser    string
	BirthCalc   string
	ViewedBy    []string
}

// TraceEntry is one tightening step recorded in the birth calculation trace.
type TraceEntry struct {
	Round   int
	Rule    string
	Title   string
	Bracket Bracket
}

func (e TraceEntry) String() string {
	return fmt.Sprintf("r%d %s %s => %s", e.Round, e.Rule, e.Title, e.Bracket)
}

// AppendTrace appends entries to an existing trace, one per line.
func AppendTrace(trace string, entries ...TraceEntry) string {
	if len(entries) == 0 {
		return trace
	}
	var sb strings.Builder
	sb.WriteString(trace)
	for _, e := range entries {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(e.String())
	}
	return sb.String()
}
