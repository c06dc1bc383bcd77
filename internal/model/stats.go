package model

import "time"

// Stat is one summary count written to dq_stats.
type Stat struct {
	JobID       int64
	Date        time.Time
	Category    string
	Description string
	Count       int64
}

// Stat categories. Per-issue counts use the issue category itself.
const (
	StatPages         = "Pages"
	StatLiving        = "Living"
	StatNoDate        = "No date"
	StatContradiction = "Chronology"
	StatImpact        = "Impact"
)
