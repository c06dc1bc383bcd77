package detect

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/dataquality/internal/model"
)

// aboutSpan widens approximate dates ("abt 1850") on each side.
const aboutSpan = 5

var (
	yearPattern = regexp.MustCompile(`\b(\d{3,4})(?:/(\d{1,4}))?\b`)

	aboutWords  = []string{"abt", "about", "est", "estimated", "cal", "calc", "calculated", "circa", "ca", "c"}
	beforeWords = []string{"bef", "before", "by", "to"}
	afterWords  = []string{"aft", "after", "from"}
)

// ParseYears converts a genealogical date string into a year bracket.
// It reports false when the string holds no year.
//
//	"12 Mar 1900"        -> 1900-1900
//	"abt 1850"           -> 1845-1855
//	"bef 1900"           -> ?-1900
//	"aft 1880"           -> 1880-?
//	"bet 1880 and 1885"  -> 1880-1885
//	"from 1880 to 1885"  -> 1880-1885
//	"1750/51"            -> 1750-1751
func ParseYears(date string) (model.Bracket, bool) {
	d := strings.ToLower(strings.TrimSpace(date))
	if d == "" {
		return model.Bracket{}, false
	}
	// Interpreted or free-text dates carry their text in parentheses.
	if i := strings.Index(d, "("); i >= 0 {
		d = strings.TrimSpace(d[:i])
	}

	matches := yearPattern.FindAllStringSubmatchIndex(d, -1)
	if len(matches) == 0 {
		return model.Bracket{}, false
	}

	first, firstEnd := yearAt(d, matches[0])
	if len(matches) >= 2 {
		second, secondEnd := yearAt(d, matches[1])
		lo, hi := first, secondEnd
		if firstEnd > second {
			// bet 1885 and 1880: keep the reversed order, the detector reports it
			lo, hi = first, second
		}
		return model.NewBracket(lo, hi), true
	}

	qualifier := strings.Fields(d[:matches[0][0]])
	switch {
	case hasAny(qualifier, aboutWords):
		return model.NewBracket(first-aboutSpan, firstEnd+aboutSpan), true
	case hasAny(qualifier, beforeWords):
		return model.Bracket{Latest: model.IntPtr(firstEnd)}, true
	case hasAny(qualifier, afterWords):
		return model.Bracket{Earliest: model.IntPtr(first)}, true
	}
	return model.NewBracket(first, firstEnd), true
}

// yearAt returns the year and, for dual dates like 1750/51, the later year.
func yearAt(d string, m []int) (int, int) {
	year, _ := strconv.Atoi(d[m[2]:m[3]])
	end := year
	if m[4] >= 0 {
		suffix := d[m[4]:m[5]]
		if n, err := strconv.Atoi(suffix); err == nil {
			if len(suffix) < 4 {
				base := year - year%pow10(len(suffix))
				n += base
				if n < year {
					n += pow10(len(suffix))
				}
			}
			if n >= year {
				end = n
			}
		}
	}
	return year, end
}

func pow10(n int) int {
	p := 1
	for range n {
		p *= 10
	}
	return p
}

func hasAny(words, set []string) bool {
	for _, w := range words {
		w = strings.Trim(w, ".,")
		for _, s := range set {
			if w == s {
				return true
			}
		}
	}
	return false
}

// merge combines the brackets of several dated facts of the same kind into
// their envelope: the earliest lower bound and the latest upper bound.
func merge(events []Event) model.Bracket {
	var out model.Bracket
	for _, e := range events {
		b, ok := ParseYears(e.Date)
		if !ok {
			continue
		}
		if b.Earliest != nil && (out.Earliest == nil || *b.Earliest < *out.Earliest) {
			out.Earliest = model.IntPtr(*b.Earliest)
		}
		if b.Latest != nil && (out.Latest == nil || *b.Latest > *out.Latest) {
			out.Latest = model.IntPtr(*b.Latest)
		}
	}
	return out
}
