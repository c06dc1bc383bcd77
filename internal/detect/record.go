// Package detect parses the structured block of Person and Family pages and
// flags problems that can be seen from a single record's own dates.
package detect

import (
	"encoding/xml"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dataquality/internal/corpus"
)

// Event is one dated fact on a record.
type Event struct {
	Type  string `xml:"type,attr"`
	Date  string `xml:"date,attr"`
	Place string `xml:"place,attr"`
	Desc  string `xml:"desc,attr"`
}

type titleRef struct {
	Title string `xml:"title,attr"`
}

// PersonRecord is the structured <person> block of a Person page.
type PersonRecord struct {
	Gender         string
	ParentFamilies []string
	SpouseFamilies []string
	Events         []Event
}

// FamilyRecord is the structured <family> block of a Family page.
type FamilyRecord struct {
	Husbands []string
	Wives    []string
	Children []string
	Events   []Event
}

type personXML struct {
	XMLName  xml.Name   `xml:"person"`
	Gender   string     `xml:"gender"`
	ChildOf  []titleRef `xml:"child_of_family"`
	SpouseOf []titleRef `xml:"spouse_of_family"`
	Events   []Event    `xml:"event_fact"`
}

type familyXML struct {
	XMLName  xml.Name   `xml:"family"`
	Husbands []titleRef `xml:"husband"`
	Wives    []titleRef `xml:"wife"`
	Children []titleRef `xml:"child"`
	Events   []Event    `xml:"event_fact"`
}

// ParsePerson extracts the <person> block from page text. A page without a
// block yields an empty record.
func ParsePerson(text string) (*PersonRecord, error) {
	block, ok := structuredBlock(text, "person")
	if !ok {
		return &PersonRecord{}, nil
	}
	var px personXML
	if err := xml.Unmarshal([]byte(block), &px); err != nil {
		return nil, eris.Wrap(err, "detect: parse person")
	}
	return &PersonRecord{
		Gender:         strings.ToUpper(strings.TrimSpace(px.Gender)),
		ParentFamilies: titles(px.ChildOf),
		SpouseFamilies: titles(px.SpouseOf),
		Events:         px.Events,
	}, nil
}

// ParseFamily extracts the <family> block from page text. A page without a
// block yields an empty record.
func ParseFamily(text string) (*FamilyRecord, error) {
	block, ok := structuredBlock(text, "family")
	if !ok {
		return &FamilyRecord{}, nil
	}
	var fx familyXML
	if err := xml.Unmarshal([]byte(block), &fx); err != nil {
		return nil, eris.Wrap(err, "detect: parse family")
	}
	return &FamilyRecord{
		Husbands: titles(fx.Husbands),
		Wives:    titles(fx.Wives),
		Children: titles(fx.Children),
		Events:   fx.Events,
	}, nil
}

// structuredBlock returns the <tag>...</tag> element at the top of the text.
func structuredBlock(text, tag string) (string, bool) {
	start := openingTag(text, tag)
	if start < 0 {
		return "", false
	}
	rest := text[start:]
	closing := "</" + tag + ">"
	if end := strings.Index(rest, closing); end >= 0 {
		return rest[:end+len(closing)], true
	}
	// Self-closing empty block.
	if end := strings.Index(rest, "/>"); end >= 0 && !strings.Contains(rest[:end], ">") {
		return rest[:end+2], true
	}
	return rest, true
}

// openingTag returns the offset of the first <tag>, <tag ...> or <tag/>,
// skipping longer names that share the prefix such as <personal>.
func openingTag(text, tag string) int {
	open := "<" + tag
	for off := 0; ; {
		i := strings.Index(text[off:], open)
		if i < 0 {
			return -1
		}
		at := off + i
		next := at + len(open)
		if next == len(text) {
			return -1
		}
		switch text[next] {
		case '>', '/', ' ', '\t', '\n', '\r':
			return at
		}
		off = next
	}
}

func titles(refs []titleRef) []string {
	var out []string
	for _, r := range refs {
		if t := corpus.NormalizeTitle(r.Title); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// eventsOf returns events whose type matches any of types, case-insensitively.
func eventsOf(events []Event, types ...string) []Event {
	var out []Event
	for _, e := range events {
		for _, t := range types {
			if strings.EqualFold(strings.TrimSpace(e.Type), t) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}
