package tracker

import (
	"regexp"
	"strings"

	"github.com/sells-group/dataquality/internal/corpus"
	"github.com/sells-group/dataquality/internal/model"
)

var (
	userLinkPattern  = regexp.MustCompile(`(?i)\[\[\s*user\s*:\s*([^\]|/]+)`)
	userParamPattern = regexp.MustCompile(`(?i)\|\s*(?:user|by)\s*=\s*([^|}\[]+)`)
	userPrefix       = regexp.MustCompile(`(?i)^user\s*:\s*`)
)

type matcher struct {
	tmpl    Template
	pattern *regexp.Regexp
}

// Tracker scans page text for anomaly templates and the deferral marker.
type Tracker struct {
	anomalies []matcher
	deferral  *regexp.Regexp
}

// New creates a Tracker for the given anomaly templates and deferral template name.
func New(templates []Template, deferralTemplate string) *Tracker {
	t := &Tracker{}
	for _, tmpl := range templates {
		t.anomalies = append(t.anomalies, matcher{tmpl: tmpl, pattern: templatePattern(tmpl.Name)})
	}
	if deferralTemplate != "" {
		t.deferral = templatePattern(deferralTemplate)
	}
	return t
}

// templatePattern matches {{Name}} and {{Name|args}}, case-insensitive on the name.
func templatePattern(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)\{\{\s*` + regexp.QuoteMeta(name) + `\s*(\|[^{}]*)?\}\}`)
}

// Scan returns the actions recorded on a page. Article pages keep their
// namespace and talk pages keep the talk namespace, so the two copies can be
// merged later. Talk actions carry the talk page id until the store resolves
// the article id after the load. The job id is left for the caller to set.
func (t *Tracker) Scan(page model.Page) []model.Action {
	if !page.Namespace.Tracked() || page.Redirect || page.Text == "" {
		return nil
	}

	var actions []model.Action
	for _, m := range t.anomalies {
		occurrences := m.pattern.FindAllStringSubmatch(page.Text, -1)
		if len(occurrences) == 0 {
			continue
		}
		var users []string
		for _, occ := range occurrences {
			users = appendUnique(users, extractUsers(occ[1])...)
		}
		if len(users) == 0 {
			users = []string{model.Unidentified}
		}
		actions = append(actions, model.Action{
			PageID:      page.PageID,
			Namespace:   page.Namespace,
			Title:       page.Title,
			Type:        model.ActionAnomaly,
			Description: m.tmpl.Description,
			ActionBy:    users,
		})
	}

	if t.deferral != nil {
		if occ := t.deferral.FindStringSubmatch(page.Text); occ != nil {
			if users := extractUsers(occ[1]); len(users) > 0 {
				actions = append(actions, model.Action{
					PageID:      page.PageID,
					Namespace:   page.Namespace,
					Title:       page.Title,
					Type:        model.ActionPage,
					Description: model.DeferralDescription,
					ActionBy:    users,
				})
			}
		}
	}

	return actions
}

// extractUsers pulls usernames out of a template's argument text, from
// [[User:Name]] links and plain user=/by= parameters. A parameter whose value
// is a link is read through the link.
func extractUsers(args string) []string {
	var users []string
	for _, m := range userLinkPattern.FindAllStringSubmatch(args, -1) {
		users = appendUnique(users, corpus.NormalizeTitle(m[1]))
	}
	for _, m := range userParamPattern.FindAllStringSubmatch(args, -1) {
		name := corpus.NormalizeTitle(userPrefix.ReplaceAllString(strings.TrimSpace(m[1]), ""))
		users = appendUnique(users, name)
	}
	return users
}

func appendUnique(list []string, names ...string) []string {
	for _, n := range names {
		if n == "" {
			continue
		}
		dup := false
		for _, existing := range list {
			if existing == n {
				dup = true
				break
			}
		}
		if !dup {
			list = append(list, n)
		}
	}
	return list
}
