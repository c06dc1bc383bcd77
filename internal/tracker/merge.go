package tracker

import (
	"sort"

	"github.com/sells-group/dataquality/internal/model"
)

// MergeAttributions combines the users recorded on the article copy and the
// talk copy of the same marker. A nil side is absent. The result is
// "unidentified" only when no side names a user.
func MergeAttributions(article, talk []string) []string {
	var users []string
	present := article != nil || talk != nil
	for _, side := range [][]string{article, talk} {
		for _, u := range side {
			if u != model.Unidentified {
				users = appendUnique(users, u)
			}
		}
	}
	if len(users) == 0 && present {
		return []string{model.Unidentified}
	}
	return users
}

type attributionKey struct {
	ns    model.Namespace
	title string
	typ   model.ActionType
	desc  string
}

// Merge groups actions by article namespace, title, type and description and
// merges the article and talk copies of each group. Results are sorted for
// stable writes.
func Merge(actions []model.Action) []model.Attribution {
	type sides struct {
		article, talk       []string
		hasArticle, hasTalk bool
	}
	groups := make(map[attributionKey]*sides)
	for _, a := range actions {
		k := attributionKey{ns: a.Namespace.Article(), title: a.Title, typ: a.Type, desc: a.Description}
		s, ok := groups[k]
		if !ok {
			s = &sides{}
			groups[k] = s
		}
		if a.Namespace.IsTalk() {
			s.talk = append(s.talk, a.ActionBy...)
			s.hasTalk = true
		} else {
			s.article = append(s.article, a.ActionBy...)
			s.hasArticle = true
		}
	}

	out := make([]model.Attribution, 0, len(groups))
	for k, s := range groups {
		out = append(out, model.Attribution{
			Namespace:   k.ns,
			Title:       k.title,
			Type:        k.typ,
			Description: k.desc,
			Users:       MergeAttributions(side(s.article, s.hasArticle), side(s.talk, s.hasTalk)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Description < b.Description
	})
	return out
}

// side returns users, or nil when the side was never seen.
func side(users []string, seen bool) []string {
	if !seen {
		return nil
	}
	if users == nil {
		return []string{}
	}
	return users
}
