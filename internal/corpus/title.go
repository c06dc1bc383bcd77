package corpus

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/dataquality/internal/model"
)

// NormalizeTitle returns the canonical record key for a page title: NFC
// normalized, underscores as spaces, runs of whitespace collapsed and the
// first letter upper-cased.
func NormalizeTitle(title string) string {
	t := norm.NFC.String(title)
	t = strings.ReplaceAll(t, "_", " ")
	t = strings.Join(strings.Fields(t), " ")
	if t == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(t)
	return string(unicode.ToUpper(r)) + t[size:]
}

// SplitTitle separates a full page title into its namespace and normalized
// record key. It reports false when the prefix is not a tracked namespace.
func SplitTitle(full string) (model.Namespace, string, bool) {
	prefix, rest, found := strings.Cut(full, ":")
	if !found {
		return 0, "", false
	}
	ns, ok := model.NamespaceFromPrefix(NormalizeTitle(prefix))
	if !ok {
		return 0, "", false
	}
	title := NormalizeTitle(rest)
	if title == "" {
		return 0, "", false
	}
	return ns, title, true
}
