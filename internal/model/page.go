package model

import "time"

// Namespace is a wiki namespace number.
type Namespace int

// Namespaces the analysis reads. Talk namespaces are the article namespace + 1.
const (
	NamespacePerson     Namespace = 108
	NamespacePersonTalk Namespace = 109
	NamespaceFamily     Namespace = 110
	NamespaceFamilyTalk Namespace = 111
)

var namespacePrefixes = map[Namespace]string{
	NamespacePerson:     "Person",
	NamespacePersonTalk: "Person talk",
	NamespaceFamily:     "Family",
	NamespaceFamilyTalk: "Family talk",
}

// String returns the title prefix of the namespace, or "" when unknown.
func (n Namespace) String() string {
	return namespacePrefixes[n]
}

// IsTalk reports whether n is a talk namespace.
func (n Namespace) IsTalk() bool {
	return n%2 == 1
}

// Article returns the article namespace for a talk namespace and n otherwise.
func (n Namespace) Article() Namespace {
	if n.IsTalk() {
		return n - 1
	}
	return n
}

// Analyzed reports whether pages in n get an analysis row.
func (n Namespace) Analyzed() bool {
	return n == NamespacePerson || n == NamespaceFamily
}

// Tracked reports whether pages in n are scanned for verification markup.
func (n Namespace) Tracked() bool {
	_, ok := namespacePrefixes[n]
	return ok
}

// NamespaceFromPrefix maps a title prefix such as "Person talk" to its namespace.
func NamespaceFromPrefix(prefix string) (Namespace, bool) {
	for ns, p := range namespacePrefixes {
		if p == prefix {
			return ns, true
		}
	}
	return 0, false
}

// Page is one record from the corpus stream: the latest revision of a wiki page.
type Page struct {
	Title      string // record key without the namespace prefix
	Namespace  Namespace
	PageID     int64
	RevisionID int64
	Username   string
	Timestamp  time.Time
	Comment    string
	Text       string
	Redirect   bool
}
