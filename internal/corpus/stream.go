// Package corpus streams wiki pages out of a MediaWiki XML dump.
package corpus

import (
	"context"
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/dataquality/internal/model"
)

// StreamXML decodes XML elements matching the given local name and sends them to a channel.
// The type parameter T must be a struct with appropriate xml tags.
// Both channels are closed when processing completes.
func StreamXML[T any](ctx context.Context, r io.Reader, elementName string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := xml.NewDecoder(r)
		decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
			enc, err := htmlindex.Get(charset)
			if err != nil {
				return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
			}
			return enc.NewDecoder().Reader(input), nil
		}

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}

			tok, err := decoder.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "xml: read token")
				return
			}

			se, ok := tok.(xml.StartElement)
			if !ok {
				continue
			}

			if se.Name.Local != elementName {
				continue
			}

			var item T
			if err := decoder.DecodeElement(&item, &se); err != nil {
				errCh <- eris.Wrap(err, "xml: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

// dumpPage mirrors a <page> element of a MediaWiki export.
type dumpPage struct {
	Title     string         `xml:"title"`
	NS        int            `xml:"ns"`
	ID        int64          `xml:"id"`
	Redirect  *struct{}      `xml:"redirect"`
	Revisions []dumpRevision `xml:"revision"`
}

type dumpRevision struct {
	ID          int64  `xml:"id"`
	Timestamp   string `xml:"timestamp"`
	Contributor struct {
		Username string `xml:"username"`
		IP       string `xml:"ip"`
	} `xml:"contributor"`
	Comment string `xml:"comment"`
	Text    string `xml:"text"`
}

// redirectPrefix starts the text of a redirect page.
const redirectPrefix = "#redirect"

// Pages streams every page of the dump whose namespace the analysis tracks
// (Person, Family and their talk pages). Other namespaces are dropped here so
// callers only see records they can act on.
func Pages(ctx context.Context, r io.Reader) (<-chan model.Page, <-chan error) {
	raw, rawErr := StreamXML[dumpPage](ctx, r, "page")

	outCh := make(chan model.Page, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		for dp := range raw {
			p, ok := toPage(dp)
			if !ok {
				continue
			}
			select {
			case outCh <- p:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "corpus: context cancelled")
				return
			}
		}
		if err := <-rawErr; err != nil {
			errCh <- eris.Wrap(err, "corpus: stream pages")
		}
	}()

	return outCh, errCh
}

// toPage converts a decoded dump page into a model.Page using its latest revision.
func toPage(dp dumpPage) (model.Page, bool) {
	ns, title, ok := SplitTitle(dp.Title)
	if !ok || !ns.Tracked() {
		return model.Page{}, false
	}
	if dp.NS != 0 && model.Namespace(dp.NS) != ns {
		return model.Page{}, false
	}

	p := model.Page{
		Title:     title,
		Namespace: ns,
		PageID:    dp.ID,
		Redirect:  dp.Redirect != nil,
	}
	if n := len(dp.Revisions); n > 0 {
		rev := dp.Revisions[n-1]
		p.RevisionID = rev.ID
		p.Username = rev.Contributor.Username
		if p.Username == "" {
			p.Username = rev.Contributor.IP
		}
		p.Comment = rev.Comment
		p.Text = rev.Text
		if ts, err := time.Parse(time.RFC3339, rev.Timestamp); err == nil {
			p.Timestamp = ts
		}
	}
	if IsRedirect(p.Text) {
		p.Redirect = true
	}
	return p, true
}

// IsRedirect reports whether text begins with a redirect marker.
func IsRedirect(text string) bool {
	t := strings.TrimSpace(text)
	return len(t) >= len(redirectPrefix) && strings.EqualFold(t[:len(redirectPrefix)], redirectPrefix)
}
