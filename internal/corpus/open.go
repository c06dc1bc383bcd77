package corpus

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

type readCloser struct {
	io.Reader
	closers []io.Closer
}

func (r *readCloser) Close() error {
	var first error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open opens a dump file, decompressing .gz and .bz2 files on the fly.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: open %s", path)
	}

	buffered := bufio.NewReaderSize(f, 1<<20)
	rc := &readCloser{Reader: buffered, closers: []io.Closer{f}}

	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			f.Close()
			return nil, eris.Wrapf(err, "corpus: gzip %s", path)
		}
		rc.Reader = gz
		rc.closers = append(rc.closers, gz)
	case strings.HasSuffix(path, ".bz2"):
		rc.Reader = bzip2.NewReader(buffered)
	}

	return rc, nil
}
