// Package letter handles the downloaded sanction letter: writing the
// binary payload to disk and probing the result so the transcript can
// report something more useful than a byte count.
package letter

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF-")

// Info describes a saved sanction letter. Pages is zero when the document
// could not be parsed; the file is saved regardless.
type Info struct {
	Path  string
	Size  int64
	Pages int
}

// Save verifies that data looks like a PDF and writes it into dir under a
// timestamped name.
func Save(dir string, data []byte) (Info, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return Info{}, fmt.Errorf("letter payload is not a PDF document")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Info{}, fmt.Errorf("creating letter directory: %w", err)
	}

	name := fmt.Sprintf("sanction_letter_%s.pdf", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return Info{}, fmt.Errorf("writing letter: %w", err)
	}

	return Info{
		Path:  path,
		Size:  int64(len(data)),
		Pages: pageCount(path),
	}, nil
}

// pageCount parses the saved file and returns its page count, or zero if
// the document is unreadable. The parser panics on some malformed inputs,
// so the probe is fenced.
func pageCount(path string) (n int) {
	defer func() {
		if recover() != nil {
			n = 0
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	return r.NumPage()
}
