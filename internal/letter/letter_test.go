package letter

import (
	"os"
	"strings"
	"testing"
)

func TestSave_RejectsNonPDF(t *testing.T) {
	if _, err := Save(t.TempDir(), []byte("<html>error page</html>")); err == nil {
		t.Fatal("non-PDF payload should be rejected")
	}
}

func TestSave_WritesFile(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("%PDF-1.4\n% placeholder body, not parseable\n%%EOF\n")

	info, err := Save(dir, payload)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	if !strings.HasPrefix(info.Path, dir) {
		t.Errorf("path = %q, want under %q", info.Path, dir)
	}
	if !strings.HasSuffix(info.Path, ".pdf") {
		t.Errorf("path = %q, want .pdf suffix", info.Path)
	}
	if info.Size != int64(len(payload)) {
		t.Errorf("size = %d, want %d", info.Size, len(payload))
	}

	written, err := os.ReadFile(info.Path)
	if err != nil {
		t.Fatalf("reading saved letter: %v", err)
	}
	if string(written) != string(payload) {
		t.Error("saved bytes differ from payload")
	}
}

func TestSave_UnparseablePDFStillSaves(t *testing.T) {
	// A file with the right magic but no structure: the page probe must
	// downgrade to zero rather than fail the save.
	info, err := Save(t.TempDir(), []byte("%PDF-1.4\ngarbage"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if info.Pages != 0 {
		t.Errorf("pages = %d, want 0 for unparseable document", info.Pages)
	}
}
