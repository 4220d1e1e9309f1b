package testutil

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/zip"
)

// ArchiveEntry is a single file placed in a test archive.
type ArchiveEntry struct {
	Name string
	Body []byte
}

// BuildArchive returns a zip archive containing entries in order.
func BuildArchive(t testing.TB, entries ...ArchiveEntry) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.Create(e.Name)
		if err != nil {
			t.Fatalf("create archive entry %s: %v", e.Name, err)
		}
		if _, err := w.Write(e.Body); err != nil {
			t.Fatalf("write archive entry %s: %v", e.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close archive: %v", err)
	}
	return buf.Bytes()
}
