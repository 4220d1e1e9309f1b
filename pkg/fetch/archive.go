package fetch

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"
)

// MaxEntrySize bounds the decompressed size of an extracted archive entry.
const MaxEntrySize = 64 << 20

// ExtractSingle opens a zip archive and returns the bytes of its single
// entry, unmodified. An archive with no entries, that cannot be parsed, or
// whose entry decompresses beyond MaxEntrySize is reported as
// ErrUnavailable.
//
// Upstream archives occasionally bundle images next to the text. In that
// case the first .txt entry is returned.
func ExtractSingle(archive []byte) ([]byte, error) {
	return extract(archive, MaxEntrySize)
}

func extract(archive []byte, maxSize int64) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("%w: open archive: %v", ErrUnavailable, err)
	}

	files := make([]*zip.File, 0, len(r.File))
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: archive is empty", ErrUnavailable)
	}

	entry := files[0]
	if len(files) > 1 {
		for _, f := range files {
			if strings.EqualFold(path.Ext(f.Name), ".txt") {
				entry = f
				break
			}
		}
		log.Warn().
			Int("entries", len(files)).
			Str("entry", entry.Name).
			Msg("Archive contains more than one entry")
	}

	if entry.UncompressedSize64 > uint64(maxSize) {
		return nil, fmt.Errorf("%w: entry %s declares %d bytes, limit %d",
			ErrUnavailable, entry.Name, entry.UncompressedSize64, maxSize)
	}

	rc, err := entry.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open entry %s: %v", ErrUnavailable, entry.Name, err)
	}
	defer rc.Close()

	// The declared size is not trusted.
	data, err := io.ReadAll(io.LimitReader(rc, maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read entry %s: %v", ErrUnavailable, entry.Name, err)
	}
	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("%w: entry %s exceeds %d bytes", ErrUnavailable, entry.Name, maxSize)
	}
	return data, nil
}
