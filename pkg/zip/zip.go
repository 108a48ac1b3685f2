// Package zip streams named entries into a zip archive.
package zip

import (
	"archive/zip"
	"fmt"
	"io"
	"time"
)

// Entry is one file of an archive. Open is called only when the entry is written.
type Entry struct {
	Name     string
	Modified time.Time
	Open     func() (io.ReadCloser, error)
}

// Write streams entries into w in order. Names must be unique.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if _, dup := seen[entry.Name]; dup {
			return fmt.Errorf("zip: duplicate entry %q", entry.Name)
		}
		seen[entry.Name] = struct{}{}
		if err := writeEntry(zw, entry); err != nil {
			return err
		}
	}
	return zw.Close()
}

func writeEntry(zw *zip.Writer, entry Entry) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("zip: open %s: %w", entry.Name, err)
	}
	defer src.Close()

	// Images are already compressed.
	dst, err := zw.CreateHeader(&zip.FileHeader{
		Name:     entry.Name,
		Method:   zip.Store,
		Modified: entry.Modified,
	})
	if err != nil {
		return fmt.Errorf("zip: create %s: %w", entry.Name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("zip: write %s: %w", entry.Name, err)
	}
	return nil
}
