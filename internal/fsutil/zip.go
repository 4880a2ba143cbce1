package fsutil

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
)

// writeZipEntry writes a single-file zip archive at destPath containing
// one entry named entryName with contents data.
func writeZipEntry(destPath, entryName string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("writing zip %s: creating parent dir: %w", destPath, err)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("writing zip %s: %w", destPath, err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	entry, err := zw.Create(entryName)
	if err != nil {
		return fmt.Errorf("writing zip %s: creating entry: %w", destPath, err)
	}

	if _, err := entry.Write(data); err != nil {
		return fmt.Errorf("writing zip %s: writing entry: %w", destPath, err)
	}

	return zw.Close()
}

// loadJSONFromZip reads the first file entry found inside the zip archive
// at path and unmarshals it into v, matching the original tool's
// zip-wrapped-manifest convention (spec.md §4.1).
func (fs *FS) loadJSONFromZip(path string, v any) error {
	r, err := zip.OpenReader(fs.Resolve(path))
	if err != nil {
		return fmt.Errorf("opening zip %s: %w", path, err)
	}
	defer r.Close()

	if len(r.File) == 0 {
		return fmt.Errorf("zip %s has no entries", path)
	}

	entry := r.File[0]

	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("opening zip entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("reading zip entry %s: %w", entry.Name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

// UnzipContents extracts every entry of the zip archive at file into
// destPath, preserving relative paths (spec.md §4.1).
func (fs *FS) UnzipContents(file, destPath string) error {
	r, err := zip.OpenReader(fs.Resolve(file))
	if err != nil {
		return fmt.Errorf("unzip_contents %s: %w", file, err)
	}
	defer r.Close()

	root := fs.Resolve(destPath)

	for _, entry := range r.File {
		target := filepath.Join(root, entry.Name) //nolint:gosec // manifest zips are trusted content sources

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil { //nolint:mnd
				return fmt.Errorf("unzip_contents %s: creating %s: %w", file, target, err)
			}

			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil { //nolint:mnd
			return fmt.Errorf("unzip_contents %s: creating parent of %s: %w", file, target, err)
		}

		if err := extractZipEntry(entry, target); err != nil {
			return fmt.Errorf("unzip_contents %s: %w", file, err)
		}
	}

	return nil
}

func extractZipEntry(entry *zip.File, target string) error {
	rc, err := entry.Open()
	if err != nil {
		return fmt.Errorf("opening entry %s: %w", entry.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil { //nolint:gosec // manifest zip sizes are bounded by the upstream DB
		return fmt.Errorf("extracting to %s: %w", target, err)
	}

	return nil
}

// tempNameCounter disambiguates UniqueTempFilename candidates generated
// within the same process tick.
var tempNameCounter atomic.Uint64

func tempNameSalt() int {
	return int(tempNameCounter.Add(1)) //nolint:gosec // monotonic counter, not security sensitive
}
