// Package store persists the StoreDoc as JSON, atomically, and migrates
// it forward through an ordered list of versioned steps — spec.md §4.5.
// The atomic-write idiom (temp file in the same directory, then rename)
// is grounded on the teacher's internal/config/write.go.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tonurics/downloader-mister/internal/model"
)

// Load reads the store document at path. A missing file synthesizes an
// empty store at version 0 (spec.md §4.5), ready for Migrate.
func Load(path string) (*model.StoreDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.NewStoreDoc(), nil
		}

		return nil, fmt.Errorf("loading store %s: %w", path, err)
	}

	doc := model.NewStoreDoc()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parsing store %s: %w", path, err)
	}

	if doc.DBs == nil {
		doc.DBs = make(map[string]model.DbStore)
	}

	return doc, nil
}

// Save persists doc to path atomically: write to a temp file in the same
// directory, then rename over the destination (spec.md §6).
func Save(path string, doc *model.StoreDoc) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("saving store %s: creating parent dir: %w", path, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("saving store %s: encoding: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".store-*.tmp")
	if err != nil {
		return fmt.Errorf("saving store %s: creating temp file: %w", path, err)
	}

	tmpName := tmp.Name()

	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()

		return fmt.Errorf("saving store %s: writing temp file: %w", path, err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("saving store %s: closing temp file: %w", path, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("saving store %s: renaming into place: %w", path, err)
	}

	return nil
}
