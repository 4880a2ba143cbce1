package store

import (
	"fmt"
	"log/slog"

	"github.com/tonurics/downloader-mister/internal/model"
)

// migration is one version-tagged step, applied strictly-increasing from
// a store's current version to the Migrator's terminal version — mirrors
// the original tool's `migrations/__init__.py` (an ordered list of
// version-tagged functions) more closely than a SQL migration would,
// since the store is a JSON document, not a relational database.
type migration struct {
	targetVersion int
	name          string
	apply         func(*model.StoreDoc) error
}

// Migrator holds the ordered list of store migrations.
type Migrator struct {
	migrations []migration
	logger     *slog.Logger
}

// NewMigrator returns a Migrator with the built-in migration list, in
// ascending target-version order.
func NewMigrator(logger *slog.Logger) *Migrator {
	return &Migrator{
		migrations: []migration{
			{targetVersion: 1, name: "initialize_filtered_zip_data", apply: initializeFilteredZipData},
		},
		logger: logger,
	}
}

// TerminalVersion is the version a fully migrated store ends up at.
func (m *Migrator) TerminalVersion() int {
	if len(m.migrations) == 0 {
		return 0
	}

	return m.migrations[len(m.migrations)-1].targetVersion
}

// Migrate applies every migration whose targetVersion is greater than
// doc.Version, in order, bumping doc.Version after each.
func (m *Migrator) Migrate(doc *model.StoreDoc) error {
	for _, step := range m.migrations {
		if step.targetVersion <= doc.Version {
			continue
		}

		if err := step.apply(doc); err != nil {
			return fmt.Errorf("migrating store to version %d (%s): %w", step.targetVersion, step.name, err)
		}

		doc.Version = step.targetVersion

		m.logger.Info("store: migration applied", "version", step.targetVersion, "name", step.name)
	}

	return nil
}

// initializeFilteredZipData ensures every DbStore has a non-nil
// FilteredZipData map, for stores persisted before that field existed.
func initializeFilteredZipData(doc *model.StoreDoc) error {
	for id, db := range doc.DBs {
		if db.FilteredZipData == nil {
			db.FilteredZipData = make(map[string]model.FilteredZipData)
			doc.DBs[id] = db
		}
	}

	return nil
}
