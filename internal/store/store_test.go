package store

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tonurics/downloader-mister/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad_MissingFileSynthesizesEmptyStore(t *testing.T) {
	t.Parallel()

	doc, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if doc.Version != 0 || len(doc.DBs) != 0 {
		t.Errorf("doc = %+v, want empty store at version 0", doc)
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "store.json")

	doc := model.NewStoreDoc()
	doc.Version = 1
	dbStore := model.NewDbStore()
	dbStore.Files["a.txt"] = model.FileDescriptor{Hash: "abc123", Size: 10}
	doc.DBs["distribution_mister"] = dbStore

	if err := Save(path, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}

	gotFile, ok := got.DBs["distribution_mister"].Files["a.txt"]
	if !ok || gotFile.Hash != "abc123" {
		t.Errorf("round-tripped file = %+v, ok=%v", gotFile, ok)
	}
}

func TestSave_WritesAtomically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")

	if err := Save(path, model.NewStoreDoc()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, e := range entries {
		if e.Name() != "store.json" {
			t.Errorf("unexpected leftover file %q after Save", e.Name())
		}
	}
}

func TestMigrator_Migrate_BumpsVersionAndInitializesFields(t *testing.T) {
	t.Parallel()

	m := NewMigrator(testLogger())

	doc := model.NewStoreDoc()
	doc.DBs["distribution_mister"] = model.DbStore{
		Files:   map[string]model.FileDescriptor{},
		Folders: map[string]model.FolderDescriptor{},
	}

	if err := m.Migrate(doc); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	if doc.Version != m.TerminalVersion() {
		t.Errorf("Version = %d, want terminal version %d", doc.Version, m.TerminalVersion())
	}

	if doc.DBs["distribution_mister"].FilteredZipData == nil {
		t.Error("expected FilteredZipData to be initialized by migration")
	}
}

func TestMigrator_Migrate_SkipsAlreadyAppliedSteps(t *testing.T) {
	t.Parallel()

	m := NewMigrator(testLogger())

	doc := model.NewStoreDoc()
	doc.Version = m.TerminalVersion()

	if err := m.Migrate(doc); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	if doc.Version != m.TerminalVersion() {
		t.Errorf("Version = %d, want unchanged terminal version %d", doc.Version, m.TerminalVersion())
	}
}
