package reconcile

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/tonurics/downloader-mister/internal/config"
	"github.com/tonurics/downloader-mister/internal/downloader"
	"github.com/tonurics/downloader-mister/internal/fsutil"
	"github.com/tonurics/downloader-mister/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newHarness(allowDelete config.AllowDelete) (*fsutil.Fake, *downloader.Fake, *Reconciler) {
	fake := fsutil.NewFake(allowDelete)
	dl := downloader.NewFake(func(target string, data []byte) error {
		fake.WriteFile(target, data)

		return nil
	})

	return fake, dl, New(fake, dl, testLogger())
}

func effConfig() config.EffectiveConfig {
	return config.EffectiveConfig{AllowDelete: config.AllowDeleteAll, CheckManuallyDeletedFiles: true}
}

// Scenario A: empty DB, empty store -> no downloads, no errors.
func TestReconcile_EmptyDBEmptyStore(t *testing.T) {
	t.Parallel()

	_, _, r := newHarness(config.AllowDeleteAll)

	store := model.NewDbStore()
	commands := []Command{{
		DB:     model.Database{DBID: "d1", Files: map[string]model.FileDescriptor{}, Folders: map[string]model.FolderDescriptor{}},
		Store:  &store,
		Config: effConfig(),
	}}

	report, err := r.Reconcile(context.Background(), commands)
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	if len(report.Installed) != 0 || len(store.Files) != 0 {
		t.Errorf("expected no-op, got report=%+v store=%+v", report, store)
	}
}

// Scenario B: DB declares file a (hash=H), store empty, disk empty -> file
// downloaded, store.files["a"]=desc.
func TestReconcile_NewFileIsDownloaded(t *testing.T) {
	t.Parallel()

	fake, dl, r := newHarness(config.AllowDeleteAll)
	dl.Contents["http://example.test/a"] = []byte("content-a")

	store := model.NewDbStore()
	commands := []Command{{
		DB: model.Database{
			DBID: "d1",
			Files: map[string]model.FileDescriptor{
				"games/a.rom": {URL: "http://example.test/a", Hash: downloader.IgnoreHash},
			},
			Folders: map[string]model.FolderDescriptor{"games": {}},
		},
		Store:  &store,
		Config: effConfig(),
	}}

	report, err := r.Reconcile(context.Background(), commands)
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	if len(report.Installed) != 1 || report.Installed[0] != "games/a.rom" {
		t.Errorf("Installed = %v, want [games/a.rom]", report.Installed)
	}

	if _, ok := store.Files["games/a.rom"]; !ok {
		t.Error("expected games/a.rom in store after download")
	}

	if !fake.IsFile("games/a.rom") {
		t.Error("expected games/a.rom to exist on disk")
	}
}

// Scenario D: two DBs both declare file a with different descriptors;
// first-writer-wins, only DB1's url is downloaded.
func TestReconcile_CrossDBFirstWriterWins(t *testing.T) {
	t.Parallel()

	_, dl, r := newHarness(config.AllowDeleteAll)
	dl.Contents["http://example.test/a1"] = []byte("a1")
	dl.Contents["http://example.test/a2"] = []byte("a2")

	store1 := model.NewDbStore()
	store2 := model.NewDbStore()

	commands := []Command{
		{
			DB: model.Database{
				DBID:    "d1",
				Files:   map[string]model.FileDescriptor{"shared/a": {URL: "http://example.test/a1", Hash: downloader.IgnoreHash}},
				Folders: map[string]model.FolderDescriptor{},
			},
			Store: &store1, Config: effConfig(),
		},
		{
			DB: model.Database{
				DBID:    "d2",
				Files:   map[string]model.FileDescriptor{"shared/a": {URL: "http://example.test/a2", Hash: downloader.IgnoreHash}},
				Folders: map[string]model.FolderDescriptor{},
			},
			Store: &store2, Config: effConfig(),
		},
	}

	if _, err := r.Reconcile(context.Background(), commands); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	if _, ok := store1.Files["shared/a"]; !ok {
		t.Error("expected DB1 to own shared/a")
	}

	if _, ok := store2.Files["shared/a"]; ok {
		t.Error("expected DB2 to NOT claim shared/a (first-writer-wins)")
	}

	for _, req := range dl.Requests {
		if req.URL == "http://example.test/a2" {
			t.Error("DB2's url should never have been requested")
		}
	}
}

// Scenario E: store has folders [a,b,c], DB now declares [a,x,y] -> b,c
// removed from disk iff empty and allow_delete==ALL; x,y created. Checks
// the store set and the folders on disk.
func TestReconcile_FolderReconciliation(t *testing.T) {
	t.Parallel()

	fake, _, r := newHarness(config.AllowDeleteAll)
	fake.MakeDirs("b")
	fake.MakeDirs("c")

	store := model.NewDbStore()
	store.Folders = map[string]model.FolderDescriptor{"a": {}, "b": {}, "c": {}}

	commands := []Command{{
		DB: model.Database{
			DBID:    "d1",
			Files:   map[string]model.FileDescriptor{},
			Folders: map[string]model.FolderDescriptor{"a": {}, "x": {}, "y": {}},
		},
		Store: &store, Config: effConfig(),
	}}

	if _, err := r.Reconcile(context.Background(), commands); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	for _, want := range []string{"a", "x", "y"} {
		if _, ok := store.Folders[want]; !ok {
			t.Errorf("expected folder %q in store.Folders", want)
		}
	}

	if _, ok := store.Folders["b"]; ok {
		t.Error("folder b should have been removed from the store")
	}

	for _, gone := range []string{"b", "c"} {
		if fake.IsFolder(gone) {
			t.Errorf("empty folder %q should have been removed from disk", gone)
		}
	}

	for _, created := range []string{"x", "y"} {
		if !fake.IsFolder(created) {
			t.Errorf("folder %q should have been created on disk", created)
		}
	}
}

// Invariant 5 / overwrite protection: a file with overwrite=false already
// present on disk is never modified.
func TestReconcile_OverwriteFalseProtectsExistingFile(t *testing.T) {
	t.Parallel()

	fake, dl, r := newHarness(config.AllowDeleteAll)
	fake.WriteFile("roms/a.rom", []byte("original"))
	dl.Contents["http://example.test/a"] = []byte("new-content")

	overwrite := false
	store := model.NewDbStore()
	commands := []Command{{
		DB: model.Database{
			DBID: "d1",
			Files: map[string]model.FileDescriptor{
				"roms/a.rom": {URL: "http://example.test/a", Hash: downloader.IgnoreHash, Overwrite: &overwrite},
			},
			Folders: map[string]model.FolderDescriptor{},
		},
		Store: &store, Config: effConfig(),
	}}

	report, err := r.Reconcile(context.Background(), commands)
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	got, _ := fake.ReadFileContents("roms/a.rom")
	if got != "original" {
		t.Errorf("content = %q, want unchanged %q", got, "original")
	}

	if len(report.IgnoredNewFiles) != 1 {
		t.Errorf("IgnoredNewFiles = %v, want one entry", report.IgnoredNewFiles)
	}

	if _, claimed := store.Files["roms/a.rom"]; claimed {
		t.Error("overwrite-protected file must not be claimed by the store")
	}
}

// Invariant 4: removing a file from a DB and re-running deletes it from
// disk iff allow_delete=ALL and no other DB claims it.
func TestReconcile_OrphanDeletedWhenNoLongerDeclared(t *testing.T) {
	t.Parallel()

	fake, _, r := newHarness(config.AllowDeleteAll)
	fake.WriteFile("roms/old.rom", []byte("x"))

	store := model.NewDbStore()
	hash, _ := fake.Hash("roms/old.rom")
	store.Files["roms/old.rom"] = model.FileDescriptor{Hash: hash}

	commands := []Command{{
		DB:     model.Database{DBID: "d1", Files: map[string]model.FileDescriptor{}, Folders: map[string]model.FolderDescriptor{}},
		Store:  &store,
		Config: effConfig(),
	}}

	report, err := r.Reconcile(context.Background(), commands)
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	if fake.IsFile("roms/old.rom") {
		t.Error("expected orphaned file to be deleted from disk")
	}

	if _, ok := store.Files["roms/old.rom"]; ok {
		t.Error("expected orphaned file to be removed from the store")
	}

	if len(report.Removed) != 1 {
		t.Errorf("Removed = %v, want one entry", report.Removed)
	}
}

// Scenario F: filter excludes a tag; its descriptor is parked in
// FilteredZipData and re-promoted once the filter is relaxed.
func TestReconcile_FilterParksAndRepromotesEntries(t *testing.T) {
	t.Parallel()

	_, dl, r := newHarness(config.AllowDeleteAll)
	dl.Contents["http://example.test/nes"] = []byte("nes-rom")

	db := model.Database{
		DBID: "cheats",
		Files: map[string]model.FileDescriptor{
			"cheats/nes.rom": {URL: "http://example.test/nes", Hash: downloader.IgnoreHash, Tags: []int{1}},
		},
		Folders:       map[string]model.FolderDescriptor{},
		TagDictionary: map[string]int{"nes": 1},
	}

	store := model.NewDbStore()
	cfg := effConfig()
	cfg.FilterExpression = "!nes"

	if _, err := r.Reconcile(context.Background(), []Command{{DB: db, Store: &store, Config: cfg}}); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	if _, claimed := store.Files["cheats/nes.rom"]; claimed {
		t.Error("filtered-out file should not be installed")
	}

	if _, parked := store.FilteredZipData[""].Files["cheats/nes.rom"]; !parked {
		t.Error("filtered-out file should be parked in FilteredZipData")
	}

	// Re-run with the filter relaxed: the entry should be re-promoted and installed.
	cfg.FilterExpression = ""

	if _, err := r.Reconcile(context.Background(), []Command{{DB: db, Store: &store, Config: cfg}}); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	if _, claimed := store.Files["cheats/nes.rom"]; !claimed {
		t.Error("expected nes.rom to be installed after relaxing the filter")
	}
}
