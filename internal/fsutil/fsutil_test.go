package fsutil

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/tonurics/downloader-mister/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFS(t *testing.T) (*FS, string) {
	t.Helper()

	dir := t.TempDir()

	return New(dir, dir, config.AllowDeleteAll, testLogger()), dir
}

func TestFS_Hash(t *testing.T) {
	t.Parallel()

	fs, dir := newTestFS(t)
	content := "hello world"

	if err := os.WriteFile(filepath.Join(dir, "test.txt"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	hash, err := fs.Hash("test.txt")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	sum := md5.Sum([]byte(content)) //nolint:gosec

	want := hex.EncodeToString(sum[:])
	if hash != want {
		t.Errorf("hash = %q, want %q", hash, want)
	}
}

func TestFS_Hash_NonexistentFile(t *testing.T) {
	t.Parallel()

	fs, _ := newTestFS(t)

	if _, err := fs.Hash("missing.txt"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestFS_ResolveAbsolutePath(t *testing.T) {
	t.Parallel()

	fs, _ := newTestFS(t)

	if got := fs.Resolve("/absolute/path"); got != "/absolute/path" {
		t.Errorf("Resolve(absolute) = %q, want unchanged", got)
	}
}

func TestFS_ResolveSystemPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sysDir := t.TempDir()
	fs := New(dir, sysDir, config.AllowDeleteAll, testLogger())

	fs.AddSystemPath("linux/uboot.img")

	got := fs.Resolve("linux/uboot.img")
	want := filepath.Join(sysDir, "linux/uboot.img")

	if got != want {
		t.Errorf("Resolve(system path) = %q, want %q", got, want)
	}

	// An unregistered path still resolves under the base path.
	got = fs.Resolve("games/roms.zip")
	want = filepath.Join(dir, "games/roms.zip")

	if got != want {
		t.Errorf("Resolve(base path) = %q, want %q", got, want)
	}
}

func TestFS_WriteReadFileContents(t *testing.T) {
	t.Parallel()

	fs, _ := newTestFS(t)

	if err := fs.WriteFileContents("nested/dir/file.txt", "content"); err != nil {
		t.Fatalf("WriteFileContents: %v", err)
	}

	got, err := fs.ReadFileContents("nested/dir/file.txt")
	if err != nil {
		t.Fatalf("ReadFileContents: %v", err)
	}

	if got != "content" {
		t.Errorf("ReadFileContents = %q, want %q", got, "content")
	}
}

func TestFS_Move(t *testing.T) {
	t.Parallel()

	fs, _ := newTestFS(t)

	if err := fs.WriteFileContents("source.txt", "payload"); err != nil {
		t.Fatal(err)
	}

	if err := fs.Move("source.txt", "nested/target.txt"); err != nil {
		t.Fatalf("Move: %v", err)
	}

	if fs.IsFile("source.txt") {
		t.Error("source.txt should no longer exist after Move")
	}

	got, err := fs.ReadFileContents("nested/target.txt")
	if err != nil || got != "payload" {
		t.Errorf("ReadFileContents(target) = %q, %v; want %q, nil", got, err, "payload")
	}
}

func TestFS_Unlink_GatedByAllowDelete(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fs := New(dir, dir, config.AllowDeleteNone, testLogger())

	if err := fs.WriteFileContents("keep.rbf", "x"); err != nil {
		t.Fatal(err)
	}

	fs.Unlink("keep.rbf")

	if !fs.IsFile("keep.rbf") {
		t.Error("Unlink with AllowDeleteNone should not remove the file")
	}
}

func TestFS_Unlink_OldRBFOnlyDeletesRBFFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	fs := New(dir, dir, config.AllowDeleteOldRBF, testLogger())

	if err := fs.WriteFileContents("core.rbf", "x"); err != nil {
		t.Fatal(err)
	}

	if err := fs.WriteFileContents("game.rom", "x"); err != nil {
		t.Fatal(err)
	}

	fs.Unlink("core.rbf")
	fs.Unlink("game.rom")

	if fs.IsFile("core.rbf") {
		t.Error("Unlink with AllowDeleteOldRBF should remove .rbf files")
	}

	if !fs.IsFile("game.rom") {
		t.Error("Unlink with AllowDeleteOldRBF should not remove non-.rbf files")
	}
}

func TestFS_DeletePrevious(t *testing.T) {
	t.Parallel()

	fs, _ := newTestFS(t)

	for _, name := range []string{"core_20230101.rbf", "core_20230601.rbf"} {
		if err := fs.WriteFileContents(name, "x"); err != nil {
			t.Fatal(err)
		}
	}

	if err := fs.WriteFileContents("core_20231201.rbf", "x"); err != nil {
		t.Fatal(err)
	}

	if err := fs.DeletePrevious("core_20231201.rbf"); err != nil {
		t.Fatalf("DeletePrevious: %v", err)
	}

	if fs.IsFile("core_20230101.rbf") || fs.IsFile("core_20230601.rbf") {
		t.Error("DeletePrevious should remove older dated siblings")
	}

	if !fs.IsFile("core_20231201.rbf") {
		t.Error("DeletePrevious should not remove the file itself")
	}
}

func TestFS_SaveJSONOnZipAndLoad(t *testing.T) {
	t.Parallel()

	fs, _ := newTestFS(t)

	type payload struct {
		Name string `json:"name"`
	}

	if err := fs.SaveJSONOnZip(payload{Name: "mister"}, "bundle.zip"); err != nil {
		t.Fatalf("SaveJSONOnZip: %v", err)
	}

	if !fs.IsFile("bundle.zip") {
		t.Fatal("expected bundle.zip to exist")
	}

	var got payload
	if err := fs.loadJSONDispatch("bundle.zip", &got); err != nil {
		t.Fatalf("loading bundle.zip: %v", err)
	}

	if got.Name != "mister" {
		t.Errorf("loaded name = %q, want %q", got.Name, "mister")
	}
}

func TestFake_SatisfiesFileSystem(t *testing.T) {
	t.Parallel()

	fake := NewFake(config.AllowDeleteAll)

	if err := fake.WriteFileContents("a.txt", "x"); err != nil {
		t.Fatal(err)
	}

	if !fake.IsFile("a.txt") {
		t.Error("expected a.txt to exist in fake fs")
	}

	hash, err := fake.Hash("a.txt")
	if err != nil || hash == "" {
		t.Errorf("Hash = %q, %v; want non-empty, nil", hash, err)
	}
}
