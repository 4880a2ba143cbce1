package fsutil

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tonurics/downloader-mister/internal/config"
	"github.com/tonurics/downloader-mister/internal/model"
)

// Fake is an in-memory FileSystem, for tests that exercise reconciliation
// logic without touching disk — mirrors the teacher's fake-collaborator
// test pattern (in-memory stand-ins injected behind the same interface as
// the production type).
type Fake struct {
	mu sync.Mutex

	allowDelete config.AllowDelete
	systemPaths map[string]bool
	files       map[string][]byte
	dirs        map[string]bool
	databases   map[string]model.Database
	zipSummaries map[string]model.ZipSummary
	tempCounter int
}

// NewFake returns an empty in-memory filesystem.
func NewFake(allowDelete config.AllowDelete) *Fake {
	return &Fake{
		allowDelete:  allowDelete,
		systemPaths:  make(map[string]bool),
		files:        make(map[string][]byte),
		dirs:         make(map[string]bool),
		databases:    make(map[string]model.Database),
		zipSummaries: make(map[string]model.ZipSummary),
	}
}

// AddDatabase preloads a Database so LoadDatabase(path) can return it
// without a corresponding file write.
func (f *Fake) AddDatabase(path string, db model.Database) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.databases[path] = db
}

// AddZipSummary preloads a ZipSummary analogous to AddDatabase.
func (f *Fake) AddZipSummary(path string, summary model.ZipSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.zipSummaries[path] = summary
}

// WriteFile seeds a fake file's contents directly, bypassing WriteFileContents.
func (f *Fake) WriteFile(path string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[path] = content
}

func (f *Fake) AddSystemPath(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.systemPaths[path] = true
}

func (f *Fake) Resolve(path string) string { return path }

func (f *Fake) IsFile(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, ok := f.files[path]

	return ok
}

func (f *Fake) IsFolder(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.dirs[path]
}

func (f *Fake) ReadFileContents(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.files[path]
	if !ok {
		return "", fmt.Errorf("fake fs: %s not found", path)
	}

	return string(data), nil
}

func (f *Fake) WriteFileContents(path, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[path] = []byte(content)

	return nil
}

func (f *Fake) Touch(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.files[path]; !ok {
		f.files[path] = nil
	}

	return nil
}

func (f *Fake) Move(source, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.files[source]
	if !ok {
		return fmt.Errorf("fake fs: move: %s not found", source)
	}

	f.files[target] = data
	delete(f.files, source)

	return nil
}

func (f *Fake) Copy(source, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.files[source]
	if !ok {
		return fmt.Errorf("fake fs: copy: %s not found", source)
	}

	f.files[target] = data

	return nil
}

func (f *Fake) Hash(path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.files[path]
	if !ok {
		return "", fmt.Errorf("fake fs: hash: %s not found", path)
	}

	sum := md5.Sum(data) //nolint:gosec

	return hex.EncodeToString(sum[:]), nil
}

func (f *Fake) MakeDirs(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dirs[path] = true

	return nil
}

func (f *Fake) FolderHasItems(path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for p := range f.files {
		if len(p) > len(path) && p[:len(path)] == path {
			return true, nil
		}
	}

	return false, nil
}

func (f *Fake) RemoveFolder(path string) error {
	if f.allowDelete != config.AllowDeleteAll {
		return nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.dirs, path)

	return nil
}

func (f *Fake) Unlink(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.allowDelete == config.AllowDeleteNone {
		return true
	}

	delete(f.files, path)

	return true
}

func (f *Fake) DeletePrevious(path string) error { return nil }

func (f *Fake) LoadDatabase(path string) (model.Database, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	db, ok := f.databases[path]
	if !ok {
		return model.Database{}, fmt.Errorf("fake fs: database %s not found", path)
	}

	return db, nil
}

func (f *Fake) LoadZipSummary(path string) (model.ZipSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	summary, ok := f.zipSummaries[path]
	if !ok {
		return model.ZipSummary{}, fmt.Errorf("fake fs: zip summary %s not found", path)
	}

	return summary, nil
}

func (f *Fake) SaveJSONOnZip(v any, path string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("fake fs: encoding %s: %w", path, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.files[path] = data

	return nil
}

func (f *Fake) UnzipContents(file, destPath string) error { return nil }

func (f *Fake) TempFile() (string, func(), error) {
	f.mu.Lock()
	f.tempCounter++
	name := fmt.Sprintf("/tmp/fake_%d", f.tempCounter)
	f.files[name] = nil
	f.mu.Unlock()

	return name, func() {
		f.mu.Lock()
		delete(f.files, name)
		f.mu.Unlock()
	}, nil
}

func (f *Fake) UniqueTempFilename() (string, func()) {
	f.mu.Lock()
	f.tempCounter++
	name := fmt.Sprintf("/tmp/fake_unique_%d", f.tempCounter)
	f.mu.Unlock()

	return name, func() {}
}

var _ FileSystem = (*Fake)(nil)
var _ FileSystem = (*FS)(nil)
