// Package fsutil abstracts all filesystem access behind an injectable
// interface (spec.md §4.1, §9 "dependency injection... preserve this
// seam"). Hashing and the atomic-move idiom are grounded on the teacher's
// internal/driveops/hash.go (streaming io.Copy hashing) and
// internal/config/write.go (temp-file-then-rename atomic writes).
package fsutil

import (
	"crypto/md5" //nolint:gosec // spec mandates MD5 content hashes, not a security boundary
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	gosync "sync"

	"github.com/tonurics/downloader-mister/internal/config"
	"github.com/tonurics/downloader-mister/internal/model"
)

// hashChunkSize is the streaming read buffer size for Hash, per spec.md §4.1.
const hashChunkSize = 8192

// FileSystem is the capability set every component that touches disk is
// built against. A production implementation (FS) and an in-memory fake
// (Fake, fake.go) both satisfy it — spec.md §9's
// "{production, in-memory-fake}" design note.
type FileSystem interface {
	Resolve(path string) string
	AddSystemPath(path string)

	IsFile(path string) bool
	IsFolder(path string) bool
	ReadFileContents(path string) (string, error)
	WriteFileContents(path, content string) error
	Touch(path string) error
	Move(source, target string) error
	Copy(source, target string) error
	Hash(path string) (string, error)
	MakeDirs(path string) error
	FolderHasItems(path string) (bool, error)
	RemoveFolder(path string) error
	Unlink(path string) bool
	DeletePrevious(path string) error

	LoadDatabase(path string) (model.Database, error)
	LoadZipSummary(path string) (model.ZipSummary, error)
	SaveJSONOnZip(v any, path string) error
	UnzipContents(file, destPath string) error

	TempFile() (string, func(), error)
	UniqueTempFilename() (string, func())
}

// FS is the production FileSystem, rooted under a configurable base path.
type FS struct {
	basePath       string
	baseSystemPath string
	allowDelete    config.AllowDelete
	logger         *slog.Logger

	mu          gosync.Mutex
	systemPaths map[string]bool
	tempNames   map[string]bool
}

// New creates a production FS.
func New(basePath, baseSystemPath string, allowDelete config.AllowDelete, logger *slog.Logger) *FS {
	return &FS{
		basePath:       basePath,
		baseSystemPath: baseSystemPath,
		allowDelete:    allowDelete,
		logger:         logger,
		systemPaths:    make(map[string]bool),
		tempNames:      make(map[string]bool),
	}
}

// AddSystemPath registers path to resolve under base_system_path instead
// of base_path (spec.md §4.1).
func (fs *FS) AddSystemPath(path string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.systemPaths[path] = true
}

// Resolve returns the absolute filesystem path for a possibly-relative
// install path, per spec.md §4.1's path resolution rule.
func (fs *FS) Resolve(path string) string {
	if isAbsolutePath(path) {
		return path
	}

	fs.mu.Lock()
	useSystem := fs.systemPaths[path]
	fs.mu.Unlock()

	base := fs.basePath
	if useSystem {
		base = fs.baseSystemPath
	}

	return filepath.Join(base, path)
}

// isAbsolutePath recognizes POSIX absolute paths and Windows drive letters,
// matching the original tool's `_path` dispatch.
func isAbsolutePath(path string) bool {
	if strings.HasPrefix(path, "/") {
		return true
	}

	if runtime.GOOS == "windows" && len(path) >= 3 && path[1] == ':' && (path[2] == '\\' || path[2] == '/') {
		return true
	}

	return false
}

func (fs *FS) IsFile(path string) bool {
	info, err := os.Stat(fs.Resolve(path))
	return err == nil && !info.IsDir()
}

func (fs *FS) IsFolder(path string) bool {
	info, err := os.Stat(fs.Resolve(path))
	return err == nil && info.IsDir()
}

func (fs *FS) ReadFileContents(path string) (string, error) {
	data, err := os.ReadFile(fs.Resolve(path))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}

	return string(data), nil
}

func (fs *FS) WriteFileContents(path, content string) error {
	resolved := fs.Resolve(path)
	if err := fs.MakeDirs(filepath.Dir(path)); err != nil {
		return err
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil { //nolint:mnd // standard rw-r--r--
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}

func (fs *FS) Touch(path string) error {
	resolved := fs.Resolve(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("touch %s: creating parent dir: %w", path, err)
	}

	f, err := os.OpenFile(resolved, os.O_CREATE|os.O_WRONLY, 0o644) //nolint:mnd
	if err != nil {
		return fmt.Errorf("touch %s: %w", path, err)
	}

	return f.Close()
}

// Move renames source to target atomically, creating target's parent
// directory first (spec.md §4.1).
func (fs *FS) Move(source, target string) error {
	resolvedTarget := fs.Resolve(target)
	if err := os.MkdirAll(filepath.Dir(resolvedTarget), 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("move: creating parent dir for %s: %w", target, err)
	}

	if err := os.Rename(fs.Resolve(source), resolvedTarget); err != nil {
		return fmt.Errorf("move %s -> %s: %w", source, target, err)
	}

	return nil
}

func (fs *FS) Copy(source, target string) error {
	resolvedTarget := fs.Resolve(target)
	if err := os.MkdirAll(filepath.Dir(resolvedTarget), 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("copy: creating parent dir for %s: %w", target, err)
	}

	src, err := os.Open(fs.Resolve(source))
	if err != nil {
		return fmt.Errorf("copy %s: %w", source, err)
	}
	defer src.Close()

	dst, err := os.Create(resolvedTarget)
	if err != nil {
		return fmt.Errorf("copy -> %s: %w", target, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", source, target, err)
	}

	return nil
}

// Hash computes the lowercase-hex MD5 digest of path, streaming in 8 KiB
// chunks (spec.md §4.1).
func (fs *FS) Hash(path string) (string, error) {
	f, err := os.Open(fs.Resolve(path))
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()

	h := md5.New() //nolint:gosec
	buf := make([]byte, hashChunkSize)

	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func (fs *FS) MakeDirs(path string) error {
	if err := os.MkdirAll(fs.Resolve(path), 0o755); err != nil { //nolint:mnd
		return fmt.Errorf("make_dirs %s: %w", path, err)
	}

	return nil
}

func (fs *FS) FolderHasItems(path string) (bool, error) {
	entries, err := os.ReadDir(fs.Resolve(path))
	if err != nil {
		return false, fmt.Errorf("folder_has_items %s: %w", path, err)
	}

	return len(entries) > 0, nil
}

// RemoveFolder removes an empty folder, gated by the allow_delete policy
// (spec.md §4.1 deletion policy: only ALL permits folder removal).
func (fs *FS) RemoveFolder(path string) error {
	if fs.allowDelete != config.AllowDeleteAll {
		return nil
	}

	fs.logger.Debug("deleting empty folder", "path", path)

	if err := os.Remove(fs.Resolve(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove_folder %s: %w", path, err)
	}

	return nil
}

// Unlink removes a file, gated by the allow_delete policy: ALL permits any
// deletion, OLD_RBF only .rbf files, NONE suppresses all deletion (spec.md
// §4.1). Returns false only when the removal itself fails; a deletion the
// policy suppresses, or a file that is already gone, reports true.
func (fs *FS) Unlink(path string) bool {
	switch fs.allowDelete {
	case config.AllowDeleteAll:
	case config.AllowDeleteOldRBF:
		if !strings.EqualFold(filepath.Ext(path), ".rbf") {
			return true
		}
	case config.AllowDeleteNone:
		return true
	default:
		return true
	}

	err := os.Remove(fs.Resolve(path))

	return err == nil || os.IsNotExist(err)
}

// deletePreviousPattern matches `PREFIX_YYYYMMDD.EXT` siblings, case
// insensitively, per spec.md §4.1.
var deletePreviousPattern = regexp.MustCompile(`^(.+_)[0-9]{8}([.][a-zA-Z0-9]+)$`)

// DeletePrevious garbage-collects the other dated variants of file's
// basename under its parent directory, keeping the file itself (spec.md
// §4.1, invariant 7 in §8).
func (fs *FS) DeletePrevious(path string) error {
	if fs.allowDelete != config.AllowDeleteAll {
		return nil
	}

	resolved := fs.Resolve(path)
	parent := filepath.Dir(resolved)
	base := filepath.Base(resolved)

	m := deletePreviousPattern.FindStringSubmatch(strings.ToLower(base))
	if m == nil {
		return nil
	}

	prefix, ext := m[1], m[2]

	entries, err := os.ReadDir(parent)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("delete_previous %s: %w", path, err)
	}

	for _, entry := range entries {
		name := strings.ToLower(entry.Name())
		if name == strings.ToLower(base) {
			continue
		}

		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
			continue
		}

		if !deletePreviousPattern.MatchString(name) {
			continue
		}

		if err := os.Remove(filepath.Join(parent, entry.Name())); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete_previous removing %s: %w", entry.Name(), err)
		}
	}

	return nil
}

// LoadDatabase loads a manifest, dispatching on file extension: `.json`
// reads directly, `.zip` reads the single JSON entry inside (spec.md §4.1).
func (fs *FS) LoadDatabase(path string) (model.Database, error) {
	var db model.Database

	if err := fs.loadJSONDispatch(path, &db); err != nil {
		return model.Database{}, err
	}

	return db, nil
}

// LoadZipSummary loads a zip summary document the same way as LoadDatabase.
func (fs *FS) LoadZipSummary(path string) (model.ZipSummary, error) {
	var summary model.ZipSummary

	if err := fs.loadJSONDispatch(path, &summary); err != nil {
		return model.ZipSummary{}, err
	}

	return summary, nil
}

func (fs *FS) loadJSONDispatch(path string, v any) error {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".json":
		return fs.loadJSONFile(path, v)
	case ".zip":
		return fs.loadJSONFromZip(path, v)
	default:
		return fmt.Errorf("file type %q not supported", ext)
	}
}

func (fs *FS) loadJSONFile(path string, v any) error {
	data, err := os.ReadFile(fs.Resolve(path))
	if err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

// SaveJSONOnZip writes v as JSON, wraps it in a zip archive at path.
func (fs *FS) SaveJSONOnZip(v any, path string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("save_json_on_zip: encoding: %w", err)
	}

	return writeZipEntry(fs.Resolve(path), entryNameForZip(path), data)
}

func entryNameForZip(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".json"
}

// TempFile reserves and creates a process-scoped temp file. The returned
// cleanup releases the name reservation and removes the file.
func (fs *FS) TempFile() (string, func(), error) {
	f, err := os.CreateTemp("", "temp_file_*")
	if err != nil {
		return "", nil, fmt.Errorf("temp_file: %w", err)
	}

	name := f.Name()
	f.Close()

	fs.mu.Lock()
	fs.tempNames[name] = true
	fs.mu.Unlock()

	cleanup := func() {
		fs.mu.Lock()
		delete(fs.tempNames, name)
		fs.mu.Unlock()

		os.Remove(name)
	}

	return name, cleanup, nil
}

// UniqueTempFilename reserves a not-yet-used temp filename without
// creating the file, matching the original's `unique_temp_filename`
// (spec.md §4.1). The returned function releases the reservation.
func (fs *FS) UniqueTempFilename() (string, func()) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var name string

	for {
		candidate := filepath.Join(os.TempDir(), fmt.Sprintf("dl_%d_%d", os.Getpid(), len(fs.tempNames)+tempNameSalt()))
		if !fs.tempNames[candidate] {
			name = candidate
			break
		}
	}

	fs.tempNames[name] = true

	return name, func() {
		fs.mu.Lock()
		delete(fs.tempNames, name)
		fs.mu.Unlock()
	}
}
