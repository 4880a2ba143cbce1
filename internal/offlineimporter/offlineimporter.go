// Package offlineimporter ingests locally pre-seeded database files into
// the store, without network downloads — spec.md §4.4.
package offlineimporter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonurics/downloader-mister/internal/downloader"
	"github.com/tonurics/downloader-mister/internal/fsutil"
	"github.com/tonurics/downloader-mister/internal/model"
)

// Importer ingests pre-seed DB files declared in a Database's DBFiles
// list.
type Importer struct {
	fs     fsutil.FileSystem
	dl     downloader.Downloader
	logger *slog.Logger
}

// New creates an Importer.
func New(fs fsutil.FileSystem, dl downloader.Downloader, logger *slog.Logger) *Importer {
	return &Importer{fs: fs, dl: dl, logger: logger}
}

// Import processes every pre-seed path in db.DBFiles against dbStore, per
// spec.md §4.4's algorithm. dbStore is mutated in place.
func (im *Importer) Import(ctx context.Context, db model.Database, dbStore *model.DbStore) {
	for _, path := range db.DBFiles {
		im.importOne(ctx, path, dbStore)
	}
}

func (im *Importer) importOne(ctx context.Context, path string, dbStore *model.DbStore) {
	if !im.fs.IsFile(path) {
		return
	}

	hash, err := im.fs.Hash(path)
	if err != nil {
		im.logger.Warn("offlineimporter: hashing pre-seed file failed", "path", path, "error", err)

		return
	}

	if alreadyImported(dbStore, hash) {
		im.fs.Unlink(path)

		return
	}

	preSeedDB, err := im.fs.LoadDatabase(path)
	if err != nil {
		im.logger.Warn("offlineimporter: parsing pre-seed file failed, skipping", "path", path, "error", err)

		return
	}

	if dbStore.Folders == nil {
		dbStore.Folders = make(map[string]model.FolderDescriptor)
	}

	if dbStore.Files == nil {
		dbStore.Files = make(map[string]model.FileDescriptor)
	}

	im.mergeFolders(preSeedDB.Folders, dbStore)
	im.mergeFiles(preSeedDB.Files, dbStore)

	if !im.mergeZips(ctx, preSeedDB, dbStore) {
		// A zip summary failed to fetch/parse: leave the pre-seed file in
		// place for retry next run, per spec.md §4.4's "on any error".
		return
	}

	dbStore.OfflineDatabasesImported = append(dbStore.OfflineDatabasesImported, hash)
	im.fs.Unlink(path)
}

func alreadyImported(dbStore *model.DbStore, hash string) bool {
	for _, h := range dbStore.OfflineDatabasesImported {
		if h == hash {
			return true
		}
	}

	return false
}

// mergeFolders adds folders that already exist on disk and aren't
// already tracked in the store (spec.md §4.4).
func (im *Importer) mergeFolders(folders map[string]model.FolderDescriptor, dbStore *model.DbStore) {
	for path, desc := range folders {
		if _, already := dbStore.Folders[path]; already {
			continue
		}

		if !im.fs.IsFolder(path) {
			continue
		}

		dbStore.Folders[path] = desc
	}
}

// mergeFiles adds files that already exist on disk with a matching hash
// (or hash=="ignore") and aren't already tracked in the store.
func (im *Importer) mergeFiles(files map[string]model.FileDescriptor, dbStore *model.DbStore) {
	for path, desc := range files {
		if _, already := dbStore.Files[path]; already {
			continue
		}

		if !im.fs.IsFile(path) {
			continue
		}

		if desc.Hash != model.IgnoreHash {
			onDiskHash, err := im.fs.Hash(path)
			if err != nil || onDiskHash != desc.Hash {
				continue
			}
		}

		dbStore.Files[path] = desc
	}
}

// mergeZips downloads and merges every zip summary the pre-seed DB
// declares, in the same manner as mergeFolders/mergeFiles. Returns false
// if any zip summary could not be fetched or parsed.
func (im *Importer) mergeZips(ctx context.Context, db model.Database, dbStore *model.DbStore) bool {
	for zipID, zip := range db.Zips {
		if !im.fetchAndMergeZipSummary(ctx, zipID, zip, dbStore) {
			return false
		}
	}

	return true
}

func (im *Importer) fetchAndMergeZipSummary(ctx context.Context, zipID string, zip model.ZipDescriptor, dbStore *model.DbStore) bool {
	tempPath, cleanup, err := im.fs.TempFile()
	if err != nil {
		im.logger.Warn("offlineimporter: reserving temp file failed", "zip_id", zipID, "error", err)

		return false
	}
	defer cleanup()

	results := im.dl.Fetch(ctx, []downloader.Request{
		{URL: zip.SummaryFile.URL, Target: tempPath, ExpectedHash: zip.SummaryFile.Hash, ExpectedSize: zip.SummaryFile.Size},
	})

	if len(results) != 1 || results[0].Err != nil {
		im.logger.Warn("offlineimporter: fetching zip summary failed", "zip_id", zipID, "error", errFrom(results))

		return false
	}

	summary, err := im.fs.LoadZipSummary(tempPath)
	if err != nil {
		im.logger.Warn("offlineimporter: parsing zip summary failed", "zip_id", zipID, "error", err)

		return false
	}

	im.mergeFolders(summary.Folders, dbStore)
	im.mergeFiles(summary.Files, dbStore)

	if dbStore.Zips == nil {
		dbStore.Zips = make(map[string]model.ZipDescriptor)
	}

	dbStore.Zips[zipID] = zip

	return true
}

func errFrom(results []downloader.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no result")
	}

	return results[0].Err
}
