// Package reconcile implements the OnlineImporter diff/reconcile engine
// (spec.md §4.3): the core of the tool. It is split the way the teacher's
// internal/sync package splits bidirectional sync into a pure decision
// engine and an I/O-performing executor — here, planDatabase and decide
// work out what to do per database, and applyDatabase (driven by
// Reconcile) performs the downloads and store mutation.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/tonurics/downloader-mister/internal/config"
	"github.com/tonurics/downloader-mister/internal/downloader"
	"github.com/tonurics/downloader-mister/internal/filter"
	"github.com/tonurics/downloader-mister/internal/fsutil"
	"github.com/tonurics/downloader-mister/internal/model"
	"github.com/tonurics/downloader-mister/internal/resume"
)

// misterBinaryPath is the install path of the MiSTer main binary — the
// one file whose overwrite requires moving the previous copy aside first
// (spec.md §4.3 step 11).
const misterBinaryPath = "MiSTer"

// misterBinaryBackupSuffix is appended to the moved-aside previous binary.
const misterBinaryBackupSuffix = ".old"

// overwriteProtectedSuffixes is the fixed, hardcoded list of "boot rom"
// class install paths that are never overwritten once present on disk,
// even without an explicit `overwrite:false` on their descriptor (spec.md
// §4.3 step 6). Matched case-insensitively by suffix.
var overwriteProtectedSuffixes = []string{
	"boot0.rom",
	"boot1.rom",
	"boot2.rom",
	"boot3.rom",
	"boot.rom",
	"boot.vhd",
}

// Command bundles one database's reconcile inputs, per spec.md §2's
// "ImporterCommand" triple.
type Command struct {
	DB     model.Database
	Store  *model.DbStore
	Config config.EffectiveConfig
}

// Report accumulates the outcome of one reconcile run across every
// Command processed, for end-of-run display (spec.md §7).
type Report struct {
	Installed          []string
	InstalledBytes     int64
	Removed            []string
	IgnoredNewFiles    []string
	UnknownFilterTerms map[string][]string
	FileErrors         map[string]error
	FailedDBs          []string
	NeedsReboot        bool
}

func newReport() *Report {
	return &Report{
		UnknownFilterTerms: make(map[string][]string),
		FileErrors:          make(map[string]error),
	}
}

// Reconciler drives the reconcile algorithm for a batch of commands.
type Reconciler struct {
	fs     fsutil.FileSystem
	dl     downloader.Downloader
	resume *resume.Store
	logger *slog.Logger
}

// New creates a Reconciler with no transfer-resume tracking.
func New(fs fsutil.FileSystem, dl downloader.Downloader, logger *slog.Logger) *Reconciler {
	return &Reconciler{fs: fs, dl: dl, logger: logger}
}

// NewWithResume creates a Reconciler that records in-flight downloads in
// resumeStore and clears each record once its transfer finishes, so an
// interrupted run leaves its unfinished transfers recorded there. Nothing
// in this package reads those records back on a later run.
func NewWithResume(fs fsutil.FileSystem, dl downloader.Downloader, resumeStore *resume.Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{fs: fs, dl: dl, resume: resumeStore, logger: logger}
}

// dbPlan is the per-database outcome of steps 1-6: the working file/folder
// sets after filter expansion, zip-summary merge, filtering, and cross-DB
// dedup, plus the bootstrapped error/reporting state for that DB.
type dbPlan struct {
	dbID          string
	oldFiles      map[string]model.FileDescriptor
	workingFiles  map[string]model.FileDescriptor
	workingFolders map[string]model.FolderDescriptor
	fatal         error
}

// Reconcile processes every command in order, per spec.md §4.3's 11-step
// algorithm, and returns an accumulated Report. DB processing order is
// stable and load-bearing for cross-DB first-writer-wins (spec.md §5).
func (r *Reconciler) Reconcile(ctx context.Context, commands []Command) (*Report, error) {
	report := newReport()
	claimed := make(map[string]string) // path -> owning db_id, this run

	plans := make([]*dbPlan, 0, len(commands))
	planned := make([]Command, 0, len(commands))

	for _, cmd := range commands {
		plan := r.planDatabase(cmd, claimed, report)
		if plan.fatal != nil {
			report.FailedDBs = append(report.FailedDBs, plan.dbID)
			r.logger.Warn("reconcile: db failed during planning", "db_id", plan.dbID, "error", plan.fatal)

			continue
		}

		plans = append(plans, plan)
		planned = append(planned, cmd)
	}

	var combined error

	for i, cmd := range planned {
		if err := r.applyDatabase(ctx, cmd, plans[i], report); err != nil {
			combined = multierr.Append(combined, err)
		}
	}

	r.reconcileOrphansGlobally(planned, plans, claimed, report)

	return report, combined
}

// planDatabase runs steps 1-4 for one database: filter compilation, zip
// summary merge, filtering, and cross-DB dedup against the run-global
// claimed set. The result is the working file/folder set step 5 will
// decide actions against.
func (r *Reconciler) planDatabase(cmd Command, claimed map[string]string, report *Report) *dbPlan {
	plan := &dbPlan{
		dbID:     cmd.DB.DBID,
		oldFiles: cloneFiles(cmd.Store.Files),
	}

	var compiledFilter *filter.Filter

	if cmd.Config.FilterExpression != "" {
		f, err := filter.Compile(cmd.Config.FilterExpression, cmd.DB.TagDictionary)
		if err != nil {
			plan.fatal = fmt.Errorf("db %q: %w", cmd.DB.DBID, err)

			return plan
		}

		compiledFilter = f

		if unknown := f.Unknown(); len(unknown) > 0 {
			report.UnknownFilterTerms[cmd.DB.DBID] = unknown
		}
	}

	workingFiles, workingFolders := r.mergeZipSummaries(cmd)

	plan.workingFiles, plan.workingFolders = r.applyFilter(cmd, compiledFilter, workingFiles, workingFolders)

	// Cross-DB dedup (step 4): a later DB's claim on a path already
	// claimed by an earlier DB this run is dropped and logged.
	for path := range plan.workingFiles {
		if owner, already := claimed[path]; already && owner != cmd.DB.DBID {
			r.logger.Info("reconcile: path already claimed by an earlier db this run, skipping",
				"path", path, "db_id", cmd.DB.DBID, "owner", owner)

			delete(plan.workingFiles, path)

			continue
		}

		claimed[path] = cmd.DB.DBID
	}

	return plan
}

// mergeZipSummaries implements step 2: for each zip in the DB, reuse the
// stored file/folder subset if the descriptor is unchanged, otherwise
// fetch and merge its summary_file.
func (r *Reconciler) mergeZipSummaries(cmd Command) (map[string]model.FileDescriptor, map[string]model.FolderDescriptor) {
	files := cloneFiles(cmd.DB.Files)
	folders := cloneFolders(cmd.DB.Folders)

	for zipID, zip := range cmd.DB.Zips {
		stored, unchanged := cmd.Store.Zips[zipID]
		if unchanged && sameZipDescriptor(stored, zip) {
			r.reuseStoredZipEntries(cmd, zipID, files, folders)

			continue
		}

		if err := r.fetchAndMergeZipSummary(zip, files, folders); err != nil {
			r.logger.Warn("reconcile: fetching zip summary failed, skipping zip", "zip_id", zipID, "error", err)

			continue
		}

		if cmd.Store.Zips == nil {
			cmd.Store.Zips = make(map[string]model.ZipDescriptor)
		}

		cmd.Store.Zips[zipID] = zip
	}

	return files, folders
}

func sameZipDescriptor(a, b model.ZipDescriptor) bool {
	return a.SummaryFile.Hash == b.SummaryFile.Hash && a.ContentsFile.Hash == b.ContentsFile.Hash
}

func (r *Reconciler) reuseStoredZipEntries(cmd Command, zipID string, files map[string]model.FileDescriptor, folders map[string]model.FolderDescriptor) {
	for path, desc := range cmd.Store.Files {
		if desc.ZipID == zipID {
			files[path] = desc
		}
	}

	for path, desc := range cmd.Store.Folders {
		if desc.ZipID == zipID {
			folders[path] = desc
		}
	}
}

func (r *Reconciler) fetchAndMergeZipSummary(zip model.ZipDescriptor, files map[string]model.FileDescriptor, folders map[string]model.FolderDescriptor) error {
	tempPath, cleanup, err := r.fs.TempFile()
	if err != nil {
		return fmt.Errorf("reserving temp file: %w", err)
	}
	defer cleanup()

	results := r.dl.Fetch(context.Background(), []downloader.Request{
		{URL: zip.SummaryFile.URL, Target: tempPath, ExpectedHash: zip.SummaryFile.Hash, ExpectedSize: zip.SummaryFile.Size},
	})

	if len(results) != 1 || results[0].Err != nil {
		return fmt.Errorf("downloading zip summary: %w", firstErr(results))
	}

	summary, err := r.fs.LoadZipSummary(tempPath)
	if err != nil {
		return fmt.Errorf("parsing zip summary: %w", err)
	}

	for path, desc := range summary.Files {
		files[path] = desc
	}

	for path, desc := range summary.Folders {
		folders[path] = desc
	}

	return nil
}

func firstErr(results []downloader.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no result")
	}

	return results[0].Err
}

// applyFilter implements step 3: entries the filter excludes move into
// DbStore.FilteredZipData (keyed by the entry's zip_id, or "" for
// unzipped entries) so they survive the run without being installed or
// forgotten; entries no longer filtered move back into the working set.
func (r *Reconciler) applyFilter(cmd Command, f *filter.Filter, files map[string]model.FileDescriptor, folders map[string]model.FolderDescriptor) (map[string]model.FileDescriptor, map[string]model.FolderDescriptor) {
	if cmd.Store.FilteredZipData == nil {
		cmd.Store.FilteredZipData = make(map[string]model.FilteredZipData)
	}

	// Re-promote previously filtered-out entries that now pass (or there
	// is no filter at all).
	for zipID, filtered := range cmd.Store.FilteredZipData {
		for path, desc := range filtered.Files {
			if f == nil || f.Matches(desc.Tags) {
				files[path] = desc
				delete(filtered.Files, path)
			}
		}

		for path, desc := range filtered.Folders {
			if f == nil || f.Matches(desc.Tags) {
				folders[path] = desc
				delete(filtered.Folders, path)
			}
		}

		cmd.Store.FilteredZipData[zipID] = filtered
	}

	if f == nil {
		return files, folders
	}

	for path, desc := range files {
		if f.Matches(desc.Tags) {
			continue
		}

		r.stashFiltered(cmd, desc.ZipID, path, desc)
		delete(files, path)
	}

	for path, desc := range folders {
		if f.Matches(desc.Tags) {
			continue
		}

		r.stashFilteredFolder(cmd, desc.ZipID, path, desc)
		delete(folders, path)
	}

	return files, folders
}

func (r *Reconciler) stashFiltered(cmd Command, zipID, path string, desc model.FileDescriptor) {
	bucket := cmd.Store.FilteredZipData[zipID]
	if bucket.Files == nil {
		bucket.Files = make(map[string]model.FileDescriptor)
	}

	bucket.Files[path] = desc
	cmd.Store.FilteredZipData[zipID] = bucket
}

func (r *Reconciler) stashFilteredFolder(cmd Command, zipID, path string, desc model.FolderDescriptor) {
	bucket := cmd.Store.FilteredZipData[zipID]
	if bucket.Folders == nil {
		bucket.Folders = make(map[string]model.FolderDescriptor)
	}

	bucket.Folders[path] = desc
	cmd.Store.FilteredZipData[zipID] = bucket
}

func cloneFiles(m map[string]model.FileDescriptor) map[string]model.FileDescriptor {
	out := make(map[string]model.FileDescriptor, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

func cloneFolders(m map[string]model.FolderDescriptor) map[string]model.FolderDescriptor {
	out := make(map[string]model.FolderDescriptor, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

func isOverwriteProtected(path string) bool {
	lower := strings.ToLower(filepath.Base(path))
	for _, suffix := range overwriteProtectedSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}

	return false
}

func isMisterBinary(path string) bool {
	return filepath.Base(path) == misterBinaryPath
}
