package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/tonurics/downloader-mister/internal/downloader"
	"github.com/tonurics/downloader-mister/internal/model"
	"github.com/tonurics/downloader-mister/internal/resume"
)

// fileAction is the decision for one path in the working set, per spec.md
// §4.3 step 5.
type fileAction int

const (
	actionNoop fileAction = iota
	actionDownload
	actionSkipProtected
)

// applyDatabase runs steps 5-7 and 10-11 for one already-planned database:
// decide per-file actions, issue downloads, materialize the store, and
// compute the reboot flag. Folder reconciliation (step 8) happens here
// too since it only concerns this DB's own folder set. Orphan deletion
// (step 9) is global and handled separately by reconcileOrphansGlobally.
func (r *Reconciler) applyDatabase(ctx context.Context, cmd Command, plan *dbPlan, report *Report) error {
	var requests []downloader.Request

	pathByURL := make(map[string]string, len(plan.workingFiles))

	for path, desc := range plan.workingFiles {
		switch r.decide(cmd, plan, path, desc) {
		case actionSkipProtected:
			report.IgnoredNewFiles = append(report.IgnoredNewFiles, path)

		case actionNoop:
			cmd.Store.Files[path] = desc

		case actionDownload:
			requests = append(requests, downloader.Request{
				URL:          desc.URL,
				Target:       r.fs.Resolve(path),
				ExpectedHash: desc.Hash,
				ExpectedSize: desc.Size,
			})
			pathByURL[desc.URL] = path
		}
	}

	r.markPending(ctx, requests)

	results := r.dl.Fetch(ctx, requests)

	var combined error

	for _, res := range results {
		path := pathByURL[res.Request.URL]
		desc := plan.workingFiles[path]

		r.clearPending(ctx, res.Request.URL)

		if res.Err != nil {
			report.FileErrors[path] = res.Err
			combined = appendErr(combined, fmt.Errorf("db %q: downloading %s: %w", cmd.DB.DBID, path, res.Err))

			// A previously-installed copy that fails to re-download is no
			// longer known-good (spec.md §4.3 step 7).
			delete(cmd.Store.Files, path)

			continue
		}

		r.materializeDownload(cmd, path, desc, report)
	}

	r.reconcileFolders(cmd, plan)
	r.computeRebootFlag(cmd, plan, report)

	return combined
}

func appendErr(combined, err error) error {
	if combined == nil {
		return err
	}

	return fmt.Errorf("%w; %w", combined, err)
}

// decide implements step 5's per-file decision tree.
func (r *Reconciler) decide(cmd Command, plan *dbPlan, path string, desc model.FileDescriptor) fileAction {
	stored, inStore := plan.oldFiles[path]
	onDisk := r.fs.IsFile(path)

	if inStore && onDisk {
		onDiskHash, err := r.fs.Hash(path)
		if err == nil && onDiskHash == stored.Hash {
			return actionNoop
		}

		if !cmd.Config.CheckManuallyDeletedFiles {
			// Open Question (a): keep the store entry without re-downloading
			// when the on-disk check is disabled (spec.md §9).
			return actionNoop
		}

		return actionDownload
	}

	if inStore && !onDisk {
		if !cmd.Config.CheckManuallyDeletedFiles {
			return actionNoop
		}

		return actionDownload
	}

	if !onDisk {
		return actionDownload
	}

	// On disk, never ours: overwrite-protection gates it.
	if !desc.OverwriteAllowed() || isOverwriteProtected(path) {
		return actionSkipProtected
	}

	return actionDownload
}

// materializeDownload implements step 7's success path and step 10's
// previous-version GC, plus the MiSTer-binary move-aside special case
// from step 11.
func (r *Reconciler) materializeDownload(cmd Command, path string, desc model.FileDescriptor, report *Report) {
	if isMisterBinary(path) && r.fs.IsFile(path) {
		if err := r.fs.Move(path, path+misterBinaryBackupSuffix); err != nil {
			r.logger.Warn("reconcile: moving previous MiSTer binary aside failed", "path", path, "error", err)
		}
	}

	cmd.Store.Files[path] = desc
	report.Installed = append(report.Installed, path)
	report.InstalledBytes += desc.Size

	if desc.WantsPreviousDeleted() {
		if err := r.fs.DeletePrevious(path); err != nil {
			r.logger.Warn("reconcile: delete_previous failed", "path", path, "error", err)
		}
	}
}

// reconcileFolders implements step 8: DbStore.Folders is replaced
// wholesale with the database's working folder set; folders that drop
// out are removed from disk when empty and allow_delete==ALL, and
// working folders missing on disk are created.
func (r *Reconciler) reconcileFolders(cmd Command, plan *dbPlan) {
	oldFolders := cmd.Store.Folders

	for path := range oldFolders {
		if _, stillLive := plan.workingFolders[path]; stillLive {
			continue
		}

		hasItems, err := r.fs.FolderHasItems(path)
		if err != nil || hasItems {
			continue
		}

		if err := r.fs.RemoveFolder(path); err != nil {
			r.logger.Warn("reconcile: removing empty folder failed", "path", path, "error", err)
		}
	}

	for path := range plan.workingFolders {
		if r.fs.IsFolder(path) {
			continue
		}

		if err := r.fs.MakeDirs(path); err != nil {
			r.logger.Warn("reconcile: creating folder failed", "path", path, "error", err)
		}
	}

	cmd.Store.Folders = plan.workingFolders
}

// computeRebootFlag implements step 11: a reboot is needed if any
// installed descriptor carries reboot=true or is the MiSTer main binary.
func (r *Reconciler) computeRebootFlag(cmd Command, plan *dbPlan, report *Report) {
	for path := range plan.workingFiles {
		desc, installed := cmd.Store.Files[path]
		if !installed {
			continue
		}

		if desc.Reboot || isMisterBinary(path) {
			report.NeedsReboot = true
		}
	}
}

// reconcileOrphansGlobally implements step 9: a file present in a
// database's old store but absent from every live database's file set
// this run is deleted from disk and removed from its store — but only if
// no database (including ones processed after it) re-claimed the same
// path this run.
func (r *Reconciler) reconcileOrphansGlobally(commands []Command, plans []*dbPlan, claimed map[string]string, report *Report) {
	for i, cmd := range commands {
		if i >= len(plans) {
			continue
		}

		plan := plans[i]

		for path := range plan.oldFiles {
			if _, stillClaimedAnywhere := claimed[path]; stillClaimedAnywhere {
				continue
			}

			if _, stillInThisStore := cmd.Store.Files[path]; !stillInThisStore {
				continue
			}

			if ok := r.fs.Unlink(path); !ok {
				r.logger.Warn("reconcile: unlinking orphan failed", "path", path)

				continue
			}

			delete(cmd.Store.Files, path)
			report.Removed = append(report.Removed, path)
		}
	}
}

// markPending records every about-to-be-dispatched download as in-flight,
// so a crash mid-run leaves a trail the next run's resume store can
// inspect. Best-effort: recording failures are logged, never fatal.
func (r *Reconciler) markPending(ctx context.Context, requests []downloader.Request) {
	if r.resume == nil {
		return
	}

	now := time.Now()

	for _, req := range requests {
		p := resume.Partial{
			URL:          req.URL,
			Target:       req.Target,
			ExpectedHash: req.ExpectedHash,
			ExpectedSize: req.ExpectedSize,
			StartedAt:    now,
			UpdatedAt:    now,
		}

		if err := r.resume.Upsert(ctx, p); err != nil {
			r.logger.Warn("reconcile: recording pending transfer failed", "url", req.URL, "error", err)
		}
	}
}

// clearPending removes a completed (successful or failed) transfer's
// resume-tracking record.
func (r *Reconciler) clearPending(ctx context.Context, url string) {
	if r.resume == nil {
		return
	}

	if err := r.resume.Delete(ctx, url); err != nil {
		r.logger.Warn("reconcile: clearing pending transfer failed", "url", url, "error", err)
	}
}
