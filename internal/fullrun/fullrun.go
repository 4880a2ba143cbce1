// Package fullrun orchestrates one end-to-end reconcile cycle: load
// config and store, fetch every configured database, run the offline and
// online importers, persist the store, optionally update Linux, and
// compute the process exit code — spec.md §2, grounded on
// original_source/full_run_service.py's FullRunService.full_run.
package fullrun

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/tonurics/downloader-mister/internal/config"
	"github.com/tonurics/downloader-mister/internal/dbgateway"
	"github.com/tonurics/downloader-mister/internal/fsutil"
	"github.com/tonurics/downloader-mister/internal/linuxupdater"
	"github.com/tonurics/downloader-mister/internal/model"
	"github.com/tonurics/downloader-mister/internal/offlineimporter"
	"github.com/tonurics/downloader-mister/internal/reboot"
	"github.com/tonurics/downloader-mister/internal/reconcile"
	"github.com/tonurics/downloader-mister/internal/store"
)

// Service ties every component together for one full run.
type Service struct {
	Config    *config.Config
	Env       config.EnvOverrides
	StorePath string

	FS              fsutil.FileSystem
	Gateway         dbgateway.DBGateway
	OfflineImporter *offlineimporter.Importer
	Reconciler      *reconcile.Reconciler
	Migrator        *store.Migrator
	LinuxUpdater    linuxupdater.LinuxUpdater

	Logger *slog.Logger
}

// Result reports the outcome of one full run, for both exit-code
// computation and CLI display.
type Result struct {
	RunID       string
	Report      *reconcile.Report
	FailedDBs   []string
	LinuxResult linuxupdater.Result
	NeedsReboot bool
	Duration    time.Duration
	ExitCode    int
}

// Run executes one full cycle and returns a Result plus the process exit
// code it implies (spec.md §7: FAIL_ON_FILE_ERROR and any failed_dbs both
// force exit code 1).
func (s *Service) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	runID := uuid.New().String()

	s.Logger.Info("starting run", "run_id", runID)

	doc, err := store.Load(s.StorePath)
	if err != nil {
		return nil, fmt.Errorf("fullrun: loading store: %w", err)
	}

	if err := s.Migrator.Migrate(doc); err != nil {
		return nil, fmt.Errorf("fullrun: migrating store: %w", err)
	}

	databases, failedDBs, gatewayErr := s.Gateway.FetchAll(ctx, s.Config.Databases)
	if gatewayErr != nil {
		s.Logger.Warn("fullrun: one or more databases failed to fetch", "error", gatewayErr)
	}

	linuxOnly := s.Env.LinuxOnly()

	report := reconcile.Report{}

	if !linuxOnly {
		for _, db := range databases {
			dbStore := doc.DbStoreFor(db.DBID)
			s.OfflineImporter.Import(ctx, db, &dbStore)
			doc.DBs[db.DBID] = dbStore
		}

		commands := s.buildCommands(databases, doc)

		runReport, reconcileErr := s.Reconciler.Reconcile(ctx, commands)
		if reconcileErr != nil {
			s.Logger.Warn("fullrun: reconcile finished with errors", "error", reconcileErr)
		}

		if runReport != nil {
			report = *runReport
		}

		for _, cmd := range commands {
			doc.DBs[cmd.DB.DBID] = *cmd.Store
		}
	}

	if err := store.Save(s.StorePath, doc); err != nil {
		return nil, fmt.Errorf("fullrun: saving store: %w", err)
	}

	result := &Result{RunID: runID, Report: &report, FailedDBs: failedDBs}

	if s.Env.ShouldUpdateLinux(s.Config) {
		linuxResult, linuxErr := s.LinuxUpdater.Run(ctx, databases)
		if linuxErr != nil {
			s.Logger.Warn("fullrun: linux update failed", "error", linuxErr)
		}

		result.LinuxResult = linuxResult

		if linuxOnly && !linuxResult.Updated {
			s.Logger.Info("linux is already on the latest version")
		}
	} else if linuxOnly {
		s.Logger.Info("update_linux is set to false, skipping")
	}

	needsReboot, rebootErr := reboot.Calculate(s.FS, s.Config.AllowReboot, result.LinuxResult.NeedsReboot, report.NeedsReboot)
	if rebootErr != nil {
		return nil, fmt.Errorf("fullrun: computing reboot status: %w", rebootErr)
	}

	result.NeedsReboot = needsReboot
	result.Duration = time.Since(start)
	result.ExitCode = s.exitCode(report, failedDBs)

	return result, nil
}

// buildCommands resolves each database's EffectiveConfig and pairs it
// with a pointer into doc's per-db store, mirroring full_run_service.py's
// ImporterCommand construction.
func (s *Service) buildCommands(databases []model.Database, doc *model.StoreDoc) []reconcile.Command {
	commands := make([]reconcile.Command, 0, len(databases))

	for _, db := range databases {
		desc, ok := s.Config.Databases[db.DBID]
		if !ok {
			desc = config.Description{Section: db.DBID}
		}

		dbStore := doc.DbStoreFor(db.DBID)

		commands = append(commands, reconcile.Command{
			DB:     db,
			Store:  &dbStore,
			Config: desc.Resolve(s.Config),
		})
	}

	return commands
}

// Summary renders a human-readable end-of-run report, mirroring
// full_run_service.py's _display_summary.
func (r *Result) Summary(runTime time.Duration) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Run %s finished in %s\n", r.RunID, runTime.Round(time.Second))

	if r.Report.InstalledBytes > 0 {
		fmt.Fprintf(&b, "Downloaded: %s\n", humanize.Bytes(uint64(r.Report.InstalledBytes)))
	}

	if len(r.Report.UnknownFilterTerms) > 0 {
		b.WriteString("\nUnknown filter terms:\n")

		for dbID, terms := range r.Report.UnknownFilterTerms {
			fmt.Fprintf(&b, " - %s: %s\n", dbID, formatFiles(terms))
		}
	}

	b.WriteString("\nInstalled:\n")
	b.WriteString(formatFiles(r.Report.Installed))

	b.WriteString("\nRemoved:\n")
	b.WriteString(formatFiles(r.Report.Removed))

	if len(r.Report.FileErrors) > 0 || len(r.FailedDBs) > 0 {
		errs := make([]string, 0, len(r.Report.FileErrors)+len(r.FailedDBs))
		for path := range r.Report.FileErrors {
			errs = append(errs, path)
		}

		errs = append(errs, r.FailedDBs...)

		b.WriteString("\nErrors:\n")
		b.WriteString(formatFiles(errs))
	}

	if len(r.Report.IgnoredNewFiles) > 0 {
		b.WriteString("\nNot installed due to overwrite protection:\n")
		b.WriteString(formatFiles(r.Report.IgnoredNewFiles))
		b.WriteString(" * Delete any protected file that you wish to install, and run this again.\n")
	}

	return b.String()
}

func formatFiles(files []string) string {
	if len(files) == 0 {
		return "  (none)\n"
	}

	var b strings.Builder

	for _, f := range files {
		fmt.Fprintf(&b, "  %s\n", f)
	}

	return b.String()
}

// exitCode implements spec.md §7's rule: a non-zero exit happens when
// FAIL_ON_FILE_ERROR is set and any file failed, or when any database
// failed to fetch at all.
func (s *Service) exitCode(report reconcile.Report, failedDBs []string) int {
	if s.Env.FailOnFileError && len(report.FileErrors) > 0 {
		return 1
	}

	if len(failedDBs) > 0 {
		return 1
	}

	return 0
}
