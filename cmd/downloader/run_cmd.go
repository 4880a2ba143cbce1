package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonurics/downloader-mister/internal/config"
	"github.com/tonurics/downloader-mister/internal/dbgateway"
	"github.com/tonurics/downloader-mister/internal/downloader"
	"github.com/tonurics/downloader-mister/internal/fsutil"
	"github.com/tonurics/downloader-mister/internal/fullrun"
	"github.com/tonurics/downloader-mister/internal/linuxupdater"
	"github.com/tonurics/downloader-mister/internal/offlineimporter"
	"github.com/tonurics/downloader-mister/internal/reconcile"
	"github.com/tonurics/downloader-mister/internal/resume"
	"github.com/tonurics/downloader-mister/internal/store"
)

// lockFileName is the on-device marker enforcing that a run must not be
// re-entered while another one is in progress (spec.md §5).
const lockFileName = "Scripts/.config/downloader/downloader.lock"

// resumeDBName is the ResumeStore's SQLite file, kept alongside the JSON
// store and config under the tool's own state directory.
const resumeDBName = "Scripts/.config/downloader/resume.db"

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one full reconcile cycle against the configured databases",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			release, err := acquireLock(filepath.Join(cc.Cfg.BasePath, lockFileName))
			if err != nil {
				return err
			}
			defer release()

			svc, closeResume, err := buildService(cc)
			if err != nil {
				return err
			}
			defer closeResume()

			start := time.Now()

			result, err := svc.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			if stdoutIsTerminal() {
				fmt.Fprintln(os.Stdout, "==========================================")
			}

			fmt.Fprint(os.Stdout, result.Summary(time.Since(start)))

			if result.ExitCode != 0 {
				os.Exit(result.ExitCode)
			}

			return nil
		},
	}
}

// buildService wires every collaborator together the way
// full_run_service.py's constructor does, using the production
// implementations behind each interface seam.
func buildService(cc *CLIContext) (*fullrun.Service, func(), error) {
	fs := fsutil.New(cc.Cfg.BasePath, cc.Cfg.BaseSystemPath, cc.Cfg.AllowDelete, cc.Logger)

	dlCfg := downloader.Config{
		ProcessLimit: cc.Cfg.DownloaderProcessLimit,
		Timeout:      time.Duration(cc.Cfg.DownloaderTimeout) * time.Second,
		Retries:      uint64(cc.Cfg.DownloaderRetries),
	}
	dl := downloader.New(defaultHTTPClient(), dlCfg, cc.Logger)

	resumeStore, err := resume.Open(context.Background(), filepath.Join(cc.Cfg.BasePath, resumeDBName), cc.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening resume store: %w", err)
	}

	closeFn := func() {
		if cerr := resumeStore.Close(); cerr != nil {
			cc.Logger.Warn("closing resume store failed", "error", cerr)
		}
	}

	svc := &fullrun.Service{
		Config:          cc.Cfg,
		Env:             cc.Env,
		StorePath:       config.DefaultStorePath(cc.Cfg.BasePath),
		FS:              fs,
		Gateway:         dbgateway.New(fs, dl, cc.Logger),
		OfflineImporter: offlineimporter.New(fs, dl, cc.Logger),
		Reconciler:      reconcile.NewWithResume(fs, dl, resumeStore, cc.Logger),
		Migrator:        store.NewMigrator(cc.Logger),
		LinuxUpdater:    linuxupdater.New(fs, dl, cc.Logger),
		Logger:          cc.Logger,
	}

	return svc, closeFn, nil
}
