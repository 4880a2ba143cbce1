// Package linuxupdater orchestrates the optional Linux kernel/rootfs
// update a database may declare via its `linux` block — spec.md §4.6.
// The concrete shell sequence (verify archive, extract to staging,
// invoke the bootloader updater, move linux.img into place last) is
// reconstructed from original_source/linux_updater.py and
// executed via os/exec, matching the teacher's treatment of subprocess
// orchestration as an injectable seam.
package linuxupdater

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/tonurics/downloader-mister/internal/downloader"
	"github.com/tonurics/downloader-mister/internal/fsutil"
	"github.com/tonurics/downloader-mister/internal/model"
)

// versionFilePath holds the currently-installed Linux image's version
// stamp on a MiSTer device.
const versionFilePath = "/MiSTer.version"

// versionSuffixLength is how many trailing characters of a linux.version
// string are compared against the on-device stamp (spec.md §4.6).
const versionSuffixLength = 6

const (
	extractorTemp       = "7zr"
	stagingDir          = "linux_staging"
	linuxImageFile      = "linux.img"
	linuxImageNewSuffix = ".new"
)

// bootloaderUpdaterPath is the staged script that flashes the bootloader,
// run after extraction but before the final linux.img rename (spec.md
// §4.6: "calls the bootloader updater").
const bootloaderUpdaterPath = "/media/fat/linux/updateboot"

// needsRebootMarkerPath is touched after a successful update (spec.md §6).
const needsRebootMarkerPath = "/tmp/downloader_needs_reboot_after_linux_update"

// Runner executes shell commands on behalf of the updater. The production
// implementation shells out via os/exec; tests inject a Fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner is the production Runner.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running %s %s: %w: %s", name, strings.Join(args, " "), err, out)
	}

	return nil
}

// Updater drives the Linux image update, per spec.md §4.6.
type Updater struct {
	fs     fsutil.FileSystem
	dl     downloader.Downloader
	runner Runner
	logger *slog.Logger
}

// New creates an Updater with the production ExecRunner.
func New(fs fsutil.FileSystem, dl downloader.Downloader, logger *slog.Logger) *Updater {
	return &Updater{fs: fs, dl: dl, runner: ExecRunner{}, logger: logger}
}

// NewWithRunner creates an Updater with an injected Runner, for testing.
func NewWithRunner(fs fsutil.FileSystem, dl downloader.Downloader, runner Runner, logger *slog.Logger) *Updater {
	return &Updater{fs: fs, dl: dl, runner: runner, logger: logger}
}

// Result reports whether the update ran, and whether it now requires a
// reboot.
type Result struct {
	Updated     bool
	NeedsReboot bool
	Ignored     []string // db_ids whose linux block was ignored (only the first is used)
}

// Run collects linux blocks from every database, per spec.md §4.6: none
// is a no-op; more than one logs a warning and uses only the first in
// input order. Any failure aborts without modifying the installed image.
func (u *Updater) Run(ctx context.Context, dbs []model.Database) (Result, error) {
	var (
		chosen   *model.LinuxBlock
		chosenDB string
		result   Result
	)

	for _, db := range dbs {
		if db.Linux == nil {
			continue
		}

		if chosen == nil {
			block := *db.Linux
			chosen = &block
			chosenDB = db.DBID

			continue
		}

		u.logger.Warn("linuxupdater: ignoring additional linux block", "db_id", db.DBID)
		result.Ignored = append(result.Ignored, db.DBID)
	}

	if chosen == nil {
		return result, nil
	}

	upToDate, err := u.isUpToDate(chosen.Version)
	if err != nil {
		return result, fmt.Errorf("linuxupdater: checking current version: %w", err)
	}

	if upToDate {
		return result, nil
	}

	u.logger.Info("linuxupdater: updating linux image", "db_id", chosenDB, "version", chosen.Version)

	if err := u.update(ctx, *chosen); err != nil {
		return result, fmt.Errorf("linuxupdater: %w", err)
	}

	if err := u.fs.Touch(needsRebootMarkerPath); err != nil {
		return result, fmt.Errorf("linuxupdater: touching reboot marker: %w", err)
	}

	result.Updated = true
	result.NeedsReboot = true

	return result, nil
}

func (u *Updater) isUpToDate(linuxVersion string) (bool, error) {
	if !u.fs.IsFile(versionFilePath) {
		return false, nil
	}

	current, err := u.fs.ReadFileContents(versionFilePath)
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", versionFilePath, err)
	}

	current = strings.TrimSpace(current)
	want := lastN(linuxVersion, versionSuffixLength)

	return lastN(current, versionSuffixLength) == want, nil
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return s[len(s)-n:]
}

// StepKind names one action in a Plan.
type StepKind int

const (
	// StepVerifyArchive runs the extractor's integrity-test mode against
	// the downloaded archive.
	StepVerifyArchive StepKind = iota
	// StepExtractArchive extracts the archive into the staging dir.
	StepExtractArchive
	// StepRunBootloaderUpdater invokes the bootloader updater against the
	// staged files, before the final linux.img rename (spec.md §4.6).
	StepRunBootloaderUpdater
	// StepMoveIntoPlace moves the staged linux.img.new into linux.img,
	// always last (spec.md §4.6).
	StepMoveIntoPlace
)

// Step is one entry in a Plan: a step kind plus the paths it operates on.
type Step struct {
	Kind   StepKind
	Source string
	Target string
}

// Plan computes the ordered shell sequence for applying a downloaded
// linux archive, per spec.md §4.6. It is pure: no I/O happens here, only
// the decision of what to run and in what order — execute() carries it
// out via the injected Runner and FileSystem.
func Plan(archivePath string) []Step {
	return []Step{
		{Kind: StepVerifyArchive, Source: archivePath},
		{Kind: StepExtractArchive, Source: archivePath, Target: stagingDir},
		{Kind: StepRunBootloaderUpdater, Source: stagingDir},
		{Kind: StepMoveIntoPlace, Source: stagingDir + "/" + linuxImageFile + linuxImageNewSuffix, Target: linuxImageFile},
	}
}

// update performs the serial download (spec.md §4.6: parallel_update is
// always false here) of the linux archive and, if absent, the 7z
// extractor, then executes the Plan.
func (u *Updater) update(ctx context.Context, block model.LinuxBlock) error {
	archivePath, cleanupArchive, err := u.fs.TempFile()
	if err != nil {
		return fmt.Errorf("reserving temp file for archive: %w", err)
	}
	defer cleanupArchive()

	results := u.dl.Fetch(ctx, []downloader.Request{
		{URL: block.URL, Target: archivePath, ExpectedHash: block.Hash, ExpectedSize: block.Size},
	})

	if len(results) != 1 || results[0].Err != nil {
		return fmt.Errorf("downloading linux archive: %w", singleErr(results))
	}

	if !u.fs.IsFile(extractorTemp) {
		extractorResults := u.dl.Fetch(ctx, []downloader.Request{
			{URL: extractorDownloadURL(), Target: extractorTemp, ExpectedHash: downloader.IgnoreHash},
		})

		if len(extractorResults) != 1 || extractorResults[0].Err != nil {
			return fmt.Errorf("downloading 7z extractor: %w", singleErr(extractorResults))
		}
	}

	return u.execute(ctx, Plan(archivePath))
}

// execute carries out a Plan step by step, any failure aborting the
// sequence without touching the installed image — linux.img is only ever
// moved into place by the final step.
func (u *Updater) execute(ctx context.Context, steps []Step) error {
	for _, step := range steps {
		switch step.Kind {
		case StepVerifyArchive:
			if err := u.runner.Run(ctx, extractorTemp, "t", step.Source); err != nil {
				return fmt.Errorf("verifying archive integrity: %w", err)
			}

		case StepExtractArchive:
			if err := u.fs.MakeDirs(step.Target); err != nil {
				return fmt.Errorf("creating staging dir: %w", err)
			}

			if err := u.runner.Run(ctx, extractorTemp, "x", "-y", "-o"+u.fs.Resolve(step.Target), step.Source); err != nil {
				return fmt.Errorf("extracting archive: %w", err)
			}

		case StepRunBootloaderUpdater:
			if !u.fs.IsFile(bootloaderUpdaterPath) {
				continue
			}

			if err := u.runner.Run(ctx, bootloaderUpdaterPath, u.fs.Resolve(step.Source)); err != nil {
				return fmt.Errorf("running bootloader updater: %w", err)
			}

		case StepMoveIntoPlace:
			if !u.fs.IsFile(step.Source) {
				continue
			}

			if err := u.fs.Move(step.Source, step.Target); err != nil {
				return fmt.Errorf("moving %s into place: %w", step.Target, err)
			}
		}
	}

	return nil
}

func extractorDownloadURL() string {
	return "https://raw.githubusercontent.com/MiSTer-devel/Downloader_MiSTer/main/7zr"
}

func singleErr(results []downloader.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no result")
	}

	return results[0].Err
}
