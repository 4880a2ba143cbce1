// Package reboot implements the RebootCalculator, spec.md §4.7.
package reboot

import (
	"fmt"

	"github.com/tonurics/downloader-mister/internal/config"
	"github.com/tonurics/downloader-mister/internal/fsutil"
)

// NeedsRebootMarkerPath is the on-device marker touched when a reboot was
// needed but policy forbade doing it automatically (spec.md §6).
const NeedsRebootMarkerPath = "Scripts/.config/downloader/downloader_needs_reboot"

// Calculate returns true iff an automatic reboot should happen now, given
// whether the linux updater and/or the online importer flagged a reboot
// as needed, and the configured policy. When the answer is false but a
// reboot was genuinely needed, it touches the needs-reboot marker file
// (spec.md §4.7).
func Calculate(fs fsutil.FileSystem, policy config.AllowReboot, linuxNeedsReboot, importerNeedsReboot bool) (bool, error) {
	needed := linuxNeedsReboot || importerNeedsReboot
	if !needed {
		return false, nil
	}

	automatic := shouldRebootAutomatically(policy, linuxNeedsReboot, importerNeedsReboot)
	if automatic {
		return true, nil
	}

	if err := fs.Touch(NeedsRebootMarkerPath); err != nil {
		return false, fmt.Errorf("reboot: touching marker file: %w", err)
	}

	return false, nil
}

func shouldRebootAutomatically(policy config.AllowReboot, linuxNeedsReboot, importerNeedsReboot bool) bool {
	switch policy {
	case config.AllowRebootNever:
		return false
	case config.AllowRebootOnlyAfterLinux:
		return linuxNeedsReboot
	case config.AllowRebootAlways:
		return true
	default:
		return true
	}
}
