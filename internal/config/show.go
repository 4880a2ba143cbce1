package config

import (
	"fmt"
	"io"
	"sort"
)

// RenderEffective writes the resolved configuration as a human-readable
// annotated summary to w. Powers the `config show` CLI subcommand.
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("[mister]\n")
	ew.printf("  base_path                    = %q\n", cfg.BasePath)
	ew.printf("  base_system_path              = %q\n", cfg.BaseSystemPath)
	ew.printf("  allow_delete                  = %q\n", cfg.AllowDelete)
	ew.printf("  allow_reboot                  = %q\n", cfg.AllowReboot)
	ew.printf("  update_linux                  = %t\n", cfg.UpdateLinux)
	ew.printf("  parallel_update               = %t\n", cfg.ParallelUpdate)
	ew.printf("  check_manually_deleted_files  = %t\n", cfg.CheckManuallyDeletedFiles)
	ew.printf("  downloader_size_mb_limit      = %d\n", cfg.DownloaderSizeMBLimit)
	ew.printf("  downloader_process_limit      = %d\n", cfg.DownloaderProcessLimit)
	ew.printf("  downloader_timeout            = %d\n", cfg.DownloaderTimeout)
	ew.printf("  downloader_retries            = %d\n", cfg.DownloaderRetries)
	ew.printf("  verbose                       = %t\n", cfg.Verbose)
	ew.printf("\n")

	sections := make([]string, 0, len(cfg.Databases))
	for name := range cfg.Databases {
		sections = append(sections, name)
	}

	sort.Strings(sections)

	for _, name := range sections {
		desc := cfg.Databases[name]
		ew.printf("[%s]\n", name)
		ew.printf("  db_url = %q\n", desc.DBURL)
		ew.printf("\n")
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error, so
// callers can chain printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
