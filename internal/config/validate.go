package config

import (
	"errors"
	"fmt"
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so a user
// fixing a config file sees the complete report in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateEnum("allow_delete", string(cfg.AllowDelete),
		string(AllowDeleteAll), string(AllowDeleteOldRBF), string(AllowDeleteNone))...)
	errs = append(errs, validateEnum("allow_reboot", string(cfg.AllowReboot),
		string(AllowRebootAlways), string(AllowRebootOnlyAfterLinux), string(AllowRebootNever))...)

	if cfg.BasePath == "" {
		errs = append(errs, errors.New("base_path: must not be empty"))
	}

	if cfg.DownloaderProcessLimit <= 0 {
		errs = append(errs, fmt.Errorf("downloader_process_limit: must be positive, got %d", cfg.DownloaderProcessLimit))
	}

	if cfg.DownloaderTimeout <= 0 {
		errs = append(errs, fmt.Errorf("downloader_timeout: must be positive, got %d", cfg.DownloaderTimeout))
	}

	if cfg.DownloaderRetries < 0 {
		errs = append(errs, fmt.Errorf("downloader_retries: must not be negative, got %d", cfg.DownloaderRetries))
	}

	for section, desc := range cfg.Databases {
		if desc.DBURL == "" {
			errs = append(errs, fmt.Errorf("database [%s]: db_url must not be empty", section))
		}
	}

	return errors.Join(errs...)
}

func validateEnum(field, value string, allowed ...string) []error {
	if value == "" {
		return nil
	}

	for _, a := range allowed {
		if value == a {
			return nil
		}
	}

	return []error{fmt.Errorf("%s: invalid value %q, must be one of %v", field, value, allowed)}
}
