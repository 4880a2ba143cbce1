package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/ini.v1"
)

// globalSectionName is the section holding top-level settings. Spec.md §6
// calls it `[mister]`; an unnamed/DEFAULT section is accepted as an
// equivalent so a config file with no explicit header still works.
const globalSectionName = "mister"

// Load reads and parses an INI config file, validates it, and returns the
// resulting Config. The `[mister]` (or DEFAULT) section decodes into the
// flat global Config; every other section becomes a database Description
// keyed by its section name.
func Load(path string, logger *slog.Logger) (*Config, error) {
	logger.Debug("loading config file", "path", path)

	cfg := DefaultConfig()

	raw, err := ini.LoadSources(ini.LoadOptions{AllowBooleanKeys: true}, path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(raw); err != nil {
		return nil, err
	}

	decodeGlobalSection(raw, cfg)

	if err := decodeDatabaseSections(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	injectDefaultDatabase(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logger.Debug("config file parsed successfully",
		"path", path,
		"db_count", len(cfg.Databases),
	)

	return cfg, nil
}

// LoadOrDefault reads an INI config file if it exists, otherwise returns a
// Config populated with all default values plus the injected
// distribution_mister database.
func LoadOrDefault(path string, logger *slog.Logger) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Debug("config file not found, using defaults", "path", path)

		cfg := DefaultConfig()
		injectDefaultDatabase(cfg)

		return cfg, nil
	}

	return Load(path, logger)
}

// globalSection returns the `[mister]` section if present, else falls back
// to ini's implicit DEFAULT section so a header-less config file works.
func globalSection(raw *ini.File) *ini.Section {
	if raw.HasSection(globalSectionName) {
		sec, _ := raw.GetSection(globalSectionName)
		return sec
	}

	return raw.Section(ini.DefaultSection)
}

func decodeGlobalSection(raw *ini.File, cfg *Config) {
	sec := globalSection(raw)

	if sec.HasKey("base_path") {
		cfg.BasePath = sec.Key("base_path").String()
	}

	if sec.HasKey("base_system_path") {
		cfg.BaseSystemPath = sec.Key("base_system_path").String()
	}

	if sec.HasKey("allow_delete") {
		cfg.AllowDelete = AllowDelete(strings.ToLower(sec.Key("allow_delete").String()))
	}

	if sec.HasKey("allow_reboot") {
		cfg.AllowReboot = AllowReboot(strings.ToLower(sec.Key("allow_reboot").String()))
	}

	if sec.HasKey("update_linux") {
		cfg.UpdateLinux = sec.Key("update_linux").MustBool(cfg.UpdateLinux)
	}

	if sec.HasKey("parallel_update") {
		cfg.ParallelUpdate = sec.Key("parallel_update").MustBool(cfg.ParallelUpdate)
	}

	if sec.HasKey("check_manually_deleted_files") {
		cfg.CheckManuallyDeletedFiles = sec.Key("check_manually_deleted_files").MustBool(cfg.CheckManuallyDeletedFiles)
	}

	if sec.HasKey("downloader_size_mb_limit") {
		cfg.DownloaderSizeMBLimit = sec.Key("downloader_size_mb_limit").MustInt(cfg.DownloaderSizeMBLimit)
	}

	if sec.HasKey("downloader_process_limit") {
		cfg.DownloaderProcessLimit = sec.Key("downloader_process_limit").MustInt(cfg.DownloaderProcessLimit)
	}

	if sec.HasKey("downloader_timeout") {
		cfg.DownloaderTimeout = sec.Key("downloader_timeout").MustInt(cfg.DownloaderTimeout)
	}

	if sec.HasKey("downloader_retries") {
		cfg.DownloaderRetries = sec.Key("downloader_retries").MustInt(cfg.DownloaderRetries)
	}

	if sec.HasKey("verbose") {
		cfg.Verbose = sec.Key("verbose").MustBool(cfg.Verbose)
	}
}

// decodeDatabaseSections turns every non-global section into a Description.
func decodeDatabaseSections(raw *ini.File, cfg *Config) error {
	global := globalSection(raw)

	for _, sec := range raw.Sections() {
		if sec.Name() == ini.DefaultSection || sec == global {
			continue
		}

		if sec.Name() == globalSectionName {
			continue
		}

		desc, err := decodeDescription(sec)
		if err != nil {
			return fmt.Errorf("database section [%s]: %w", sec.Name(), err)
		}

		if cfg.Databases == nil {
			cfg.Databases = make(map[string]Description)
		}

		cfg.Databases[sec.Name()] = desc
	}

	return nil
}

func decodeDescription(sec *ini.Section) (Description, error) {
	if !sec.HasKey("db_url") {
		return Description{}, fmt.Errorf("db_url is required")
	}

	desc := Description{
		Section: sec.Name(),
		DBURL:   sec.Key("db_url").String(),
	}

	var opt Options

	if sec.HasKey("allow_delete") {
		v := AllowDelete(strings.ToLower(sec.Key("allow_delete").String()))
		opt.AllowDelete = &v
	}

	if sec.HasKey("allow_reboot") {
		v := AllowReboot(strings.ToLower(sec.Key("allow_reboot").String()))
		opt.AllowReboot = &v
	}

	if sec.HasKey("check_manually_deleted_files") {
		v := sec.Key("check_manually_deleted_files").MustBool(true)
		opt.CheckManuallyDeletedFiles = &v
	}

	if sec.HasKey("filter") {
		v := sec.Key("filter").String()
		opt.FilterExpression = &v
	}

	if sec.HasKey("downloader_size_mb_limit") {
		v := sec.Key("downloader_size_mb_limit").MustInt(0)
		opt.DownloaderSizeMBLimit = &v
	}

	if sec.HasKey("parallel_update") {
		v := sec.Key("parallel_update").MustBool(true)
		opt.ParallelUpdate = &v
	}

	desc.Options = opt

	return desc, nil
}
