// Package config implements INI configuration loading, validation, and
// default-path resolution for the downloader.
package config

// AllowDelete controls which files the importer is permitted to delete.
type AllowDelete string

const (
	AllowDeleteAll    AllowDelete = "all"
	AllowDeleteOldRBF AllowDelete = "old_rbf"
	AllowDeleteNone   AllowDelete = "none"
)

// AllowReboot controls whether a needed reboot happens automatically.
type AllowReboot string

const (
	AllowRebootAlways              AllowReboot = "always"
	AllowRebootOnlyAfterLinux      AllowReboot = "only_after_linux_update"
	AllowRebootNever               AllowReboot = "never"
)

// Config is the top-level configuration, decoded from the `[mister]`
// section (or equivalent default section) plus one Description per
// remaining section.
type Config struct {
	BasePath                  string
	BaseSystemPath             string
	AllowDelete                AllowDelete
	AllowReboot                AllowReboot
	UpdateLinux                bool
	ParallelUpdate             bool
	CheckManuallyDeletedFiles  bool
	DownloaderSizeMBLimit      int
	DownloaderProcessLimit     int
	DownloaderTimeout          int
	DownloaderRetries          int
	Verbose                    bool

	// Databases holds one Description per configured section, keyed by
	// section name. Populated after DefaultConfig-injection, see Load.
	Databases map[string]Description
}

// Description is the per-database configuration block: where to fetch
// the manifest from, what section id it must declare, and any per-DB
// overrides of the global filter/behavior options.
type Description struct {
	Section string
	DBURL   string
	Options Options
}

// Options carries the subset of global settings a database section may
// override. Zero values mean "inherit the global config".
type Options struct {
	AllowDelete               *AllowDelete
	AllowReboot               *AllowReboot
	CheckManuallyDeletedFiles *bool
	FilterExpression          *string
	DownloaderSizeMBLimit     *int
	ParallelUpdate            *bool
}

// EffectiveConfig is the merge of the global Config with a Description's
// Options, resolved once per database at the start of reconciliation.
type EffectiveConfig struct {
	AllowDelete               AllowDelete
	AllowReboot               AllowReboot
	CheckManuallyDeletedFiles bool
	FilterExpression          string
	DownloaderSizeMBLimit     int
	ParallelUpdate            bool
}

// Resolve merges global config with this description's per-DB overrides.
func (d *Description) Resolve(cfg *Config) EffectiveConfig {
	eff := EffectiveConfig{
		AllowDelete:               cfg.AllowDelete,
		AllowReboot:               cfg.AllowReboot,
		CheckManuallyDeletedFiles: cfg.CheckManuallyDeletedFiles,
		DownloaderSizeMBLimit:     cfg.DownloaderSizeMBLimit,
		ParallelUpdate:            cfg.ParallelUpdate,
	}

	opt := d.Options
	if opt.AllowDelete != nil {
		eff.AllowDelete = *opt.AllowDelete
	}

	if opt.AllowReboot != nil {
		eff.AllowReboot = *opt.AllowReboot
	}

	if opt.CheckManuallyDeletedFiles != nil {
		eff.CheckManuallyDeletedFiles = *opt.CheckManuallyDeletedFiles
	}

	if opt.FilterExpression != nil {
		eff.FilterExpression = *opt.FilterExpression
	}

	if opt.DownloaderSizeMBLimit != nil {
		eff.DownloaderSizeMBLimit = *opt.DownloaderSizeMBLimit
	}

	if opt.ParallelUpdate != nil {
		eff.ParallelUpdate = *opt.ParallelUpdate
	}

	return eff
}

// distributionMisterSection is the section id injected when no database
// section is declared in the config file.
const distributionMisterSection = "distribution_mister"

// distributionMisterURL is the canonical distribution database URL.
const distributionMisterURL = "https://raw.githubusercontent.com/MiSTer-devel/Distribution_MiSTer/main/db.json.zip"

// injectDefaultDatabase adds the distribution_mister database when the
// config declares no database sections at all.
func injectDefaultDatabase(cfg *Config) {
	if len(cfg.Databases) > 0 {
		return
	}

	cfg.Databases = map[string]Description{
		distributionMisterSection: {
			Section: distributionMisterSection,
			DBURL:   distributionMisterURL,
		},
	}
}
