package config

import "path/filepath"

// configSubdir is the fixed on-device location of the downloader's own
// state, relative to base_path — matches the marker-file convention in
// spec.md §6 (`<base>/Scripts/.config/downloader/...`).
const configSubdir = "Scripts/.config/downloader"

// configFileName is the default INI config file name.
const configFileName = "downloader.ini"

// storeFileName is the default JSON store file name.
const storeFileName = "downloader.json"

// DefaultConfigPath returns the default config file path. This is fixed
// relative to the device's root (not the configured base_path, which is
// only known after the config file is read) — matching the original
// tool's single well-known path on the SD card.
func DefaultConfigPath() string {
	return filepath.Join(defaultBasePath, configSubdir, configFileName)
}

// DefaultStorePath returns the default persistent store path under basePath
// (the configured install root, once known).
func DefaultStorePath(basePath string) string {
	if basePath == "" {
		basePath = defaultBasePath
	}

	return filepath.Join(basePath, configSubdir, storeFileName)
}

// ResolveConfigPath determines the config file path: CLI flag > default.
// There is no environment variable for the config path itself (spec.md §6
// only lists UPDATE_LINUX, FAIL_ON_FILE_ERROR, COMMIT).
func ResolveConfigPath(cliPath string) string {
	if cliPath != "" {
		return cliPath
	}

	return DefaultConfigPath()
}
