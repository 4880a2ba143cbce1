package config

import (
	"errors"
	"fmt"
	"sort"

	"gopkg.in/ini.v1"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownGlobalKeys are the valid keys inside the `[mister]` global section.
var knownGlobalKeys = map[string]bool{
	"base_path": true, "base_system_path": true, "allow_delete": true, "allow_reboot": true,
	"update_linux": true, "parallel_update": true, "check_manually_deleted_files": true,
	"downloader_size_mb_limit": true, "downloader_process_limit": true,
	"downloader_timeout": true, "downloader_retries": true, "verbose": true,
}

// knownDatabaseKeys are the valid keys inside a per-database section.
var knownDatabaseKeys = map[string]bool{
	"db_url": true, "allow_delete": true, "allow_reboot": true,
	"check_manually_deleted_files": true, "filter": true,
	"downloader_size_mb_limit": true, "parallel_update": true,
}

// checkUnknownKeys inspects every section for keys outside the known sets
// and returns an error with "did you mean?" suggestions for each.
func checkUnknownKeys(raw *ini.File) error {
	var errs []error

	global := globalSection(raw)

	for _, sec := range raw.Sections() {
		known := knownDatabaseKeys
		label := fmt.Sprintf("database [%s]", sec.Name())

		if sec == global || sec.Name() == globalSectionName {
			known = knownGlobalKeys
			label = "global section"
		}

		if sec.Name() == ini.DefaultSection && sec != global {
			continue
		}

		for _, key := range sec.Keys() {
			if known[key.Name()] {
				continue
			}

			if suggestion := closestMatch(key.Name(), sortedKeys(known)); suggestion != "" {
				errs = append(errs, fmt.Errorf("unknown key %q in %s — did you mean %q?", key.Name(), label, suggestion))
			} else {
				errs = append(errs, fmt.Errorf("unknown key %q in %s", key.Name(), label))
			}
		}
	}

	return errors.Join(errs...)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// closestMatch finds the closest known key by Levenshtein distance. Returns
// empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = minOf(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}

func minOf(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}

	if c < m {
		m = c
	}

	return m
}
