// Package model holds the explicit record types for the database manifest
// and persistent store, per spec.md §3. Dynamic descriptor shapes are
// modeled as structs with optional fields rather than open maps (spec.md
// §9 design note).
package model

// IgnoreHash is the sentinel hash value meaning "don't verify content".
const IgnoreHash = "ignore"

// FileDescriptor describes a single installable file.
type FileDescriptor struct {
	URL       string `json:"url,omitempty"`
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
	ZipID     string `json:"zip_id,omitempty"`
	Tags      []int  `json:"tags,omitempty"`
	Delete    []bool `json:"delete,omitempty"`
	Overwrite *bool  `json:"overwrite,omitempty"`
	Reboot    bool   `json:"reboot,omitempty"`
}

// WantsPreviousDeleted reports whether this descriptor's `delete` flag
// requests garbage-collection of older-dated sibling files (spec.md §4.3
// step 10). The field is a list in the wire format; any true entry triggers it.
func (f *FileDescriptor) WantsPreviousDeleted() bool {
	for _, d := range f.Delete {
		if d {
			return true
		}
	}

	return false
}

// OverwriteAllowed reports whether this descriptor explicitly permits
// overwriting a pre-existing, not-previously-installed file. A nil
// Overwrite field means "allowed" (the common case); explicit false means
// overwrite-protected.
func (f *FileDescriptor) OverwriteAllowed() bool {
	return f.Overwrite == nil || *f.Overwrite
}

// FolderDescriptor describes an installable folder.
type FolderDescriptor struct {
	ZipID string `json:"zip_id,omitempty"`
	Tags  []int  `json:"tags,omitempty"`
}

// ZipKind distinguishes the two zip content layouts spec.md §3 defines.
type ZipKind string

const (
	ZipExtractAllContents ZipKind = "extract_all_contents"
	ZipSingleContents     ZipKind = "single_contents"
)

// ZipDescriptor describes a zip-bundled piece of content.
type ZipDescriptor struct {
	SummaryFile     FileDescriptor `json:"summary_file"`
	ContentsFile    FileDescriptor `json:"contents_file"`
	Kind            ZipKind        `json:"kind"`
	Description     string         `json:"description,omitempty"`
	RawFilesSize    int64          `json:"raw_files_size,omitempty"`
	TargetFolderPath string        `json:"target_folder_path,omitempty"`
	InternalSummary  bool          `json:"internal_summary,omitempty"`
}

// LinuxBlock describes the optional Linux kernel/rootfs update a database
// may declare.
type LinuxBlock struct {
	FileDescriptor
	Version string `json:"version"`
}

// Database is a parsed manifest (spec.md §3).
type Database struct {
	DBID           string                       `json:"db_id"`
	Files          map[string]FileDescriptor    `json:"files"`
	Folders        map[string]FolderDescriptor  `json:"folders"`
	Zips           map[string]ZipDescriptor     `json:"zips,omitempty"`
	DBFiles        []string                     `json:"db_files,omitempty"`
	Linux          *LinuxBlock                  `json:"linux,omitempty"`
	TagDictionary  map[string]int               `json:"tag_dictionary,omitempty"`
	DefaultOptions map[string]any               `json:"default_options,omitempty"`
}

// ZipSummary is the JSON document fetched from a ZipDescriptor's
// summary_file: the set of files/folders the zip contributes.
type ZipSummary struct {
	Files   map[string]FileDescriptor   `json:"files"`
	Folders map[string]FolderDescriptor `json:"folders"`
}
