// Package filter evaluates boolean include/exclude tag expressions
// against a database's tag dictionary (spec.md §4.3 step 1, §2's
// FileFilter). No library in the example pack parses a bespoke boolean
// tag-expression grammar (the one participle-using repo only lists it as
// an unused indirect dependency) — this is a standard-library fallback,
// justified in DESIGN.md.
package filter

import (
	"fmt"
	"strings"
)

// term is one parsed filter word: an optional leading `!` negates it.
type term struct {
	name    string
	exclude bool
}

// Filter is a compiled tag expression: a file/folder passes when every
// include term's tag is present and no exclude term's tag is present
// (spec.md §4.3 step 3's "evaluate the filter against its tags").
type Filter struct {
	terms   []compiledTerm
	unknown []string
}

type compiledTerm struct {
	tagID   int
	exclude bool
}

// Compile parses a whitespace-separated expression (e.g. "arcade !nes")
// against tagDictionary, a mapping from tag name to numeric id. Unknown
// terms are recorded (not fatal) for end-of-run reporting; a term list
// that is empty after trimming is not an error — it simply matches
// everything. Malformed syntax (an empty term after a bare `!`) is the
// only fatal condition.
func Compile(expression string, tagDictionary map[string]int) (*Filter, error) {
	f := &Filter{}

	for _, word := range strings.Fields(expression) {
		t, err := parseTerm(word)
		if err != nil {
			return nil, fmt.Errorf("compiling filter %q: %w", expression, err)
		}

		tagID, ok := tagDictionary[t.name]
		if !ok {
			f.unknown = append(f.unknown, t.name)

			continue
		}

		f.terms = append(f.terms, compiledTerm{tagID: tagID, exclude: t.exclude})
	}

	return f, nil
}

func parseTerm(word string) (term, error) {
	exclude := strings.HasPrefix(word, "!")
	name := strings.TrimPrefix(word, "!")

	if name == "" {
		return term{}, fmt.Errorf("empty term in %q", word)
	}

	return term{name: strings.ToLower(name), exclude: exclude}, nil
}

// Unknown returns the filter terms that had no entry in the tag
// dictionary they were compiled against, for end-of-run reporting.
func (f *Filter) Unknown() []string {
	return f.unknown
}

// Matches reports whether a tag set (as declared on a FileDescriptor or
// FolderDescriptor) satisfies the filter: every non-exclude term's tag
// must be present, and no exclude term's tag may be present. An empty
// compiled filter matches everything.
func (f *Filter) Matches(tags []int) bool {
	present := make(map[int]bool, len(tags))
	for _, tag := range tags {
		present[tag] = true
	}

	for _, t := range f.terms {
		if t.exclude {
			if present[t.tagID] {
				return false
			}

			continue
		}

		if !present[t.tagID] {
			return false
		}
	}

	return true
}
