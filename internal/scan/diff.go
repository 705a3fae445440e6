package scan

import "sort"

// Status classifies a source file relative to the recorded fingerprints.
type Status int

const (
	Unchanged Status = iota
	Added
	Modified
	Removed
)

func (s Status) String() string {
	switch s {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unchanged"
}

// Change is a source file that needs (re)compiling.
type Change struct {
	Entry
	Status Status
}

// Diff partitions a tree into three disjoint sets.
type Diff struct {
	Compile   []Change // added or modified, in traversal order
	Removed   []string // canonical paths, sorted
	Unchanged []Entry  // in traversal order
}

// Empty reports whether nothing needs compiling or retiring.
func (d Diff) Empty() bool {
	return len(d.Compile) == 0 && len(d.Removed) == 0
}

// Compare classifies every source file in tree against prev, the table of
// fingerprints recorded after each file's last successful compile. A file
// that has never compiled successfully is absent from prev and therefore
// always reported as added, so failing files are retried every cycle.
func Compare(prev map[string]Fingerprint, tree *Tree, mode VerifyMode) Diff {
	var d Diff
	seen := make(map[string]bool, len(tree.Files))

	for _, e := range tree.Files {
		seen[e.Path] = true
		old, ok := prev[e.Path]
		switch {
		case !ok:
			d.Compile = append(d.Compile, Change{Entry: e, Status: Added})
		case !old.Same(e.Fingerprint, mode):
			d.Compile = append(d.Compile, Change{Entry: e, Status: Modified})
		default:
			d.Unchanged = append(d.Unchanged, e)
		}
	}

	for path := range prev {
		if !seen[path] {
			d.Removed = append(d.Removed, path)
		}
	}
	sort.Strings(d.Removed)
	return d
}

// CompareResources returns the resources whose content changed since prev,
// plus the fingerprint table to use next time. Newly added and removed
// resources are not reloads.
func CompareResources(prev map[string]Fingerprint, cur []Entry) ([]string, map[string]Fingerprint) {
	next := make(map[string]Fingerprint, len(cur))
	var changed []string
	for _, e := range cur {
		next[e.Path] = e.Fingerprint
		if old, ok := prev[e.Path]; ok && !old.Same(e.Fingerprint, VerifyMetadata) {
			changed = append(changed, e.Path)
		}
	}
	return changed, next
}
