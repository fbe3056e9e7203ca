// Package scan enumerates and fingerprints project file trees for change
// detection. It owns the ignore-pattern semantics shared by every snapshot,
// so local and remote trees are always filtered identically.
package scan

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// gitMetadataDir is always excluded from snapshots, pattern or not.
const gitMetadataDir = ".git"

// FileRecord describes one file discovered under a project root.
type FileRecord struct {
	RelPath string // slash-separated, relative to the root
	Hash    string // SHA256 content hash, empty for ignored records
	Ignored bool
}

// Warning reports a per-file problem that did not stop a scan.
type Warning struct {
	Path string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Path, w.Err)
}

// Snapshot enumerates all files under root, excluding version-control
// metadata, and fingerprints every file the rules do not exclude. Ignored
// files come back as records with Ignored set (their content is never
// read) so callers can report them. An unreadable file is dropped and
// reported as a warning rather than failing the scan; only an unreadable
// root is fatal. Records are sorted by relative path, so two snapshots of
// the same tree are always identical.
func Snapshot(root string, rules *RuleSet) ([]FileRecord, []Warning, error) {
	if rules == nil {
		rules = &RuleSet{}
	}

	var records []FileRecord
	var warnings []Warning

	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			warnings = append(warnings, Warning{Path: relTo(root, p), Err: err})
			if info != nil && info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if p == root {
			return nil
		}
		rel := relTo(root, p)

		if info.IsDir() {
			if info.Name() == gitMetadataDir || rules.MatchesDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		// Symlinks, sockets and the like are not content to push.
		if !info.Mode().IsRegular() {
			return nil
		}

		if rules.Matches(rel) {
			records = append(records, FileRecord{RelPath: rel, Ignored: true})
			return nil
		}

		hash, err := Fingerprint(p)
		if err != nil {
			warnings = append(warnings, Warning{Path: rel, Err: err})
			return nil
		}
		records = append(records, FileRecord{RelPath: rel, Hash: hash})
		return nil
	})
	if err != nil {
		return nil, warnings, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].RelPath < records[j].RelPath
	})
	return records, warnings, nil
}

func relTo(root, p string) string {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}
