package scan

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// DefaultPatterns is the ignore file content written into projects that do
// not have one yet. Lines starting with "#" are section comments.
var DefaultPatterns = []string{
	"# Dependencies",
	"node_modules/",
	"npm-debug.log*",
	"yarn-debug.log*",
	"yarn-error.log*",
	"",
	"# Build outputs",
	"dist/",
	"build/",
	".next/",
	"out/",
	"",
	"# Environment files",
	".env",
	".env.local",
	".env.development.local",
	".env.test.local",
	".env.production.local",
	"",
	"# IDE files",
	".vscode/",
	".idea/",
	"*.swp",
	"*.swo",
	"*~",
	"",
	"# OS files",
	".DS_Store",
	"Thumbs.db",
	"",
	"# Logs",
	"*.log",
	"logs/",
	"",
	"# Runtime data",
	"pids",
	"*.pid",
	"*.seed",
	"*.pid.lock",
	"",
	"# Coverage output",
	"coverage/",
	"",
	"# Temporary folders",
	"tmp/",
	"temp/",
	"",
	"# Python",
	"__pycache__/",
	"*.py[cod]",
	"*.so",
	".Python",
	"env/",
	"venv/",
	"ENV/",
	"",
	"# Java",
	"*.class",
	"*.jar",
	"target/",
	"",
	"# Go",
	"*.exe",
	"*.exe~",
	"*.dll",
	"*.dylib",
	"",
	"# Git",
	".git/",
	".gitignore",
}

// RuleSet answers exclusion queries against slash-separated paths relative
// to a project root. Pattern semantics: a trailing "/" restricts a pattern
// to directories and excludes everything below them; a leading "*" matches
// any prefix (suffix match on the whole path); any other pattern is matched
// against every path component, so a matching parent directory excludes the
// whole subtree.
type RuleSet struct {
	patterns []string
}

// NewRuleSet builds a rule set from raw pattern lines. Blank lines and "#"
// comments are dropped.
func NewRuleSet(patterns []string) *RuleSet {
	rs := &RuleSet{}
	rs.Add(patterns...)
	return rs
}

// LoadRuleSet reads patterns from an ignore file. A missing file yields an
// empty rule set, not an error.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RuleSet{}, nil
		}
		return nil, fmt.Errorf("failed to read ignore file: %w", err)
	}

	rs := &RuleSet{}
	for _, line := range strings.Split(string(data), "\n") {
		rs.Add(strings.TrimSpace(line))
	}
	return rs, nil
}

// Add appends patterns to the set, skipping blanks and comments.
func (rs *RuleSet) Add(patterns ...string) {
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}
		rs.patterns = append(rs.patterns, p)
	}
}

// Len returns the number of active patterns.
func (rs *RuleSet) Len() int {
	return len(rs.patterns)
}

// Matches reports whether the file at rel is excluded. A file is excluded
// when a pattern matches the file itself or any of its parent directories.
func (rs *RuleSet) Matches(rel string) bool {
	return rs.match(rel, false)
}

// MatchesDir is Matches for directories. Trailing-slash patterns apply to
// the directory itself here, so a tree walker can prune whole subtrees.
func (rs *RuleSet) MatchesDir(rel string) bool {
	return rs.match(rel, true)
}

func (rs *RuleSet) match(rel string, isDir bool) bool {
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == "." || rel == "" || rel == "/" {
		return false
	}
	parts := strings.Split(rel, "/")
	for _, pat := range rs.patterns {
		if matchPattern(pat, rel, parts, isDir) {
			return true
		}
	}
	return false
}

func matchPattern(pat, rel string, parts []string, isDir bool) bool {
	if dir, ok := strings.CutSuffix(pat, "/"); ok {
		// Anything below the named directory, including patterns that name
		// a nested path like "a/b/".
		if strings.HasPrefix(rel, dir+"/") {
			return true
		}
		if isDir && rel == dir {
			return true
		}
		limit := len(parts)
		if !isDir {
			// The last component is a file; trailing "/" never matches files.
			limit--
		}
		for _, comp := range parts[:limit] {
			if componentMatch(dir, comp) {
				return true
			}
		}
		return false
	}

	if suffix, ok := strings.CutPrefix(pat, "*"); ok {
		return strings.HasSuffix(rel, suffix)
	}

	for _, comp := range parts {
		if componentMatch(pat, comp) {
			return true
		}
	}
	return false
}

// componentMatch matches one path component, falling back to shell glob
// syntax when the pattern carries metacharacters.
func componentMatch(pat, comp string) bool {
	if pat == comp {
		return true
	}
	ok, err := path.Match(pat, comp)
	return err == nil && ok
}

// EnsureIgnoreFile writes the default ignore file (plus any extra project
// patterns) into dir when none exists or the existing one is empty. It
// reports whether a file was written.
func EnsureIgnoreFile(dir, name string, extra []string) (bool, error) {
	p := filepath.Join(dir, name)

	data, err := os.ReadFile(p)
	switch {
	case err == nil:
		if len(bytes.TrimSpace(data)) > 0 {
			return false, nil
		}
	case !os.IsNotExist(err):
		return false, fmt.Errorf("failed to read existing ignore file: %w", err)
	}

	lines := make([]string, 0, len(DefaultPatterns)+len(extra)+2)
	lines = append(lines, DefaultPatterns...)
	if len(extra) > 0 {
		lines = append(lines, "", "# Project patterns")
		lines = append(lines, extra...)
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		return false, fmt.Errorf("failed to write ignore file: %w", err)
	}
	return true, nil
}
