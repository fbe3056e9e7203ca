package scan

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// writeTree creates files under root from a map of relative path to content.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestSnapshot(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":            "package main",
		"docs/readme.md":     "# readme",
		".git/config":        "[core]",
		".git/objects/ab/cd": "blob",
		"debug.log":          "noise",
		"node_modules/x.js":  "module.exports = {}",
	})

	rules := NewRuleSet([]string{"*.log", "node_modules/"})

	records, warnings, err := Snapshot(root, rules)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	var tracked, ignored []string
	for _, r := range records {
		if r.Ignored {
			ignored = append(ignored, r.RelPath)
			if r.Hash != "" {
				t.Errorf("ignored record %s should not carry a hash", r.RelPath)
			}
			continue
		}
		tracked = append(tracked, r.RelPath)
		if r.Hash == "" {
			t.Errorf("record %s has no hash", r.RelPath)
		}
	}

	wantTracked := []string{"docs/readme.md", "main.go"}
	if !reflect.DeepEqual(tracked, wantTracked) {
		t.Errorf("tracked = %v, want %v", tracked, wantTracked)
	}

	// The ignored directory is pruned entirely; only the ignored file
	// produces a marker record.
	wantIgnored := []string{"debug.log"}
	if !reflect.DeepEqual(ignored, wantIgnored) {
		t.Errorf("ignored = %v, want %v", ignored, wantIgnored)
	}

	for _, r := range records {
		if r.RelPath == ".git/config" || r.RelPath == ".git/objects/ab/cd" {
			t.Errorf("version-control metadata leaked into snapshot: %s", r.RelPath)
		}
	}
}

func TestSnapshot_Deterministic(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"b.txt":     "two",
		"a.txt":     "one",
		"sub/c.txt": "three",
	})

	first, _, err := Snapshot(root, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := Snapshot(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("snapshots differ across runs:\nfirst:  %v\nsecond: %v", first, second)
	}

	for i := 1; i < len(first); i++ {
		if first[i-1].RelPath >= first[i].RelPath {
			t.Errorf("records not sorted: %s before %s", first[i-1].RelPath, first[i].RelPath)
		}
	}
}

func TestSnapshot_EmptyTree(t *testing.T) {
	records, warnings, err := Snapshot(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %v", records)
	}
	if len(warnings) != 0 {
		t.Errorf("expected no warnings, got %v", warnings)
	}
}

func TestSnapshot_MissingRoot(t *testing.T) {
	_, _, err := Snapshot(filepath.Join(t.TempDir(), "nope"), nil)
	if err == nil {
		t.Error("expected error for missing root, got nil")
	}
}

func TestSnapshot_UnreadableFile(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"ok1.txt": "1",
		"ok2.txt": "2",
		"ok3.txt": "3",
		"ok4.txt": "4",
	})

	blocked := filepath.Join(root, "blocked.txt")
	if err := os.WriteFile(blocked, []byte("secret"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(blocked, 0000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = os.Chmod(blocked, 0644)
	})

	records, warnings, err := Snapshot(root, nil)
	if err != nil {
		t.Fatalf("one unreadable file must not fail the scan: %v", err)
	}

	if len(records) != 4 {
		t.Errorf("expected 4 readable records, got %d: %v", len(records), records)
	}
	for _, r := range records {
		if r.RelPath == "blocked.txt" {
			t.Error("unreadable file should be excluded from records")
		}
	}

	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d: %v", len(warnings), warnings)
	}
	if warnings[0].Path != "blocked.txt" {
		t.Errorf("warning path = %s, want blocked.txt", warnings[0].Path)
	}
}

func TestSnapshot_HiddenFilesIncluded(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".envrc":     "export FOO=1",
		".config/x":  "y",
		"regular.md": "text",
	})

	records, _, err := Snapshot(root, nil)
	if err != nil {
		t.Fatal(err)
	}

	got := make(map[string]bool, len(records))
	for _, r := range records {
		got[r.RelPath] = true
	}
	for _, want := range []string{".envrc", ".config/x", "regular.md"} {
		if !got[want] {
			t.Errorf("snapshot missing %s; dotfiles are excluded by rules, not by the walker", want)
		}
	}
}

func TestWarningString(t *testing.T) {
	w := Warning{Path: "a/b.txt", Err: os.ErrPermission}
	if got := w.String(); got != "a/b.txt: permission denied" {
		t.Errorf("Warning.String() = %q", got)
	}
}
