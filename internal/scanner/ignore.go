package scanner

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// ignoreMatcher collects patterns from nested .riggerignore (and .gitignore,
// as a convenience) files found while walking, matching spec §4.3's "nested
// ignore files" requirement. Pattern matching is intentionally simple
// (glob-per-path-segment, directory-anchored) rather than full gitignore
// semantics, which is out of scope for this core.
type ignoreMatcher struct {
	root     string
	enabled  bool
	patterns []string // relative-to-root glob patterns, accumulated top-down
}

func newIgnoreMatcher(root string, enabled bool) *ignoreMatcher {
	m := &ignoreMatcher{root: root, enabled: enabled}
	if !enabled {
		return m
	}
	m.loadFrom(root, "")
	return m
}

// loadFrom eagerly reads the ignore files in dir and, recursively, in every
// subdirectory (skipping names starting with ".git"), prefixing each pattern
// with its directory's path relative to the root; ignored()/ignoredDir()
// only match against the patterns collected here. One up-front pass is
// sufficient for a one-shot scan (incremental rescans re-fingerprint
// per-file, not per-ignore-file).
func (m *ignoreMatcher) loadFrom(dir, relPrefix string) {
	for _, name := range []string{".riggerignore", ".gitignore"} {
		p := filepath.Join(dir, name)
		f, err := os.Open(p)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			m.patterns = append(m.patterns, filepath.ToSlash(filepath.Join(relPrefix, line)))
		}
		f.Close()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".git") {
			m.loadFrom(filepath.Join(dir, e.Name()), filepath.Join(relPrefix, e.Name()))
		}
	}
}

func (m *ignoreMatcher) ignored(rel string) bool {
	if !m.enabled {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, pat := range m.patterns {
		if matched, _ := filepath.Match(pat, rel); matched {
			return true
		}
		if strings.HasPrefix(rel, strings.TrimSuffix(pat, "/")+"/") {
			return true
		}
	}
	return false
}

func (m *ignoreMatcher) ignoredDir(rel string) bool {
	if rel == "." {
		return false
	}
	base := filepath.Base(rel)
	if base == ".git" {
		return true
	}
	return m.ignored(rel)
}
