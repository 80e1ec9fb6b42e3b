// Package ignore builds the ignored-path predicate the scanner consults.
// Patterns come from the tree's .gitignore files plus an optional
// .fractylignore at the root, parsed with go-git's gitignore format.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

const fractylIgnoreFile = ".fractylignore"

// Matcher answers whether a repository-relative path is excluded from
// snapshots.
type Matcher struct {
	m gitignore.Matcher
}

// Load collects ignore patterns for the tree rooted at root. Missing
// ignore files are fine; unreadable ones are skipped.
func Load(root string) *Matcher {
	fs := osfs.New(root)
	patterns, err := gitignore.ReadPatterns(fs, nil)
	if err != nil {
		patterns = nil
	}
	patterns = append(patterns, readFractylIgnore(root)...)
	return &Matcher{m: gitignore.NewMatcher(patterns)}
}

// Ignored reports whether the relative forward-slash path should be
// skipped. isDir selects directory-pattern semantics (trailing-slash
// patterns).
func (m *Matcher) Ignored(relPath string, isDir bool) bool {
	if relPath == "" {
		return false
	}
	return m.m.Match(strings.Split(relPath, "/"), isDir)
}

func readFractylIgnore(root string) []gitignore.Pattern {
	f, err := os.Open(filepath.Join(root, fractylIgnoreFile))
	if err != nil {
		return nil
	}
	defer f.Close() //nolint:errcheck

	var patterns []gitignore.Pattern
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns
}
