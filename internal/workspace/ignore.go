package workspace

import (
	"bufio"
	"bytes"
	"path"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName holds extra gitignore patterns at the workspace root
const IgnoreFileName = ".turnipignore"

// LocalIgnoreFileName holds patterns for one machine and is never synced itself
const LocalIgnoreFileName = ".turnipignore.local"

var defaultIgnoreLines = []string{
	".git/",
	LocalIgnoreFileName,
}

// IgnoreList decides which paths are outside the sync, on both sides
type IgnoreList struct {
	ignore *gitignore.GitIgnore
	paths  mapset.Set[string]
}

// NewIgnoreList compiles the default patterns plus the lines of each ignore file given (any may be nil)
func NewIgnoreList(ignoreFiles ...[]byte) *IgnoreList {
	lines := append([]string{}, defaultIgnoreLines...)

	for _, data := range ignoreFiles {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			lines = append(lines, line)
		}
	}

	return &IgnoreList{
		ignore: gitignore.CompileIgnoreLines(lines...),
		paths:  mapset.NewThreadUnsafeSet[string](),
	}
}

// Exclude adds exact paths to the list. Everything below an excluded path is excluded too.
func (l *IgnoreList) Exclude(paths ...string) *IgnoreList {
	for _, p := range paths {
		l.paths.Add(strings.Trim(p, "/"))
	}
	return l
}

// ShouldIgnore matches a slash separated relative path. Directories must carry a trailing slash.
func (l *IgnoreList) ShouldIgnore(relPath string) bool {
	if l.paths.Cardinality() > 0 {
		for p := strings.TrimSuffix(relPath, "/"); p != "." && p != ""; p = path.Dir(p) {
			if l.paths.Contains(p) {
				return true
			}
		}
	}
	return l.ignore.MatchesPath(relPath)
}
