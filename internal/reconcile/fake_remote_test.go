package reconcile

import (
	"context"
	"fmt"
	pathpkg "path"
	"sort"
	"strings"
	"sync"

	"github.com/turnip-sync/turnip/internal/github"
)

// memRemote is an in-memory repository with the same failure modes as the contents api
type memRemote struct {
	mu    sync.Mutex
	files map[string]string
	calls []string

	// others are listed entries with no content, such as symlinks and submodules
	others map[string]github.EntryKind

	// fail maps "op path" (e.g. "update a.txt") to an error returned instead of doing the call
	fail map[string]error
	// listErr fails every listing
	listErr error
	// before runs ahead of every write, outside the lock
	before func(op, path string)
}

func newMemRemote(files map[string]string) *memRemote {
	m := &memRemote{files: map[string]string{}, others: map[string]github.EntryKind{}, fail: map[string]error{}}
	for p, c := range files {
		m.files[p] = c
	}
	return m
}

func (m *memRemote) sha(path string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return github.BlobSHA([]byte(m.files[path]))
}

func (m *memRemote) paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *memRemote) writeCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *memRemote) ListEntries(ctx context.Context, dir string) ([]github.RemoteEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}

	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	seen := map[string]bool{}
	var entries []github.RemoteEntry
	// child reports whether p is directly inside dir, listing its top folder otherwise
	child := func(p string) bool {
		if !strings.HasPrefix(p, prefix) {
			return false
		}
		first, _, nested := strings.Cut(p[len(prefix):], "/")
		if nested && !seen[first] {
			seen[first] = true
			entries = append(entries, github.RemoteEntry{Path: prefix + first, Kind: github.KindDir})
		}
		return !nested
	}
	for p, content := range m.files {
		if child(p) {
			entries = append(entries, github.RemoteEntry{
				Path: p,
				Kind: github.KindFile,
				SHA:  github.BlobSHA([]byte(content)),
				Size: int64(len(content)),
			})
		}
	}
	for p, kind := range m.others {
		if child(p) {
			entries = append(entries, github.RemoteEntry{Path: p, Kind: kind})
		}
	}

	if dir != "" && len(entries) == 0 {
		return nil, github.ErrNotFound
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func (m *memRemote) begin(op, path string) error {
	if m.before != nil {
		m.before(op, path)
	}
	m.mu.Lock()
	m.calls = append(m.calls, op+" "+path)
	err := m.fail[op+" "+path]
	m.mu.Unlock()
	return err
}

func (m *memRemote) CreateFile(ctx context.Context, path string, content []byte) (string, error) {
	if err := m.begin("create", path); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; ok {
		return "", fmt.Errorf("create %s: %w", path, github.ErrAlreadyExists)
	}
	for dir := pathpkg.Dir(path); dir != "."; dir = pathpkg.Dir(dir) {
		if _, ok := m.files[dir]; ok {
			return "", fmt.Errorf("create %s: %s is a file", path, dir)
		}
	}
	m.files[path] = string(content)
	return github.BlobSHA(content), nil
}

func (m *memRemote) UpdateFile(ctx context.Context, path string, content []byte, sha string) (string, error) {
	if err := m.begin("update", path); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.files[path]
	if !ok {
		return "", fmt.Errorf("update %s: %w", path, github.ErrNotFound)
	}
	if github.BlobSHA([]byte(current)) != sha {
		return "", fmt.Errorf("update %s: %w", path, github.ErrStaleHash)
	}
	m.files[path] = string(content)
	return github.BlobSHA(content), nil
}

func (m *memRemote) DeleteFile(ctx context.Context, path string, sha string) error {
	if err := m.begin("delete", path); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.files[path]
	if !ok {
		return fmt.Errorf("delete %s: %w", path, github.ErrNotFound)
	}
	if github.BlobSHA([]byte(current)) != sha {
		return fmt.Errorf("delete %s: %w", path, github.ErrStaleHash)
	}
	delete(m.files, path)
	return nil
}
