package workspace

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

var (
	ErrUnsafeArchivePath = errors.New("archive entry escapes the workspace")
)

// Materialize replaces the checkout with the contents of a zip archive.
// Hosted archives wrap everything in one `{repo}-{branch}/` folder; that folder is stripped.
func (w *Workspace) Materialize(archive io.ReaderAt, size int64) error {
	r, err := zip.NewReader(archive, size)
	if errors.Is(err, zip.ErrInsecurePath) {
		return fmt.Errorf("%w: %w", ErrUnsafeArchivePath, err)
	} else if err != nil {
		return fmt.Errorf("zip open: %w", err)
	}

	if err := w.reset(); err != nil {
		return err
	}

	w.tree.preserved = nil
	preserved, err := extract(w.tree, r.File)
	if err != nil {
		// leave nothing half-written behind
		if rErr := os.RemoveAll(w.Dir); rErr != nil {
			slog.Warn("failed to cleanup partially extracted workspace", "dir", w.Dir, "error", rErr)
		}
		return fmt.Errorf("failed to extract archive: %w", err)
	}

	w.tree.preserved = preserved
	if len(preserved) > 0 {
		slog.Debug("archive paths kept out of the sync", "paths", preserved)
	}
	return nil
}

// extract writes the archive into t. It returns the paths that cannot be checked
// out: symlinks, and empty folders, which is how a hosted archive shows a submodule.
func extract(t *Tree, files []*zip.File) ([]string, error) {
	prefix := archiveRoot(files)

	var preserved []string
	dirs := mapset.NewThreadUnsafeSet[string]()
	parents := mapset.NewThreadUnsafeSet[string]()

	for _, f := range files {
		name, err := entryPath(f.Name, prefix)
		if err != nil {
			return nil, err
		}
		if name == "" {
			continue
		}
		for dir := path.Dir(name); dir != "."; dir = path.Dir(dir) {
			parents.Add(dir)
		}

		mode := f.Mode()
		switch {
		case mode.IsDir():
			if err := t.fs.MkdirAll(name, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create directory %q: %w", name, err)
			}
			dirs.Add(name)
		case mode&os.ModeSymlink != 0:
			slog.Warn("skipping symlink in archive", "path", name)
			preserved = append(preserved, name)
		default:
			if err := extractFile(t, f, name); err != nil {
				return nil, err
			}
		}
	}

	for _, dir := range dirs.ToSlice() {
		if !parents.Contains(dir) {
			preserved = append(preserved, dir)
		}
	}
	sort.Strings(preserved)
	return preserved, nil
}

func extractFile(t *Tree, f *zip.File, name string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("zip open file %q: %w", f.Name, err)
	}
	defer rc.Close()

	perm := f.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}

	out, err := t.fs.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("zip extract file %q: %w", name, err)
	}

	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("zip extract file %q: %w", name, err)
	}
	return out.Close()
}

// archiveRoot returns the single top-level folder shared by every entry, or "" when there isn't one
func archiveRoot(files []*zip.File) string {
	root := ""
	for _, f := range files {
		name := strings.TrimPrefix(f.Name, "./")
		first, _, nested := strings.Cut(name, "/")
		if !nested {
			// a file at the top level means nothing is wrapped
			return ""
		}
		if root == "" {
			root = first
		} else if root != first {
			return ""
		}
	}
	if root == "" {
		return ""
	}
	return root + "/"
}

// entryPath removes the wrapper folder and rejects names that would land outside the checkout
func entryPath(name, prefix string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, prefix)
	if name == "" || name == "/" {
		return "", nil
	}

	if path.IsAbs(name) || strings.HasPrefix(name, "../") || strings.Contains(name, "/../") || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrUnsafeArchivePath, name)
	}

	clean := path.Clean(name)
	if clean == "." {
		return "", nil
	}
	return clean, nil
}
