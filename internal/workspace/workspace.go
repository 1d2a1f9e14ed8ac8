package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/gofrs/flock"
	"github.com/turnip-sync/turnip/internal/utils"
)

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another session")
)

// Workspace is the local checkout of one repository under the data dir.
// It exists from archive extraction until the session closes.
type Workspace struct {
	Root string // data dir holding every workspace
	Dir  string // checkout of this repository

	tree  *Tree
	flock *flock.Flock
}

func New(dataDir string, name string) (*Workspace, error) {
	root, err := utils.ResolvePath(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", dataDir, err)
	}

	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return nil, fmt.Errorf("invalid workspace name %q", name)
	}

	dir := filepath.Join(root, name)
	return &Workspace{
		Root:  root,
		Dir:   dir,
		tree:  NewTree(osfs.New(dir)),
		flock: flock.New(filepath.Join(root, "."+name+".lock")),
	}, nil
}

// Tree gives file level access to the checkout
func (w *Workspace) Tree() *Tree {
	return w.tree
}

// Lock makes this process the only session working on the checkout
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Root, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// only the owner of the lock removes the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// Exists reports whether the checkout directory is present
func (w *Workspace) Exists() bool {
	return utils.DirExists(w.Dir)
}

// Destroy deletes the checkout and releases the lock
func (w *Workspace) Destroy() error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", w.Dir, err)
	}
	slog.Debug("workspace removed", "dir", w.Dir)
	return w.Unlock()
}

// reset wipes a checkout left over from an earlier session
func (w *Workspace) reset() error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("failed to clear stale workspace %s: %w", w.Dir, err)
	}
	return os.MkdirAll(w.Dir, 0o755)
}
