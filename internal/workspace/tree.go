package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
)

// LocalFile is a regular file found in the checkout
type LocalFile struct {
	RelPath string // slash separated, relative to the checkout root
	AbsPath string
}

// Tree reads a checkout through a billy filesystem rooted at the checkout
type Tree struct {
	fs billy.Filesystem

	// archive paths with no local form, set by Materialize
	preserved []string
}

func NewTree(fs billy.Filesystem) *Tree {
	return &Tree{fs: fs}
}

// Root is the directory the tree is rooted at
func (t *Tree) Root() string {
	return t.fs.Root()
}

// Ignore loads the ignore list, including the checkout's .turnipignore and
// .turnipignore.local if they exist. They are read on every call so edits apply to the next sync.
func (t *Tree) Ignore() (*IgnoreList, error) {
	var files [][]byte
	for _, name := range []string{IgnoreFileName, LocalIgnoreFileName} {
		data, err := util.ReadFile(t.fs, name)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		files = append(files, data)
	}
	return NewIgnoreList(files...).Exclude(t.preserved...), nil
}

// Preserved lists the symlinks and submodules of the last materialized archive.
// They are never checked out and syncs leave them alone on both sides.
func (t *Tree) Preserved() []string {
	return t.preserved
}

// Files lists every regular file under the root, sorted by path. Symlinks and
// ignored paths are left out. A missing root is an error, never an empty tree.
func (t *Tree) Files() ([]LocalFile, error) {
	ignore, err := t.Ignore()
	if err != nil {
		return nil, err
	}

	if _, err := t.fs.Stat(""); err != nil {
		return nil, fmt.Errorf("workspace root %s: %w", t.Root(), err)
	}

	var files []LocalFile
	stack := []string{""}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		infos, err := t.fs.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read dir %q: %w", dir, err)
		}

		for _, info := range infos {
			rel := path.Join(dir, info.Name())
			switch {
			case info.IsDir():
				if !ignore.ShouldIgnore(rel + "/") {
					stack = append(stack, rel)
				}
			case info.Mode().IsRegular():
				if !ignore.ShouldIgnore(rel) {
					files = append(files, LocalFile{
						RelPath: rel,
						AbsPath: filepath.Join(t.Root(), filepath.FromSlash(rel)),
					})
				}
			}
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

// ReadFile returns the content of a file by its relative path
func (t *Tree) ReadFile(relPath string) ([]byte, error) {
	return util.ReadFile(t.fs, relPath)
}
