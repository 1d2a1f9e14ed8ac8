package reconcile

import (
	"path"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/turnip-sync/turnip/internal/github"
	"github.com/turnip-sync/turnip/internal/workspace"
)

// Update pairs a local file with the remote file it overwrites
type Update struct {
	File   workspace.LocalFile
	Remote github.RemoteEntry
}

// Conflict is a local file whose path holds something else remotely: a directory,
// a symlink or a submodule
type Conflict struct {
	Path   string
	Reason string
}

// SyncPlan is computed fresh for every sync and never stored.
// A path appears in at most one of Clear, Create, Update, Delete and Conflicts.
type SyncPlan struct {
	// Clear holds remote files sitting where the local side has a directory.
	// They are deleted before any write so the files below can be created.
	Clear     []github.RemoteEntry
	Create    []workspace.LocalFile
	Update    []Update
	Delete    []github.RemoteEntry
	Conflicts []Conflict

	// PrunedDirs are the top-most remote directories with no local file below them.
	// Every file they hold is in Delete.
	PrunedDirs []string
}

// Empty reports whether the plan has nothing to do
func (p *SyncPlan) Empty() bool {
	return len(p.Clear) == 0 && len(p.Create) == 0 && len(p.Update) == 0 &&
		len(p.Delete) == 0 && len(p.Conflicts) == 0
}

// BuildPlan diffs the local file set against the remote tree. remote holds
// both files and directories, as returned by WalkRemote. Remote paths matched
// by ignore are left alone, as are symlinks and submodules.
func BuildPlan(local []workspace.LocalFile, remote []github.RemoteEntry, ignore *workspace.IgnoreList) *SyncPlan {
	plan := &SyncPlan{}

	index := make(map[string]github.RemoteEntry, len(remote))
	for _, e := range remote {
		index[e.Path] = e
	}

	localPaths := mapset.NewThreadUnsafeSetWithSize[string](len(local))
	localDirs := mapset.NewThreadUnsafeSet[string]()
	for _, f := range local {
		localPaths.Add(f.RelPath)
		for dir := path.Dir(f.RelPath); dir != "."; dir = path.Dir(dir) {
			localDirs.Add(dir)
		}
	}

	for _, f := range local {
		entry, ok := index[f.RelPath]
		switch {
		case !ok:
			plan.Create = append(plan.Create, f)
		case !entry.IsFile():
			plan.Conflicts = append(plan.Conflicts, Conflict{
				Path:   f.RelPath,
				Reason: "remote path is a " + entry.Kind.String(),
			})
		default:
			plan.Update = append(plan.Update, Update{File: f, Remote: entry})
		}
	}

	sorted := make([]github.RemoteEntry, len(remote))
	copy(sorted, remote)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	// directories holding anything the sync leaves alone stay remotely
	kept := mapset.NewThreadUnsafeSet[string]()
	for _, e := range sorted {
		if isIgnored(ignore, e) || (!e.IsDir() && !e.IsFile()) {
			for dir := path.Dir(e.Path); dir != "."; dir = path.Dir(dir) {
				kept.Add(dir)
			}
		}
	}

	pruned := mapset.NewThreadUnsafeSet[string]()
	for _, e := range sorted {
		if isIgnored(ignore, e) {
			continue
		}

		if e.IsDir() {
			if localDirs.Contains(e.Path) || localPaths.Contains(e.Path) || kept.Contains(e.Path) {
				continue
			}
			if !hasAncestorIn(pruned, e.Path) {
				plan.PrunedDirs = append(plan.PrunedDirs, e.Path)
			}
			pruned.Add(e.Path)
			continue
		}

		switch {
		case !e.IsFile() || localPaths.Contains(e.Path):
		case localDirs.Contains(e.Path):
			plan.Clear = append(plan.Clear, e)
		default:
			plan.Delete = append(plan.Delete, e)
		}
	}

	return plan
}

func isIgnored(ignore *workspace.IgnoreList, e github.RemoteEntry) bool {
	if ignore == nil {
		return false
	}
	if e.IsDir() {
		return ignore.ShouldIgnore(e.Path + "/")
	}
	return ignore.ShouldIgnore(e.Path)
}

func hasAncestorIn(set mapset.Set[string], p string) bool {
	for dir := path.Dir(p); dir != "."; dir = path.Dir(dir) {
		if set.Contains(dir) {
			return true
		}
	}
	return false
}
