package reconcile

import (
	"context"

	"github.com/turnip-sync/turnip/internal/github"
	"github.com/turnip-sync/turnip/internal/workspace"
)

// Remote is the per-file api of the hosted repository
type Remote interface {
	ListEntries(ctx context.Context, dirPath string) ([]github.RemoteEntry, error)
	CreateFile(ctx context.Context, path string, content []byte) (string, error)
	UpdateFile(ctx context.Context, path string, content []byte, expectedSHA string) (string, error)
	DeleteFile(ctx context.Context, path string, expectedSHA string) error
}

// LocalTree is the checkout being pushed
type LocalTree interface {
	Files() ([]workspace.LocalFile, error)
	ReadFile(relPath string) ([]byte, error)
	Ignore() (*workspace.IgnoreList, error)
}

var (
	_ Remote    = (*github.Client)(nil)
	_ LocalTree = (*workspace.Tree)(nil)
)

type Action uint8

const (
	ActionCreated Action = iota
	ActionUpdated
	ActionUnchanged
	ActionDeleted
	ActionSkipped
	ActionErrored
)

var actionNames = []string{
	"created",
	"updated",
	"unchanged",
	"deleted",
	"skipped",
	"errored",
}

func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return "unknown"
}

// Result is the outcome of one path in a sync
type Result struct {
	Path   string
	Action Action
	Detail string // why a path was skipped, or a note such as "already gone"
	Err    error
}
