package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/turnip-sync/turnip/internal/github"
	"github.com/turnip-sync/turnip/internal/workspace"
	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is sequential: each contents api write is a commit on the
// branch and parallel commits race on the branch head.
const DefaultWorkers = 1

type Reconciler struct {
	remote   Remote
	tree     LocalTree
	workers  int
	onResult func(Result)
	logger   *slog.Logger
}

type Option func(*Reconciler)

// WithWorkers sets how many per-file calls may run at once
func WithWorkers(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithResultHandler receives every result as soon as its path is done.
// Calls are serialized.
func WithResultHandler(fn func(Result)) Option {
	return func(r *Reconciler) {
		r.onResult = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

func New(remote Remote, tree LocalTree, opts ...Option) *Reconciler {
	r := &Reconciler{
		remote:  remote,
		tree:    tree,
		workers: DefaultWorkers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan reads both sides and computes what a sync would do
func (r *Reconciler) Plan(ctx context.Context) (*SyncPlan, error) {
	ignore, err := r.tree.Ignore()
	if err != nil {
		return nil, err
	}

	local, err := r.tree.Files()
	if err != nil {
		return nil, fmt.Errorf("enumerate local files: %w", err)
	}

	remote, err := WalkRemote(ctx, r.remote)
	if err != nil {
		return nil, err
	}

	plan := BuildPlan(local, remote, ignore)
	r.logger.Debug("sync plan",
		"local", len(local),
		"remote", len(remote),
		"clear", len(plan.Clear),
		"create", len(plan.Create),
		"update", len(plan.Update),
		"delete", len(plan.Delete),
		"conflicts", len(plan.Conflicts),
	)
	return plan, nil
}

// Sync plans and applies in one go. Only a failure to read either side is
// returned as an error; per-file failures are part of the report.
func (r *Reconciler) Sync(ctx context.Context) (*Report, error) {
	plan, err := r.Plan(ctx)
	if err != nil {
		return nil, err
	}
	return r.Apply(ctx, plan), nil
}

// Apply issues one call per path in the plan. Files in the way of a local
// directory are deleted first, then creates and updates run, then the
// remaining deletes. A failing path never stops the others.
func (r *Reconciler) Apply(ctx context.Context, plan *SyncPlan) *Report {
	start := time.Now()
	c := &collector{onResult: r.onResult}

	for _, conflict := range plan.Conflicts {
		r.logger.Warn("sync conflict, skipping", "path", conflict.Path, "reason", conflict.Reason)
		c.add(Result{Path: conflict.Path, Action: ActionSkipped, Detail: conflict.Reason})
	}

	var clears errgroup.Group
	clears.SetLimit(r.workers)
	for _, e := range plan.Clear {
		e := e
		clears.Go(func() error {
			c.add(r.delete(ctx, e))
			return nil
		})
	}
	_ = clears.Wait()

	var writes errgroup.Group
	writes.SetLimit(r.workers)
	for _, f := range plan.Create {
		f := f
		writes.Go(func() error {
			c.add(r.create(ctx, f))
			return nil
		})
	}
	for _, u := range plan.Update {
		u := u
		writes.Go(func() error {
			c.add(r.update(ctx, u))
			return nil
		})
	}
	_ = writes.Wait()

	var deletes errgroup.Group
	deletes.SetLimit(r.workers)
	for _, e := range plan.Delete {
		e := e
		deletes.Go(func() error {
			c.add(r.delete(ctx, e))
			return nil
		})
	}
	_ = deletes.Wait()

	return &Report{
		Results:    c.results,
		Duration:   time.Since(start),
		PrunedDirs: plan.PrunedDirs,
	}
}

func (r *Reconciler) create(ctx context.Context, f workspace.LocalFile) Result {
	content, res, ok := r.read(f)
	if !ok {
		return res
	}

	_, err := r.remote.CreateFile(ctx, f.RelPath, content)
	switch {
	case errors.Is(err, github.ErrAlreadyExists):
		// someone else created it first; their copy stays until the next sync
		r.logger.Info("file created concurrently", "path", f.RelPath)
		return Result{Path: f.RelPath, Action: ActionSkipped, Detail: "already exists remotely"}
	case err != nil:
		return r.failed(f.RelPath, "create", err)
	}

	r.logger.Debug("file created", "path", f.RelPath)
	return Result{Path: f.RelPath, Action: ActionCreated}
}

func (r *Reconciler) update(ctx context.Context, u Update) Result {
	content, res, ok := r.read(u.File)
	if !ok {
		return res
	}

	if github.BlobSHA(content) == u.Remote.SHA {
		return Result{Path: u.File.RelPath, Action: ActionUnchanged}
	}

	if _, err := r.remote.UpdateFile(ctx, u.File.RelPath, content, u.Remote.SHA); err != nil {
		return r.failed(u.File.RelPath, "update", err)
	}

	r.logger.Debug("file updated", "path", u.File.RelPath)
	return Result{Path: u.File.RelPath, Action: ActionUpdated}
}

func (r *Reconciler) delete(ctx context.Context, e github.RemoteEntry) Result {
	err := r.remote.DeleteFile(ctx, e.Path, e.SHA)
	switch {
	case errors.Is(err, github.ErrNotFound):
		return Result{Path: e.Path, Action: ActionDeleted, Detail: "already gone"}
	case err != nil:
		return r.failed(e.Path, "delete", err)
	}

	r.logger.Debug("file deleted", "path", e.Path)
	return Result{Path: e.Path, Action: ActionDeleted}
}

// read loads a local file. A file removed since enumeration is skipped, not failed.
func (r *Reconciler) read(f workspace.LocalFile) ([]byte, Result, bool) {
	content, err := r.tree.ReadFile(f.RelPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		r.logger.Warn("file disappeared before upload", "path", f.RelPath)
		return nil, Result{Path: f.RelPath, Action: ActionSkipped, Detail: "file not found locally"}, false
	case err != nil:
		return nil, r.failed(f.RelPath, "read", err), false
	}
	return content, Result{}, true
}

func (r *Reconciler) failed(path, op string, err error) Result {
	r.logger.Error("sync failed", "op", op, "path", path, "error", err)
	return Result{Path: path, Action: ActionErrored, Err: fmt.Errorf("%s %s: %w", op, path, err)}
}
