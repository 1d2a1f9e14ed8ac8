package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/turnip-sync/turnip/internal/github"
)

// WalkRemote lists the whole remote tree, files and directories, depth first.
// It keeps its own stack of directories so nesting depth never grows the call stack.
// A directory that vanishes while being walked is skipped.
func WalkRemote(ctx context.Context, remote Remote) ([]github.RemoteEntry, error) {
	var all []github.RemoteEntry

	stack := []string{""}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := remote.ListEntries(ctx, dir)
		if errors.Is(err, github.ErrNotFound) && dir != "" {
			continue
		} else if err != nil {
			return nil, fmt.Errorf("list remote %q: %w", dir, err)
		}

		for _, e := range entries {
			all = append(all, e)
			if e.IsDir() {
				stack = append(stack, e.Path)
			}
		}
	}

	return all, nil
}
