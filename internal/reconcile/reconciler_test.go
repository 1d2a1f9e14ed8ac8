package reconcile

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/turnip-sync/turnip/internal/github"
	"github.com/turnip-sync/turnip/internal/workspace"
)

func newTree(t *testing.T, files map[string]string) *workspace.Tree {
	t.Helper()
	fs := osfs.New(t.TempDir())
	for p, c := range files {
		require.NoError(t, util.WriteFile(fs, p, []byte(c), 0o644))
	}
	return workspace.NewTree(fs)
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestSync_CreatesMissingFile(t *testing.T) {
	remote := newMemRemote(nil)
	tree := newTree(t, map[string]string{"a.txt": "hello"})

	report, err := New(remote, tree).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"a.txt"}, remote.paths())
	assert.Equal(t, []string{"create a.txt"}, remote.writeCalls())
	res, ok := report.Lookup("a.txt")
	require.True(t, ok)
	assert.Equal(t, ActionCreated, res.Action)
}

func TestSync_UpdatesWithRemoteHash(t *testing.T) {
	remote := newMemRemote(map[string]string{"a.txt": "old"})
	knownSHA := remote.sha("a.txt")
	tree := newTree(t, map[string]string{"a.txt": "new"})

	var gotSHA string
	wrapped := &shaSpy{memRemote: remote, seen: &gotSHA}

	report, err := New(wrapped, tree).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"update a.txt"}, remote.writeCalls())
	assert.Equal(t, knownSHA, gotSHA)
	assert.Equal(t, "new", remote.files["a.txt"])
	assert.Equal(t, 1, report.Count(ActionUpdated))
}

type shaSpy struct {
	*memRemote
	seen *string
}

func (s *shaSpy) UpdateFile(ctx context.Context, path string, content []byte, sha string) (string, error) {
	*s.seen = sha
	return s.memRemote.UpdateFile(ctx, path, content, sha)
}

func TestSync_DeletesRemoteOnlyDirectory(t *testing.T) {
	remote := newMemRemote(map[string]string{
		"keep.txt":         "k",
		"old/b.txt":        "b",
		"old/deeper/c.txt": "c",
	})
	tree := newTree(t, map[string]string{"keep.txt": "k"})

	report, err := New(remote, tree).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"keep.txt"}, remote.paths())
	assert.Equal(t, []string{"old"}, report.PrunedDirs)
	assert.Equal(t, 2, report.Count(ActionDeleted))
	assert.Equal(t, 1, report.Count(ActionUnchanged))

	_, err = remote.ListEntries(context.Background(), "old")
	assert.ErrorIs(t, err, github.ErrNotFound)
}

func TestSync_StaleHashDoesNotStopOtherFiles(t *testing.T) {
	remote := newMemRemote(map[string]string{"a.txt": "v1"})
	remote.fail["update a.txt"] = fmt.Errorf("update a.txt: %w", github.ErrStaleHash)
	tree := newTree(t, map[string]string{"a.txt": "v2", "b.txt": "b"})

	var mu sync.Mutex
	var streamed []string
	r := New(remote, tree, WithResultHandler(func(res Result) {
		mu.Lock()
		defer mu.Unlock()
		streamed = append(streamed, res.Path)
	}))

	report, err := r.Sync(context.Background())
	require.NoError(t, err)

	a, _ := report.Lookup("a.txt")
	assert.Equal(t, ActionErrored, a.Action)
	assert.ErrorIs(t, a.Err, github.ErrStaleHash)

	b, _ := report.Lookup("b.txt")
	assert.Equal(t, ActionCreated, b.Action)
	assert.Equal(t, "b", remote.files["b.txt"])

	assert.True(t, report.Failed())
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, streamed)
}

func TestSync_IsIdempotent(t *testing.T) {
	remote := newMemRemote(map[string]string{"gone.txt": "x", "a.txt": "1"})
	tree := newTree(t, map[string]string{"a.txt": "2", "dir/b.txt": "b"})
	r := New(remote, tree)

	_, err := r.Sync(context.Background())
	require.NoError(t, err)
	before := remote.paths()
	callsBefore := len(remote.writeCalls())

	report, err := r.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, before, remote.paths())
	assert.Len(t, remote.writeCalls(), callsBefore, "second sync must not write")
	assert.Equal(t, 2, report.Count(ActionUnchanged))
	assert.Len(t, report.Results, 2)
}

func TestSync_ConvergesToLocalSet(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	universe := []string{"a.txt", "b.txt", "d/c.txt", "d/e/f.txt", "g/h.txt", "g/i/j/k.txt", "z"}

	for round := 0; round < 25; round++ {
		round := round
		local, remoteFiles := map[string]string{}, map[string]string{}
		for _, p := range universe {
			switch rng.Intn(4) {
			case 0:
				local[p] = "l" + p
			case 1:
				remoteFiles[p] = "r" + p
			case 2:
				local[p] = "same"
				remoteFiles[p] = "same"
			}
		}

		t.Run(fmt.Sprintf("round-%d", round), func(t *testing.T) {
			remote := newMemRemote(remoteFiles)
			workers := 1 + round%4
			report, err := New(remote, newTree(t, local), WithWorkers(workers)).Sync(context.Background())
			require.NoError(t, err)
			assert.False(t, report.Failed())

			assert.Equal(t, sortedKeys(local), remote.paths())
			for p, content := range local {
				assert.Equal(t, content, remote.files[p])
			}

			// partition: a local path is never deleted, each path is touched at most once
			seen := map[string]bool{}
			for _, call := range remote.writeCalls() {
				op, p, _ := strings.Cut(call, " ")
				assert.False(t, seen[p], "path %s touched twice", p)
				seen[p] = true
				if op == "delete" {
					_, isLocal := local[p]
					assert.False(t, isLocal, "local path %s deleted", p)
				}
			}
		})
	}
}

func TestSync_FileWhereRemoteHasDirectory(t *testing.T) {
	remote := newMemRemote(map[string]string{"docs/readme.md": "r"})
	tree := newTree(t, map[string]string{"docs": "now a file"})
	r := New(remote, tree)

	report, err := r.Sync(context.Background())
	require.NoError(t, err)

	docs, _ := report.Lookup("docs")
	assert.Equal(t, ActionSkipped, docs.Action)
	assert.Equal(t, "remote path is a directory", docs.Detail)
	readme, _ := report.Lookup("docs/readme.md")
	assert.Equal(t, ActionDeleted, readme.Action)
	assert.Empty(t, remote.paths())

	// nothing is in the way any more
	report, err = r.Sync(context.Background())
	require.NoError(t, err)
	docs, _ = report.Lookup("docs")
	assert.Equal(t, ActionCreated, docs.Action)
	assert.Equal(t, []string{"docs"}, remote.paths())
}

func TestSync_ClearsRemoteFileInTheWayOfLocalDirectory(t *testing.T) {
	remote := newMemRemote(map[string]string{"a": "was a file", "keep.txt": "k"})
	tree := newTree(t, map[string]string{"a/x.txt": "x", "keep.txt": "k"})
	r := New(remote, tree)

	report, err := r.Sync(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Failed())
	assert.Equal(t, []string{"delete a", "create a/x.txt"}, remote.writeCalls())
	assert.Equal(t, []string{"a/x.txt", "keep.txt"}, remote.paths())
	a, _ := report.Lookup("a")
	assert.Equal(t, ActionDeleted, a.Action)

	plan, err := r.Plan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, plan.Clear)
	assert.Empty(t, plan.Create)
	assert.Empty(t, plan.Delete)
}

func TestSync_LeavesSymlinksAndSubmodulesAlone(t *testing.T) {
	remote := newMemRemote(map[string]string{"a.txt": "a", "tools/run.sh": "echo"})
	remote.others["bin"] = github.KindSymlink
	remote.others["tools/lib"] = github.KindSubmodule
	tree := newTree(t, map[string]string{"a.txt": "a", "bin": "a local file"})

	report, err := New(remote, tree).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"delete tools/run.sh"}, remote.writeCalls())
	bin, _ := report.Lookup("bin")
	assert.Equal(t, ActionSkipped, bin.Action)
	assert.Equal(t, "remote path is a symlink", bin.Detail)
	_, touched := report.Lookup("tools/lib")
	assert.False(t, touched)
	assert.Empty(t, report.PrunedDirs, "tools still holds the submodule")
}

func TestSync_UntouchedCheckoutWithSymlinkWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range []struct {
		name, body string
		mode       os.FileMode
	}{
		{name: "notes-main/README.md", body: "# notes"},
		{name: "notes-main/link", body: "README.md", mode: os.ModeSymlink | 0o777},
		{name: "notes-main/vendor/lib/", mode: os.ModeDir | 0o755},
	} {
		hdr := &zip.FileHeader{Name: e.name}
		if e.mode != 0 {
			hdr.SetMode(e.mode)
		}
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(e.body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	ws, err := workspace.New(t.TempDir(), "notes")
	require.NoError(t, err)
	archive := bytes.NewReader(buf.Bytes())
	require.NoError(t, ws.Materialize(archive, archive.Size()))

	// listings may report a symlink as a plain file holding its target
	remote := newMemRemote(map[string]string{"README.md": "# notes", "link": "README.md"})
	remote.others["vendor/lib"] = github.KindSubmodule

	report, err := New(remote, ws.Tree()).Sync(context.Background())
	require.NoError(t, err)

	assert.Empty(t, remote.writeCalls())
	assert.Equal(t, []string{"README.md", "link"}, remote.paths())
	assert.Equal(t, 1, report.Count(ActionUnchanged))
	assert.Empty(t, report.PrunedDirs)
}

func TestSync_ConcurrentCreateIsSwallowed(t *testing.T) {
	remote := newMemRemote(nil)
	remote.before = func(op, path string) {
		if op == "create" && path == "a.txt" {
			remote.mu.Lock()
			remote.files["a.txt"] = "raced"
			remote.mu.Unlock()
		}
	}
	tree := newTree(t, map[string]string{"a.txt": "mine"})

	report, err := New(remote, tree).Sync(context.Background())
	require.NoError(t, err)

	res, _ := report.Lookup("a.txt")
	assert.Equal(t, ActionSkipped, res.Action)
	assert.Equal(t, "already exists remotely", res.Detail)
	assert.False(t, report.Failed())
	assert.Equal(t, "raced", remote.files["a.txt"])
}

func TestSync_DeleteOfVanishedFileIsBenign(t *testing.T) {
	remote := newMemRemote(map[string]string{"x.txt": "x"})
	remote.before = func(op, path string) {
		if op == "delete" {
			remote.mu.Lock()
			delete(remote.files, path)
			remote.mu.Unlock()
		}
	}
	tree := newTree(t, map[string]string{"keep.txt": "k"})

	report, err := New(remote, tree).Sync(context.Background())
	require.NoError(t, err)

	res, _ := report.Lookup("x.txt")
	assert.Equal(t, ActionDeleted, res.Action)
	assert.Equal(t, "already gone", res.Detail)
	assert.False(t, report.Failed())
}

func TestSync_IgnoredRemotePathsSurvive(t *testing.T) {
	remote := newMemRemote(map[string]string{"build/out.bin": "0101", "a.log": "l", "old.txt": "o"})
	tree := newTree(t, map[string]string{
		".turnipignore": "build/\n*.log\n",
		"build/local.bin": "local",
	})

	report, err := New(remote, tree).Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{".turnipignore", "a.log", "build/out.bin"}, remote.paths())
	_, touched := report.Lookup("build/local.bin")
	assert.False(t, touched)
	old, _ := report.Lookup("old.txt")
	assert.Equal(t, ActionDeleted, old.Action)
}

func TestSync_ListFailureAbortsBeforeWriting(t *testing.T) {
	remote := newMemRemote(map[string]string{"a.txt": "a"})
	remote.listErr = errors.New("boom")
	tree := newTree(t, map[string]string{"b.txt": "b"})

	_, err := New(remote, tree).Sync(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Empty(t, remote.writeCalls())
}

func TestSync_MissingLocalRootAbortsBeforeWriting(t *testing.T) {
	remote := newMemRemote(map[string]string{"a.txt": "a"})
	tree := workspace.NewTree(osfs.New(t.TempDir() + "/missing"))

	_, err := New(remote, tree).Sync(context.Background())
	require.Error(t, err)
	assert.Empty(t, remote.writeCalls())
	assert.Equal(t, []string{"a.txt"}, remote.paths())
}

func TestWalkRemote_DeepTree(t *testing.T) {
	parts := make([]string, 300)
	for i := range parts {
		parts[i] = fmt.Sprintf("d%d", i)
	}
	deep := strings.Join(parts, "/") + "/leaf.txt"
	remote := newMemRemote(map[string]string{deep: "x", "top.txt": "t"})

	entries, err := WalkRemote(context.Background(), remote)
	require.NoError(t, err)

	files := 0
	dirs := 0
	for _, e := range entries {
		if e.IsDir() {
			dirs++
		} else {
			files++
		}
	}
	assert.Equal(t, 2, files)
	assert.Equal(t, 300, dirs)
}

func TestWalkRemote_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := WalkRemote(ctx, newMemRemote(map[string]string{"a": "a"}))
	assert.ErrorIs(t, err, context.Canceled)
}
