// Package session runs one interactive editing session against a repository:
// it checks the branch out into a local workspace, reads commands until the
// user closes it, and pushes the workspace back on request.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/turnip-sync/turnip/internal/github"
	"github.com/turnip-sync/turnip/internal/reconcile"
	"github.com/turnip-sync/turnip/internal/workspace"
)

var (
	ErrNotStarted = errors.New("session not started")
	ErrClosed     = errors.New("session closed")
)

// Remote is everything a session needs from the hosted repository
type Remote interface {
	reconcile.Remote
	FullName() string
	Branch() string
	UseBranch(branch string)
	Repo(ctx context.Context) (*github.Repository, error)
	FetchArchive(ctx context.Context, branch string, dst io.Writer) (int64, error)
}

var _ Remote = (*github.Client)(nil)

type State uint8

const (
	StateNew State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "new"
	}
}

type Session struct {
	id     string
	remote Remote
	ws     *workspace.Workspace
	state  State

	in         io.Reader
	out        io.Writer
	errOut     io.Writer
	interrupts <-chan os.Signal
	shell      []string

	workers int
	logger  *slog.Logger
	print   *printer
	lines   *lineReader
}

type Option func(*Session)

// WithIO replaces stdin, stdout and stderr
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(s *Session) {
		s.in = in
		s.out = out
		s.errOut = errOut
	}
}

// WithInterrupts delivers the signals that should cancel the current prompt line
func WithInterrupts(ch <-chan os.Signal) Option {
	return func(s *Session) {
		s.interrupts = ch
	}
}

func WithWorkers(n int) Option {
	return func(s *Session) {
		s.workers = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithShell sets the command line prefix used to run passthrough commands
func WithShell(argv ...string) Option {
	return func(s *Session) {
		s.shell = argv
	}
}

func New(remote Remote, ws *workspace.Workspace, opts ...Option) *Session {
	s := &Session{
		id:      uuid.NewString(),
		remote:  remote,
		ws:      ws,
		in:      os.Stdin,
		out:     os.Stdout,
		errOut:  os.Stderr,
		shell:   defaultShell(),
		workers: reconcile.DefaultWorkers,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.With("session", s.id, "repo", remote.FullName())
	s.print = newPrinter(s.out)
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	return s.state
}

// Start claims the workspace and fills it with a fresh snapshot of the branch.
// Every failure here is fatal for the session.
func (s *Session) Start(ctx context.Context) (err error) {
	if s.state != StateNew {
		return fmt.Errorf("session already %s", s.state)
	}

	if err := s.ws.Lock(); err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if uErr := s.ws.Unlock(); uErr != nil {
				s.logger.Warn("failed to release workspace lock", "error", uErr)
			}
		}
	}()

	repo, err := s.remote.Repo(ctx)
	if err != nil {
		return err
	}
	s.print.status(levelSuccess, "Connected to %s", s.remote.FullName())
	if !repo.Permissions.Push {
		s.print.status(levelWarning, "Token has no push access to %s, sync will fail", s.remote.FullName())
	}

	branch := s.remote.Branch()
	if branch == "" {
		branch = repo.DefaultBranch
		s.remote.UseBranch(branch)
	}
	s.logger.Debug("using branch", "branch", branch)

	size, err := s.download(ctx, branch)
	if err != nil {
		return err
	}

	s.state = StateActive
	s.logger.Info("session started", "dir", s.ws.Dir, "branch", branch, "archive_size", size)

	s.print.downloaded(size, s.ws.Dir)
	s.print.preserved(s.ws.Tree().Preserved())
	s.print.box("Session Started", [][2]string{
		{"Repository", s.remote.FullName()},
		{"Branch", branch},
		{"Location", s.ws.Dir},
	})
	s.print.commands()
	return nil
}

// download fetches the archive into a temp file and extracts it into the workspace
func (s *Session) download(ctx context.Context, branch string) (int64, error) {
	tmp, err := os.CreateTemp("", "turnip-*.zip")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	size, err := s.remote.FetchArchive(ctx, branch, tmp)
	if err != nil {
		return 0, err
	}

	if err := s.ws.Materialize(tmp, size); err != nil {
		return 0, err
	}
	return size, nil
}

// Run reads and executes commands until the session closes. It returns nil
// once the session closed on request, at end of input or on cancellation.
func (s *Session) Run(ctx context.Context) error {
	switch s.state {
	case StateNew:
		return ErrNotStarted
	case StateClosed:
		return ErrClosed
	}

	s.lines = newLineReader(s.in)
	defer s.lines.stop()

	for s.state == StateActive {
		s.print.prompt(s.remote.FullName())

		line, err := s.readLine(ctx)
		switch {
		case errors.Is(err, errInterrupted):
			fmt.Fprintln(s.out)
			continue
		case ctx.Err() != nil:
			fmt.Fprintln(s.out)
			s.logger.Info("session cancelled", "reason", context.Cause(ctx))
			return s.closeSession(context.WithoutCancel(ctx), false)
		case errors.Is(err, io.EOF):
			fmt.Fprintln(s.out)
			s.logger.Info("end of input")
			return s.closeSession(ctx, false)
		case err != nil:
			s.logger.Error("failed to read command", "error", err)
			return errors.Join(err, s.closeSession(ctx, false))
		}

		if err := s.execute(ctx, line); err != nil {
			return err
		}
	}

	return nil
}

var errInterrupted = errors.New("interrupted")

// readLine waits for the next line, an interrupt or cancellation
func (s *Session) readLine(ctx context.Context) (string, error) {
	res := s.lines.next()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.interrupts:
		// the read stays in flight and answers the next prompt
		s.lines.pending = res
		return "", errInterrupted
	case r := <-res:
		if r.err != nil && r.line == "" {
			return "", r.err
		}
		return r.line, nil
	}
}

// execute runs one command line
func (s *Session) execute(ctx context.Context, line string) error {
	cmd := parseCommand(line)
	s.logger.Debug("command", "kind", cmd.kind, "line", line)

	switch cmd.kind {
	case cmdNone:
	case cmdHelp:
		s.print.commands()
	case cmdSync:
		fmt.Fprintln(s.out)
		if _, err := s.sync(ctx); err != nil {
			s.print.status(levelError, "Sync failed: %v", err)
		}
		fmt.Fprintln(s.out)
	case cmdClose:
		fmt.Fprintln(s.out)
		return s.closeSession(ctx, true)
	case cmdCloseNoSync:
		fmt.Fprintln(s.out)
		return s.closeSession(ctx, false)
	case cmdShell:
		s.runShell(ctx, cmd.shell)
		s.drainInterrupts()
	}
	return nil
}

// sync pushes the workspace to the branch and prints what happened
func (s *Session) sync(ctx context.Context) (*reconcile.Report, error) {
	s.print.status(levelInfo, "Starting sync...")

	r := reconcile.New(s.remote, s.ws.Tree(),
		reconcile.WithWorkers(s.workers),
		reconcile.WithLogger(s.logger),
		reconcile.WithResultHandler(s.print.result),
	)

	report, err := r.Sync(ctx)
	if err != nil {
		s.logger.Error("sync aborted", "error", err)
		return nil, err
	}

	s.logger.Info("sync finished",
		"created", report.Count(reconcile.ActionCreated),
		"updated", report.Count(reconcile.ActionUpdated),
		"deleted", report.Count(reconcile.ActionDeleted),
		"unchanged", report.Count(reconcile.ActionUnchanged),
		"skipped", report.Count(reconcile.ActionSkipped),
		"errored", report.Count(reconcile.ActionErrored),
		"duration", report.Duration,
	)
	s.print.summary(report)
	return report, nil
}

// closeSession optionally syncs, then removes the workspace. A sync that could
// not read either side keeps the session open so no local edit is lost.
func (s *Session) closeSession(ctx context.Context, withSync bool) error {
	if withSync {
		if _, err := s.sync(ctx); err != nil {
			s.print.status(levelError, "Sync failed, session kept open: %v", err)
			s.print.status(levelInfo, "Use `close -dontsync` to discard local changes")
			fmt.Fprintln(s.out)
			return nil
		}
		fmt.Fprintln(s.out)
	}

	s.state = StateClosed
	if err := s.ws.Destroy(); err != nil {
		s.print.status(levelError, "Failed to remove %s: %v", s.ws.Dir, err)
		return err
	}

	if withSync {
		s.print.status(levelSuccess, "Session closed")
	} else {
		s.print.status(levelWarning, "Session closed without syncing")
	}
	fmt.Fprintln(s.out)

	s.logger.Info("session closed", "synced", withSync)
	return nil
}

func (s *Session) drainInterrupts() {
	for {
		select {
		case <-s.interrupts:
		default:
			return
		}
	}
}

type lineResult struct {
	line string
	err  error
}

// lineReader reads one line per request so that nothing is consumed from the
// input while a shell command owns the terminal
type lineReader struct {
	r       *bufio.Reader
	req     chan chan lineResult
	pending chan lineResult
}

func newLineReader(in io.Reader) *lineReader {
	l := &lineReader{
		r:   bufio.NewReader(in),
		req: make(chan chan lineResult),
	}
	go l.loop()
	return l
}

func (l *lineReader) loop() {
	for res := range l.req {
		line, err := l.r.ReadString('\n')
		res <- lineResult{line: strings.TrimRight(line, "\r\n"), err: err}
	}
}

func (l *lineReader) next() chan lineResult {
	if l.pending != nil {
		res := l.pending
		l.pending = nil
		return res
	}
	res := make(chan lineResult, 1)
	l.req <- res
	return res
}

func (l *lineReader) stop() {
	close(l.req)
}
