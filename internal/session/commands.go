package session

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

type commandKind uint8

const (
	cmdNone commandKind = iota
	cmdHelp
	cmdSync
	cmdClose
	cmdCloseNoSync
	cmdShell
)

var commandNames = map[commandKind]string{
	cmdNone:        "none",
	cmdHelp:        "help",
	cmdSync:        "sync",
	cmdClose:       "close",
	cmdCloseNoSync: "close-dontsync",
	cmdShell:       "shell",
}

func (k commandKind) String() string {
	return commandNames[k]
}

type command struct {
	kind  commandKind
	shell string
}

// parseCommand maps a prompt line to a command. Anything that is not a
// built-in runs in the shell, with one leading `$` removed.
func parseCommand(line string) command {
	trimmed := strings.TrimSpace(line)
	fields := strings.Fields(trimmed)

	switch {
	case len(fields) == 0:
		return command{kind: cmdNone}
	case len(fields) == 1 && fields[0] == "sync":
		return command{kind: cmdSync}
	case len(fields) == 1 && fields[0] == "help":
		return command{kind: cmdHelp}
	case len(fields) == 1 && fields[0] == "close":
		return command{kind: cmdClose}
	case len(fields) == 2 && fields[0] == "close" && fields[1] == "-dontsync":
		return command{kind: cmdCloseNoSync}
	}

	shell := strings.TrimSpace(strings.TrimPrefix(trimmed, "$"))
	if shell == "" {
		return command{kind: cmdNone}
	}
	return command{kind: cmdShell, shell: shell}
}

func defaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return []string{"sh", "-c"}
}

// runShell runs line inside the workspace with the terminal passed through.
// Its exit status is logged and otherwise ignored.
func (s *Session) runShell(ctx context.Context, line string) {
	argv := append(append([]string{}, s.shell...), line)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = s.ws.Dir
	cmd.Stdout = s.out
	cmd.Stderr = s.errOut
	if f, ok := s.in.(*os.File); ok {
		cmd.Stdin = f
	}

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		s.logger.Debug("shell command exited", "command", line, "code", exitErr.ExitCode())
	case err != nil:
		s.print.status(levelError, "Failed to run %q: %v", line, err)
		s.logger.Debug("shell command failed to start", "command", line, "error", err)
	default:
		s.logger.Debug("shell command exited", "command", line, "code", 0)
	}
}
