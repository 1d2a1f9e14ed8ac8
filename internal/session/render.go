package session

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/turnip-sync/turnip/internal/reconcile"
)

type level uint8

const (
	levelInfo level = iota
	levelSuccess
	levelWarning
	levelError
)

var levelIcons = map[level]string{
	levelInfo:    "→",
	levelSuccess: "✓",
	levelWarning: "⚠",
	levelError:   "✗",
}

const boxWidth = 45

// printer renders everything the user sees. Colors follow what w supports.
type printer struct {
	w io.Writer
	r *lipgloss.Renderer

	magenta lipgloss.Style
	cyan    lipgloss.Style
	green   lipgloss.Style
	red     lipgloss.Style
	yellow  lipgloss.Style
	gray    lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		w:       w,
		r:       r,
		magenta: r.NewStyle().Foreground(lipgloss.Color("13")),
		cyan:    r.NewStyle().Foreground(lipgloss.Color("14")),
		green:   r.NewStyle().Foreground(lipgloss.Color("10")),
		red:     r.NewStyle().Foreground(lipgloss.Color("9")),
		yellow:  r.NewStyle().Foreground(lipgloss.Color("11")),
		gray:    r.NewStyle().Foreground(lipgloss.Color("242")),
	}
}

func (p *printer) levelStyle(l level) lipgloss.Style {
	switch l {
	case levelSuccess:
		return p.green
	case levelWarning:
		return p.yellow
	case levelError:
		return p.red
	default:
		return p.gray
	}
}

func (p *printer) banner() {
	title := lipgloss.JoinVertical(lipgloss.Center,
		p.magenta.Bold(true).Render("Turnip"),
		p.magenta.Render("GitHub Sync Manager"),
	)
	frame := p.magenta.
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("13")).
		Width(boxWidth - 2).
		Padding(1, 0).
		Align(lipgloss.Center)
	fmt.Fprintln(p.w, frame.Render(title))
}

func (p *printer) status(l level, format string, args ...any) {
	fmt.Fprintf(p.w, "%s %s %s\n",
		p.magenta.Render("Turnip"),
		p.levelStyle(l).Render(levelIcons[l]),
		p.gray.Render(fmt.Sprintf(format, args...)),
	)
}

// box draws a titled frame around label/value rows
func (p *printer) box(title string, rows [][2]string) {
	labelWidth := 0
	for _, row := range rows {
		labelWidth = max(labelWidth, len(row[0]))
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, p.cyan.Bold(true).Render(title))
	for _, row := range rows {
		label := row[0] + ":" + strings.Repeat(" ", labelWidth-len(row[0])+1)
		lines = append(lines, p.gray.Render(label)+p.cyan.Render(row[1]))
	}

	frame := p.r.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("13")).
		Padding(0, 1)
	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, frame.Render(strings.Join(lines, "\n")))
	fmt.Fprintln(p.w)
}

var commandHelp = [][2]string{
	{"sync", "Sync changes to GitHub"},
	{"close", "Sync and close session"},
	{"close -dontsync", "Close without syncing"},
	{"help", "Show this list"},
	{"$<command>", "Run shell command in repo"},
}

func (p *printer) commands() {
	fmt.Fprintln(p.w, p.gray.Render("Available commands:"))
	for _, c := range commandHelp {
		fmt.Fprintf(p.w, "  %s %s\n", p.cyan.Render(fmt.Sprintf("%-16s", c[0])), p.gray.Render("→ "+c[1]))
	}
	fmt.Fprintln(p.w)
}

func (p *printer) prompt(repo string) {
	fmt.Fprintf(p.w, "%s %s %s ", p.gray.Render(repo), p.magenta.Render("│"), p.cyan.Render(">"))
}

func (p *printer) downloaded(size int64, dir string) {
	p.status(levelSuccess, "Downloaded %s to %s", humanize.Bytes(uint64(size)), dir)
}

// preserved lists symlinks and submodules that were not checked out
func (p *printer) preserved(paths []string) {
	if len(paths) == 0 {
		return
	}
	p.status(levelWarning, "%s not checked out, sync leaves them alone:",
		english.Plural(len(paths), "symlink or submodule", "symlinks or submodules"))
	for _, rel := range paths {
		fmt.Fprintf(p.w, "    %s\n", p.gray.Render(rel))
	}
}

// result prints one line per path that changed or needs attention
func (p *printer) result(res reconcile.Result) {
	switch res.Action {
	case reconcile.ActionCreated:
		p.status(levelSuccess, "Created %s", res.Path)
	case reconcile.ActionUpdated:
		p.status(levelSuccess, "Updated %s", res.Path)
	case reconcile.ActionDeleted:
		if res.Detail != "" {
			p.status(levelInfo, "Deleted %s (%s)", res.Path, res.Detail)
		} else {
			p.status(levelInfo, "Deleted %s (not in local)", res.Path)
		}
	case reconcile.ActionSkipped:
		p.status(levelWarning, "Skipped %s: %s", res.Path, res.Detail)
	case reconcile.ActionErrored:
		p.status(levelError, "Error with %s: %v", res.Path, res.Err)
	}
}

func (p *printer) summary(report *reconcile.Report) {
	for _, dir := range report.PrunedDirs {
		p.status(levelInfo, "Removed folder %s/", dir)
	}

	counts := []string{
		fmt.Sprintf("%d created", report.Count(reconcile.ActionCreated)),
		fmt.Sprintf("%d updated", report.Count(reconcile.ActionUpdated)),
		fmt.Sprintf("%d deleted", report.Count(reconcile.ActionDeleted)),
		fmt.Sprintf("%d unchanged", report.Count(reconcile.ActionUnchanged)),
	}
	elapsed := report.Duration.Round(time.Millisecond)

	if n := report.Count(reconcile.ActionErrored); n > 0 {
		p.status(levelWarning, "Sync finished with %s in %s (%s)",
			english.Plural(n, "error", "errors"), elapsed, strings.Join(counts, ", "))
		return
	}
	p.status(levelSuccess, "Sync complete in %s (%s)", elapsed, strings.Join(counts, ", "))
}

// PrintBanner writes the turnip banner to w
func PrintBanner(w io.Writer) {
	newPrinter(w).banner()
}
