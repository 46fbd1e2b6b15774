package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/arthur-debert/symfarm/pkg/types"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	countStyle   = lipgloss.NewStyle().Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func styled(style lipgloss.Style, s string) string {
	if !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return s
	}
	return style.Render(s)
}

// renderReport formats the run summary for the terminal.
func renderReport(r types.Report, dryRun bool) string {
	var b strings.Builder

	heading := "Synchronized"
	if dryRun {
		heading = "Dry run, would synchronize"
	}
	fmt.Fprintf(&b, "%s %s files\n", styled(headingStyle, heading), styled(countStyle, fmt.Sprint(r.Scanned)))

	line := func(count int, label string, style *lipgloss.Style) {
		if count == 0 {
			return
		}
		text := fmt.Sprintf("  %4d %s", count, label)
		if style != nil {
			text = styled(*style, text)
		}
		b.WriteString(text + "\n")
	}

	line(r.Created, "links created", nil)
	line(r.Updated, "links updated", nil)
	line(r.Unchanged, "links already in place", nil)
	line(r.AlreadyLinked, "files skipped, already linked", nil)
	line(r.RemovedLinks, "broken links removed", nil)
	line(r.RemovedDirs, "empty directories removed", nil)
	line(r.NonMusic, "non-music files ignored", nil)
	line(r.Ignored, "files ignored by rules", nil)
	line(r.Collisions, "path collisions", &warnStyle)
	line(r.Failed, "failures", &errStyle)

	return b.String()
}
