package terminal

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/itsmostafa/goconsole/internal/fault"
	"github.com/itsmostafa/goconsole/internal/version"
)

var (
	// titleStyle for the banner name
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("160"))

	// dimStyle for muted metadata text
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// resultStyle for rendered result values
	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81"))

	// errorStyle for diagnostics
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	// interruptStyle for the interrupted marker
	interruptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	// headerBoxStyle for the banner
	headerBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("160")).
			Padding(0, 1)
)

// FormatBanner renders the REPL banner with the registered host operations.
func FormatBanner(w io.Writer, ops []string) {
	hostLine := dimStyle.Render("none")
	if len(ops) > 0 {
		hostLine = "host." + strings.Join(ops, ", host.")
	}
	content := fmt.Sprintf("%s %s\n%s %s\n%s",
		titleStyle.Render("goconsole"), version.Version,
		dimStyle.Render("Host:"), hostLine,
		dimStyle.Render("Ctrl+C interrupts, Ctrl+D exits."),
	)
	fmt.Fprintln(w, headerBoxStyle.Render(content))
}

// FormatResult writes a rendered result value. Empty results print nothing.
func FormatResult(w io.Writer, value string) {
	if value == "" {
		return
	}
	fmt.Fprintln(w, resultStyle.Render(value))
}

// FormatError writes the diagnostic for a failed snippet.
func FormatError(w io.Writer, err error) {
	if errors.Is(err, fault.ErrInterrupted) {
		FormatInterrupted(w)
		return
	}
	fmt.Fprintln(w, errorStyle.Render(fault.From(err).Render()))
}

// FormatInterrupted writes the marker shown when input or execution is
// cancelled with Ctrl+C.
func FormatInterrupted(w io.Writer) {
	fmt.Fprintln(w, interruptStyle.Render("KeyboardInterrupt"))
}
