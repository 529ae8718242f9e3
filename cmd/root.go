package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/itsmostafa/goconsole/internal/terminal"
	"github.com/itsmostafa/goconsole/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "goconsole",
	Short: "Interactive JavaScript console with a synchronous host bridge",
	Long: `goconsole runs JavaScript snippets on a dedicated interpreter goroutine.
Snippets reach the host synchronously through shared memory bridged calls
(input(), host.<op>(...)), and can be interrupted with Ctrl+C at any point.

Without a subcommand goconsole starts a REPL. When stdin is not a terminal
it is executed as one snippet.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newConsole()
		if err != nil {
			return err
		}
		defer c.Close()

		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return runSource(cmd, c, os.Stdin, nil)
		}

		interrupts := make(chan os.Signal, 1)
		signal.Notify(interrupts, os.Interrupt)
		defer signal.Stop(interrupts)

		ln := terminal.OpenLiner(c, terminal.HistoryPath())
		defer ln.Close()

		return terminal.Run(cmd.Context(), terminal.Config{
			Console:    c,
			Lines:      ln,
			Output:     cmd.OutOrStdout(),
			ErrOutput:  cmd.ErrOrStderr(),
			Interrupts: interrupts,
		})
	},
}

func init() {
	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("goconsole %s\n", version.String()))
	rootCmd.SilenceUsage = true
	registerConsoleFlags(rootCmd)
}

// exitError carries a process exit code for a failure that was already
// reported to the user.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
