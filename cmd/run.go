package cmd

import (
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/goconsole/internal/console"
	"github.com/itsmostafa/goconsole/internal/terminal"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Execute a script once",
	Long: `Execute a JavaScript file as one snippet and print its result.
Without a file the script is read from stdin. Exits 1 if the snippet fails.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newConsole()
		if err != nil {
			return err
		}
		defer c.Close()

		if len(args) == 0 {
			return runSource(cmd, c, os.Stdin, nil)
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		return runSource(cmd, c, f, terminal.NewScanner(os.Stdin, cmd.OutOrStdout()))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runSource executes everything in r as one snippet. stdin answers input()
// calls and may be nil.
func runSource(cmd *cobra.Command, c *console.Console, r io.Reader, stdin terminal.LineReader) error {
	src, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	value, err := terminal.Execute(cmd.Context(), c, string(src), terminal.Streams{
		Stdout:     cmd.OutOrStdout(),
		Stderr:     cmd.ErrOrStderr(),
		Stdin:      stdin,
		Interrupts: interrupts,
	})
	if err != nil {
		terminal.FormatError(cmd.ErrOrStderr(), err)
		return &exitError{code: 1}
	}
	terminal.FormatResult(cmd.OutOrStdout(), value)
	return nil
}
