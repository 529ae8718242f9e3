package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/goconsole/internal/server"
)

var addr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve consoles over websockets",
	Long: `Serve one console per websocket connection on /ws.

Clients send {"type":"exec","code":...}, {"type":"stdin","text":...} and
{"type":"interrupt"} frames and receive stdout, stderr, stdin_request,
syntax_ok, result and error frames.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := consoleConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return server.New(config, config.Logger).Start(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", envString("GOCONSOLE_ADDR", ":8081"), "Address to listen on")
	rootCmd.AddCommand(serveCmd)
}
