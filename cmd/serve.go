package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/opendocs/chatstream/internal/mock"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a local mock chat backend for development",
	Long: `serve starts an HTTP server that answers /chat with canned
newline-delimited responses and /sdk/chat with the data:-framed stream,
so the CLI and SDK can be exercised without a real backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		return mock.NewServer(addr).Start(ctx)
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8091", "Address to listen on")
}
