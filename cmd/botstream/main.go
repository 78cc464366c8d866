// botstream connects to the trading-bot backend's event stream and prints
// bot updates to the console.
//
// Usage:
//
//	botstream watch --config configs/botstream.yaml
//	botstream watch --url https://bots.example.com/api/v1/ws --bot 42
//	botstream version
//
// The bearer token is read from auth.token, the BOTSTREAM_TOKEN environment
// variable, or auth.token_file, in that order.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := buildRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "botstream",
		Short:         "Real-time event stream client for the trading-bot dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(buildWatchCmd(), buildVersionCmd())
	return root
}
