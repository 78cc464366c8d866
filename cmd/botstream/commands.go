package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/botdesk/botstream/internal/version"
)

// watchOptions are the flag values for the watch command.
type watchOptions struct {
	configPath string
	url        string
	token      string
	botID      string
	verbose    bool
	debug      bool
	metrics    bool
}

func buildWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Connect to the event stream and print updates",
		Long: `Connect to the bot backend's event stream and print every inbound event.

The connection is re-established automatically with linear backoff after an
abnormal close. watch exits when interrupted or when the reconnect budget is
exhausted.`,
		Example: `  # Stream everything using defaults and BOTSTREAM_TOKEN
  botstream watch

  # Follow a single bot with a config file
  botstream watch --config botstream.yaml --bot 42

  # Serve Prometheus metrics while watching
  botstream watch --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&opts.url, "url", "", "Stream base URL (overrides api.ws_url)")
	cmd.Flags().StringVar(&opts.token, "token", "", "Bearer token (overrides auth.token)")
	cmd.Flags().StringVar(&opts.botID, "bot", "", "Only print updates for this bot ID")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print full message JSON")
	cmd.Flags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.metrics, "metrics", false, "Serve Prometheus metrics (overrides metrics.enabled)")

	return cmd
}

func buildVersionCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
