package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/thruflo/remoteui/internal/client"
	"github.com/thruflo/remoteui/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "remoteui",
	Short: "Stream frames from a render loop to remote viewers",
	Long: `remoteui runs an embedded interface server that streams the frames of a
render loop to remote viewers and collects their control edits (prompt,
steps, value, play/pause, stop).

serve runs a server driven by a test-pattern producer. watch and control are
headless viewers for any running server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// viewer flags shared by watch and control
var (
	viewerAddr     string
	viewerWeb      bool
	viewerToken    string
	viewerLogLevel string
)

func init() {
	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("remoteui version {{.Version}}\n")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func addViewerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&viewerAddr, "addr", "a", "127.0.0.1:4242", "server address (host:port, or the web listener URL with --web)")
	cmd.Flags().BoolVar(&viewerWeb, "web", false, "connect to the web listener over a websocket")
	cmd.Flags().StringVar(&viewerToken, "token", "", "token from POST /auth for a password protected web listener")
	cmd.Flags().StringVar(&viewerLogLevel, "log-level", "warn", "log level (trace, debug, info, warn, error, off)")
}

// commandContext returns the command's context, or a background context
// when the command was run without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// dialViewer connects to a server as a headless viewer.
func dialViewer(ctx context.Context, videoTimeout time.Duration) (*client.Client, error) {
	log := logging.New()
	level, err := logging.ParseLevel(viewerLogLevel)
	if err != nil {
		return nil, err
	}
	log.SetLevel(level)

	opts := client.Options{
		VideoTimeout: videoTimeout,
		Token:        viewerToken,
		Logger:       log,
	}
	var c *client.Client
	if viewerWeb {
		c, err = client.DialWebsocket(ctx, viewerAddr, opts)
	} else {
		c, err = client.Dial(ctx, viewerAddr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", viewerAddr, err)
	}
	return c, nil
}
