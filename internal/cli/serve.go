package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/thruflo/remoteui/internal/config"
	"github.com/thruflo/remoteui/internal/server"
)

var (
	serveConfigPath string
	servePort       int
	serveWebPort    int
	serveLogLevel   string
	serveWidth      int
	serveHeight     int
	serveFPS        float64
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run an interface server with a test-pattern producer",
	Long: `Starts an interface server and drives it with a synthetic render loop that
redraws a test pattern, reports progress and sample rates, and reacts to
viewer edits. It stops when a viewer sends stop or on interrupt.

Settings come from the --config yaml file when given; flags override it.

Example:
  remoteui serve
  remoteui serve --port 5000 --web-port 8080
  remoteui serve --config remoteui.yaml --width 1280 --height 720 --fps 60`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	addServeFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to a yaml config file")
	cmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultServerPort, "viewer TCP port (0 picks a free port)")
	cmd.Flags().IntVar(&serveWebPort, "web-port", config.DefaultWebPort, "web viewer port (-1 disables the web listener)")
	cmd.Flags().StringVar(&serveLogLevel, "log-level", config.DefaultLogLevel, "log level (trace, debug, info, warn, error, off)")
	cmd.Flags().IntVar(&serveWidth, "width", 640, "frame width")
	cmd.Flags().IntVar(&serveHeight, "height", 360, "frame height")
	cmd.Flags().Float64Var(&serveFPS, "fps", 30, "frames per second")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := serveConfig(cmd)
	if err != nil {
		return err
	}
	if serveFPS <= 0 {
		return fmt.Errorf("--fps must be positive")
	}

	srv, err := server.NewServerFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer func() {
		if err := srv.Stop(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: failed to stop server: %v\n", err)
		}
	}()

	ready, err := srv.WaitUntilReady(5 * time.Second)
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("server did not become ready")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Interface server listening on %s\n", srv.Addr())
	if web := srv.WebAddr(); web != "" {
		fmt.Fprintf(out, "Web viewer at http://%s/\n", web)
	}

	p := &producer{
		srv:      srv,
		width:    serveWidth,
		height:   serveHeight,
		interval: time.Duration(float64(time.Second) / serveFPS),
		log:      srv.Logger().With("component", "producer"),
	}
	return p.run(ctx)
}

// serveConfig loads the config file and applies flags the user set.
func serveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(serveConfigPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("port") || serveConfigPath == "" {
		cfg.Server.Port = servePort
	}
	if flags.Changed("web-port") || serveConfigPath == "" {
		cfg.Server.WebPort = serveWebPort
	}
	if flags.Changed("log-level") || serveConfigPath == "" {
		cfg.LogLevel = serveLogLevel
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
