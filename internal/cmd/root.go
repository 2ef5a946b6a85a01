package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/niels/ctf-server/pkg/api"
	"github.com/niels/ctf-server/pkg/config"
	"github.com/niels/ctf-server/pkg/logging"
	"github.com/niels/ctf-server/pkg/monitor"
	"github.com/niels/ctf-server/pkg/router"
	"github.com/niels/ctf-server/pkg/server"
	"github.com/niels/ctf-server/pkg/static"
	"github.com/niels/ctf-server/pkg/store"
	"github.com/niels/ctf-server/pkg/version"
	"github.com/spf13/cobra"
)

// options holds the values of the global flags
type options struct {
	configPath  string
	debug       bool
	port        int
	webRoot     string
	dsn         string
	accessLog   bool
	noColor     bool
	showVersion bool

	cfg *config.Config
}

// NewRootCmd creates the root command for ctf-server
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   version.AppName,
		Short: version.Description,
		Long: fmt.Sprintf(`%s - %s

Serves the compiled web client and the JSON API for logins, challenges,
profiles and solves from a single TCP listener.
`, version.AppName, version.Description),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showVersion {
				fmt.Fprintln(cmd.OutOrStdout(), version.GetVersionInfo())
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServer(ctx, cmd, opts.cfg)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (YAML or TOML)")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")
	flags.StringVar(&opts.dsn, "db", "", "Database DSN")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rootCmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Port to listen on")
	rootCmd.Flags().StringVarP(&opts.webRoot, "web-root", "w", "", "Directory with the compiled web client")
	rootCmd.Flags().BoolVar(&opts.accessLog, "access-log", false, "Print one line per request to stdout")
	rootCmd.Flags().BoolVarP(&opts.showVersion, "version", "v", false, "Show version information")

	rootCmd.AddCommand(newMigrateCmd(opts), newSeedCmd(opts))

	return rootCmd
}

// load builds the effective configuration: defaults, then the config file,
// then the environment, then flags
func (o *options) load(cmd *cobra.Command) error {
	if o.configPath != "" {
		o.cfg = config.LoadOrDefault(o.configPath)
	} else {
		o.cfg = config.LoadDefault()
		config.ApplyEnv(o.cfg)
	}

	if cmd.Flags().Changed("port") {
		if o.port <= 0 || o.port > 65535 {
			return fmt.Errorf("invalid port %d", o.port)
		}
		o.cfg.Server.Port = o.port
	}
	if o.webRoot != "" {
		o.cfg.Server.WebRoot = o.webRoot
	}
	if o.dsn != "" {
		o.cfg.Database.DSN = o.dsn
	}
	if o.accessLog {
		o.cfg.Logging.AccessLog = true
	}
	if o.noColor {
		color.NoColor = true
	}

	logging.InitGlobalLogger(o.debug, o.cfg)
	logging.DebugWith("Configuration loaded", map[string]interface{}{
		"config":   o.configPath,
		"address":  o.cfg.Server.Address(),
		"web_root": o.cfg.Server.WebRoot,
		"driver":   o.cfg.Database.Driver,
	})
	return nil
}

// runServer wires the store, handlers and acceptor together and serves until ctx ends
func runServer(ctx context.Context, cmd *cobra.Command, cfg *config.Config) error {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		logging.ErrorWith("Failed to open database", map[string]interface{}{
			"error": err,
		})
		return err
	}
	defer st.Close()

	if cfg.Database.AutoMigrate {
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	files, err := static.NewHandler(static.Options{
		WebRoot:     cfg.Server.WebRoot,
		ChunkSize:   cfg.Server.ChunkSize,
		SPAFallback: cfg.Server.SPAFallback,
	})
	if err != nil {
		return err
	}
	if _, err := os.Stat(files.WebRoot()); err != nil {
		logging.WarnWith("Web root is not accessible, static requests will fail", map[string]interface{}{
			"web_root": files.WebRoot(),
			"error":    err,
		})
	}

	apiHandler := api.NewHandler(st, api.Options{
		ExposeStoreErrors: cfg.Server.ExposeStoreErrors,
	})

	tracker := monitor.NewConsoleTracker().
		WithWriter(cmd.OutOrStdout()).
		Quiet(!cfg.Logging.AccessLog)

	srv := server.New(router.Default(apiHandler, files), server.OptionsFromConfig(cfg)).
		WithTracker(tracker)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint(version.AppName), version.Version)
	fmt.Fprintf(out, "Serving %s\n", color.CyanString(files.WebRoot()))

	return srv.ListenAndServe(ctx)
}
