package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/filebox/pkg/association"
	"github.com/cuemby/filebox/pkg/config"
	"github.com/cuemby/filebox/pkg/events"
	"github.com/cuemby/filebox/pkg/files"
	"github.com/cuemby/filebox/pkg/log"
	"github.com/cuemby/filebox/pkg/storage"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "filebox",
	Short: "filebox - local compressed file store",
	Long: `filebox keeps files compressed in a single local database.

Data files (CSV, TSV, JSON) can be linked to the HTML documents that
render them; removing a data file removes it from every document that
references it.`,
	Version:           Version,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// cfg is resolved once per invocation by loadConfig
var cfg *config.Config

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"filebox version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log as JSON")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	// .env is optional
	_ = godotenv.Load()

	path, _ := cmd.Flags().GetString("config")
	c, err := config.Load(path)
	if err != nil {
		return err
	}

	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		c.DataDir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		c.Log.Level = level
	}
	if cmd.Flags().Changed("log-json") {
		c.Log.JSON, _ = cmd.Flags().GetBool("log-json")
	}
	if err := c.Validate(); err != nil {
		return err
	}

	log.Init(c.LogConfig())
	cfg = c
	return nil
}

// app is the set of components one command works with
type app struct {
	mgr    *storage.Manager
	repo   *files.Repository
	graph  *association.Graph
	broker *events.Broker
}

func newApp() (*app, error) {
	broker := events.NewBroker()
	broker.Start()

	opts := cfg.StorageOptions()
	opts.Events = broker
	mgr, err := storage.NewManager(opts)
	if err != nil {
		broker.Stop()
		return nil, fmt.Errorf("failed to create store manager: %w", err)
	}

	repo := files.NewRepository(mgr, &files.Config{Events: broker})
	return &app{
		mgr:    mgr,
		repo:   repo,
		graph:  association.NewGraph(repo, broker),
		broker: broker,
	}, nil
}

func (a *app) Close() error {
	defer a.broker.Stop()
	return a.mgr.Close()
}

// withApp wraps a command body with component setup, teardown and
// cancellation on interrupt
func withApp(run func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp()
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				log.Logger.Warn().Err(err).Msg("Error closing store")
			}
		}()

		return run(ctx, cmd, a, args)
	}
}
