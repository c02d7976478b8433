// Package main provides the theomcp CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orneryd/theomcp/pkg/config"
	"github.com/orneryd/theomcp/pkg/graph"
	"github.com/orneryd/theomcp/pkg/logging"
	"github.com/orneryd/theomcp/pkg/mcp"
	"github.com/orneryd/theomcp/pkg/metrics"
	"github.com/orneryd/theomcp/pkg/schema"
	"github.com/orneryd/theomcp/pkg/storage"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	rootCmd := &cobra.Command{
		Use:   "theomcp",
		Short: "theomcp - MCP tool server for a theological knowledge graph",
		Long: `theomcp exposes a labeled property graph of persons, books, verses,
notions, notion groups and quotations as MCP tools.

Tools validate labels and properties against a schema, resolve vertex
references by internal id, business id or unique caption, and return
relationship views that name incoming edges by their inverse.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				return godotenv.Load(envFile)
			}
			if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("loading .env: %w", err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file (default: .env when present)")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "theomcp v%s (%s)\n", version, commit)
		},
	})

	// Serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long:  "Open the graph store and serve the knowledge graph tools over stdio or streamable HTTP",
		RunE:  runServe,
	}
	addStoreFlags(serveCmd)
	serveCmd.Flags().String("transport", config.TransportStdio, "Transport: stdio or streamable-http")
	serveCmd.Flags().String("gremlin-url", "", "Gremlin server URL (GREMLIN_URL)")
	serveCmd.Flags().String("store", "", "Graph store: gremlin, badger or memory (THEO_STORE)")
	serveCmd.Flags().String("data-dir", "", "Badger data directory (THEO_DATA_DIR)")
	serveCmd.Flags().Int("port", 0, "HTTP port for streamable-http (MCP_HTTP_PORT)")
	serveCmd.Flags().String("tools", "", "Comma separated tool or profile names (MCP_TOOLS)")
	rootCmd.AddCommand(serveCmd)

	// Schema command
	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the effective schema as YAML",
		RunE:  runSchema,
	}
	addStoreFlags(schemaCmd)
	rootCmd.AddCommand(schemaCmd)

	// Tools command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "tools",
		Short: "List the tools the server would expose",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			allow, err := mcp.ResolveTools(cfg.Server.Tools)
			if err != nil {
				return err
			}
			for _, name := range mcp.ToolNames(allow) {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	})

	return rootCmd
}

func addStoreFlags(cmd *cobra.Command) {
	cmd.Flags().String("schema", "", "YAML schema file (THEO_SCHEMA_FILE)")
	cmd.Flags().Bool("require-id", false, "Require a unique business id on every label (THEO_REQUIRE_ID)")
}

// loadConfig reads the environment and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("schema") {
		cfg.Store.SchemaFile, _ = flags.GetString("schema")
	}
	if flags.Changed("require-id") {
		cfg.Store.RequireID, _ = flags.GetBool("require-id")
	}
	if flags.Changed("transport") {
		cfg.Server.Transport, _ = flags.GetString("transport")
	}
	if flags.Changed("store") {
		cfg.Store.Kind, _ = flags.GetString("store")
	}
	if flags.Changed("gremlin-url") {
		cfg.Store.GremlinURL, _ = flags.GetString("gremlin-url")
	}
	if flags.Changed("data-dir") {
		cfg.Store.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("tools") {
		cfg.Server.Tools, _ = flags.GetString("tools")
	}
	return cfg, nil
}

func loadSchema(cfg *config.Config) (*schema.Registry, error) {
	if cfg.Store.SchemaFile == "" {
		return schema.Default(cfg.Store.RequireID), nil
	}
	return schema.Load(cfg.Store.SchemaFile, cfg.Store.RequireID)
}

// openEngine opens the configured store. Embedded stores enforce the
// schema's unique properties themselves.
func openEngine(cfg *config.Config, reg *schema.Registry) (storage.Engine, error) {
	switch cfg.Store.Kind {
	case config.StoreMemory:
		return storage.NewMemoryEngine(graph.UniqueConstraints(reg)...), nil
	case config.StoreBadger:
		return storage.NewBadgerEngine(cfg.Store.DataDir, graph.UniqueConstraints(reg)...)
	case config.StoreGremlin:
		return storage.NewGremlinEngine(storage.GremlinOptions{
			URL:             cfg.Store.GremlinURL,
			TraversalSource: cfg.Store.TraversalSource,
		})
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store.Kind)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	tools, err := mcp.ResolveTools(cfg.Server.Tools)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting theomcp", zap.String("version", version), zap.String("commit", commit),
		zap.Stringer("config", cfg))

	reg, err := loadSchema(cfg)
	if err != nil {
		return err
	}

	engine, err := openEngine(cfg, reg)
	if err != nil {
		return fmt.Errorf("opening %s store: %w", cfg.Store.Kind, err)
	}
	logger.Info("graph store opened", zap.String("store", cfg.Store.Kind))
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("closing graph store", zap.Error(err))
			return
		}
		logger.Info("graph store closed")
	}()

	m := metrics.New()
	service := graph.NewService(engine, reg, graph.Options{Logger: logger, Metrics: m})

	serverConfig := mcp.DefaultServerConfig()
	serverConfig.Version = version
	serverConfig.Address = cfg.Server.Address
	serverConfig.Port = cfg.Server.Port
	serverConfig.Endpoint = cfg.Server.Endpoint
	serverConfig.EnableCORS = cfg.Server.EnableCORS
	serverConfig.EnableMetrics = cfg.Server.MetricsEnabled
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	serverConfig.Tools = tools
	serverConfig.Logger = logger
	serverConfig.Metrics = m
	server := mcp.NewServer(service, serverConfig)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cfg.Server.Transport {
	case config.TransportStreamableHTTP:
		err = server.ListenAndServe(ctx)
	default:
		err = server.ServeStdio(ctx, os.Stdin, os.Stdout)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("theomcp stopped")
	return nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	reg, err := loadSchema(cfg)
	if err != nil {
		return err
	}
	data, err := reg.YAML()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
