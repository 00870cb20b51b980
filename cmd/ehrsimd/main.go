package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/g960059/ehrsim/internal/app"
	"github.com/g960059/ehrsim/internal/config"
	"github.com/g960059/ehrsim/internal/daemon"
	"github.com/g960059/ehrsim/internal/db"
	"github.com/g960059/ehrsim/internal/engine"
	"github.com/g960059/ehrsim/internal/logging"
	"github.com/g960059/ehrsim/internal/mcp"
	"github.com/g960059/ehrsim/internal/scenario"
	"github.com/g960059/ehrsim/internal/scheduler"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ehrsimd: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	socketPath string
	dbPath     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:           "ehrsimd",
		Short:         "Clinical training simulation daemon",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/ehrsim/ehrsim.{toml,yaml,json})")
	pf.StringVar(&flags.socketPath, "socket", "", "UDS path for ehrsimd")
	pf.StringVar(&flags.dbPath, "db", "", "SQLite path")
	pf.StringVar(&flags.logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(
		newServeCmd(flags),
		newMCPCmd(flags),
		newMigrateCmd(flags),
		newSeedCmd(flags),
	)
	return rootCmd
}

// load merges file and environment config with explicit flags.
func (f *rootFlags) load() (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if f.socketPath != "" {
		cfg.SocketPath = f.socketPath
	}
	if f.dbPath != "" {
		cfg.DBPath = f.dbPath
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

type runtimeDeps struct {
	cfg    config.Config
	log    *zap.Logger
	store  *db.Store
	engine *engine.Engine
	svc    *app.Service
}

func openStore(ctx context.Context, cfg config.Config) (*db.Store, error) {
	store, err := db.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.ApplyMigrations(ctx, store.DB()); err != nil {
		store.Close() //nolint:errcheck
		return nil, err
	}
	return store, nil
}

func setup(ctx context.Context, flags *rootFlags) (*runtimeDeps, error) {
	cfg, err := flags.load()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	if cfg.SeedExamples {
		if _, err := scenario.SeedExamples(ctx, store, log); err != nil {
			log.Warn("seed example scenarios", zap.Error(err))
		}
	}

	ecfg := engine.DefaultConfig()
	ecfg.TickInterval = cfg.TickInterval
	ecfg.EvictAfter = cfg.EvictAfter
	ecfg.MaxTicks = cfg.MaxTicks
	ecfg.VitalsNoise = cfg.VitalsNoise
	ecfg.Seed = cfg.Seed
	ecfg.Logger = log
	eng := engine.New(store, scheduler.NewTicker(log), engine.NewRegistry(), ecfg)

	return &runtimeDeps{
		cfg:    cfg,
		log:    log,
		store:  store,
		engine: eng,
		svc:    app.NewService(eng, store, log, version),
	}, nil
}

func (d *runtimeDeps) Close() {
	d.engine.Shutdown()
	if err := d.store.Close(); err != nil {
		d.log.Warn("close store", zap.Error(err))
	}
	_ = d.log.Sync()
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API on the unix socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer deps.Close()

			srv := daemon.NewServer(deps.cfg, deps.svc, deps.log)
			g, gctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				if err := srv.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return daemon.RunJanitor(gctx, deps.engine, deps.cfg.EvictInterval, nil, deps.log)
			})
			return g.Wait()
		},
	}
}

func newMCPCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the simulation tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := setup(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer deps.Close()

			ctx, stop := context.WithCancel(cmd.Context())
			defer stop()
			srv := mcp.NewServer(mcp.Config{Name: "ehrsim", Version: version}, deps.svc, deps.log)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				defer stop()
				if err := srv.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				return daemon.RunJanitor(gctx, deps.engine, deps.cfg.EvictInterval, nil, deps.log)
			})
			return g.Wait()
		},
	}
}

func newMigrateCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "database %s at schema v%d\n", cfg.DBPath, db.SchemaVersion())
			return err
		},
	}
}

func newSeedCmd(flags *rootFlags) *cobra.Command {
	var files []string
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the built-in scenarios, or scenario files, into the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck
			return seed(cmd, store, files)
		},
	}
	seedCmd.Flags().StringArrayVar(&files, "file", nil, "scenario file to import (repeatable)")
	return seedCmd
}

func seed(cmd *cobra.Command, store *db.Store, files []string) error {
	out := cmd.OutOrStdout()
	if len(files) == 0 {
		res, err := scenario.SeedExamples(cmd.Context(), store, nil)
		if err != nil {
			return err
		}
		if res.Skipped {
			_, err = fmt.Fprintln(out, "catalog already has scenarios; nothing seeded")
			return err
		}
		for _, sc := range res.Created {
			_, _ = fmt.Fprintf(out, "seeded scenario %d %s\n", sc.ID, sc.Name)
		}
		if len(res.Failed) > 0 {
			return fmt.Errorf("failed to seed %d scenarios: %v", len(res.Failed), res.Failed)
		}
		return nil
	}

	for _, path := range files {
		doc, err := scenario.ReadFile(path)
		if err != nil {
			return err
		}
		sc, err := store.CreateScenario(cmd.Context(), doc.Name, doc.Definition())
		if err != nil {
			return fmt.Errorf("create scenario from %s: %w", path, err)
		}
		_, _ = fmt.Fprintf(out, "seeded scenario %d %s\n", sc.ID, sc.Name)
	}
	return nil
}
