package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"draftflow/internal/httpapi"
	"draftflow/pkg/agent"
	"draftflow/pkg/agent/middleware/metrics"
	"draftflow/pkg/cache"
	"draftflow/pkg/config"
	"draftflow/pkg/events"
	"draftflow/pkg/logx"
	metricsquery "draftflow/pkg/metrics"
	"draftflow/pkg/persistence"
	"draftflow/pkg/version"
	"draftflow/pkg/workflow"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestration server (foreground)",
	RunE: func(_ *cobra.Command, _ []string) error {
		return runServer()
	},
}

func init() {
	serveCmd.Flags().StringVar(&configPath, "config", "draftflow.yaml", "path to config file")
}

// callContextProvider breaks the construction cycle between the client
// factory (which needs call context for metric labels) and the orchestrator
// (which is built after the registry the factory feeds).
type callContextProvider struct {
	orch *workflow.Orchestrator
}

func (p *callContextProvider) CallContext() metrics.CallContext {
	if p.orch == nil {
		return metrics.CallContext{}
	}
	return p.orch.CallContext()
}

func runServer() error {
	logger := logx.NewLogger("serve")
	fmt.Fprintf(os.Stderr, "draftflow version %s\n", version.Version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := loadSecrets(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := persistence.NewSQLiteRepository(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening project database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			logger.Warn("closing project database: %v", closeErr)
		}
	}()

	recorder := metrics.NewPrometheusRecorder()
	factory := agent.NewClientFactory(cfg, recorder)
	provider := &callContextProvider{}
	registry := agent.NewDefaultRegistry(cfg, factory, provider)

	var responseCache *cache.ResponseCache
	if cfg.Cache.Enabled {
		store, storeErr := cache.NewSQLiteStore(cfg.Storage.CacheDatabasePath)
		if storeErr != nil {
			logger.Warn("cache database unavailable, falling back to in-process cache: %v", storeErr)
			store = nil
		}
		if store != nil {
			responseCache = cache.New(store)
		} else {
			responseCache = cache.New(nil)
		}
		responseCache.Start()
		defer func() {
			if closeErr := responseCache.Close(); closeErr != nil {
				logger.Warn("closing response cache: %v", closeErr)
			}
		}()
	}

	bus := events.NewBus()
	defer bus.Close()

	opts := []workflow.Option{
		workflow.WithEventBus(bus),
		workflow.WithMetricsRecorder(recorder),
	}
	if responseCache != nil {
		opts = append(opts, workflow.WithCache(responseCache, cfg.Cache.TTL))
	}
	orch := workflow.New(repo, registry, opts...)
	provider.orch = orch

	registry.InitializeAll(ctx)
	defer registry.CleanupAll()

	var queryService *metricsquery.QueryService
	if cfg.Server.PrometheusURL != "" {
		queryService, err = metricsquery.NewQueryService(cfg.Server.PrometheusURL)
		if err != nil {
			return fmt.Errorf("connecting to Prometheus: %w", err)
		}
	}

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := httpapi.NewServer(addr, httpapi.Deps{
		Orchestrator: orch,
		Registry:     registry,
		Factory:      factory,
		Cache:        responseCache,
		Bus:          bus,
		Metrics:      queryService,
	})

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("ready, press Ctrl+C to stop")
	return g.Wait()
}

// loadSecrets decrypts the secrets file when one exists. The password comes
// from DRAFTFLOW_PASSWORD or an interactive prompt; without either the
// process continues on environment variables alone.
func loadSecrets() error {
	home, err := os.UserHomeDir()
	if err != nil || !config.SecretsFileExists(home) {
		return nil
	}

	password := os.Getenv("DRAFTFLOW_PASSWORD")
	if password == "" {
		if !term.IsTerminal(syscall.Stdin) {
			fmt.Fprintln(os.Stderr, "secrets file found but no DRAFTFLOW_PASSWORD set, using environment variables only")
			return nil
		}
		fmt.Fprint(os.Stderr, "Secrets password: ")
		raw, readErr := term.ReadPassword(syscall.Stdin)
		fmt.Fprintln(os.Stderr)
		if readErr != nil {
			return fmt.Errorf("reading password: %w", readErr)
		}
		password = string(raw)
	}

	secrets, err := config.DecryptSecretsFile(home, password)
	if err != nil {
		return fmt.Errorf("decrypting secrets: %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}
