package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/licitaware/cotador/internal/analysis"
	"github.com/licitaware/cotador/internal/blobstore"
	"github.com/licitaware/cotador/internal/cache"
	"github.com/licitaware/cotador/internal/config"
	"github.com/licitaware/cotador/internal/coordinator"
	"github.com/licitaware/cotador/internal/extractor"
	"github.com/licitaware/cotador/internal/fipe"
	"github.com/licitaware/cotador/internal/ledger"
	"github.com/licitaware/cotador/internal/monitor"
	"github.com/licitaware/cotador/internal/pdfsink"
	"github.com/licitaware/cotador/internal/persistence"
	"github.com/licitaware/cotador/internal/persistence/postgres"
	"github.com/licitaware/cotador/internal/shopping"
	"github.com/licitaware/cotador/internal/telemetry"
	"github.com/licitaware/cotador/internal/worker"
)

// application is the fully wired processing side of the engine.
type application struct {
	cfg     *config.Config
	db      *sqlx.DB
	repo    *persistence.Repository
	cache   *cache.Cache
	metrics *telemetry.Metrics
	browser *extractor.Browser
	coord   *coordinator.Coordinator
}

func buildApplication(ctx context.Context, cfg *config.Config) (*application, error) {
	db, err := postgres.Connect(ctx, cfg.Database.DSN,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, err
	}
	repo := postgres.NewRepository(db, cfg.Database.QueryTimeout)

	blobs, err := blobstore.New(cfg.Storage.Root)
	if err != nil {
		db.Close()
		return nil, err
	}
	provider, err := llmProvider(cfg.LLM)
	if err != nil {
		db.Close()
		return nil, err
	}

	c := openCache(cfg)
	browser := extractor.NewBrowser(cfg.Browser, log.Logger)
	api := fipe.NewAPI(cfg.Fipe, c, log.Logger)
	evidence := fipe.NewEvidence(browser, cfg.Fipe.SiteURL, log.Logger)
	metrics := telemetry.New()

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "cotador"
	}

	coord := coordinator.New(coordinator.Deps{
		Repo:     repo,
		Analyzer: analysis.NewClient(provider, cfg.LLM.MaxTokens),
		Searcher: shopping.NewClient(cfg.Shopping, c, log.Logger),
		Fetcher:  browser,
		Vehicles: fipe.NewResolver(repo.Vehicle, repo.Files, api, evidence,
			blobs, cfg.Fipe.Vigency(), log.Logger),
		Blobs: blobs,
		Recorder: ledger.NewRecorder(repo.Ledger, ledger.NewRates(
			cfg.Costs.LLMInputPerMTokBRL, cfg.Costs.LLMOutputPerMTokBRL,
			cfg.Costs.ShoppingPerCallBRL, cfg.Costs.FipePerCallBRL)),
		PDF:       pdfsink.NewDocumentSink(blobs, repo.Files),
		Metrics:   metrics,
		Whitelist: cfg.Shopping.ManufacturerWhitelist,
		WorkerID:  worker.WorkerID(hostname, os.Getpid()),
		Liveness:  cfg.Worker.Liveness,
		Logger:    log.Logger,
	})

	return &application{
		cfg:     cfg,
		db:      db,
		repo:    repo,
		cache:   c,
		metrics: metrics,
		browser: browser,
		coord:   coord,
	}, nil
}

func (a *application) Close() {
	a.browser.Close()
	a.db.Close()
}

func workerCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Executa o pool de processamento e o servidor de monitoramento",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			app, err := buildApplication(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			srv := monitor.New(app.db, app.cache, app.repo, app.metrics, log.Logger)
			go func() {
				addr := monitor.Addr(cfg.Monitor.Host, cfg.Monitor.Port)
				if err := srv.Run(ctx, addr); err != nil {
					log.Error().Err(err).Msg("monitor server failed")
				}
			}()

			worker.New(app.repo, app.coord, cfg.Worker, log.Logger).Run(ctx)
			return nil
		},
	}
}

func processCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "process <id>",
		Short: "Processa uma única requisição já persistida e encerra",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("identificador inválido: %w", err)
			}
			app, err := buildApplication(ctx, cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			runCtx, cancel := context.WithTimeout(ctx, cfg.Worker.WallBudget)
			defer cancel()
			return app.coord.Process(runCtx, id)
		},
	}
}

func monitorCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Executa apenas o servidor de monitoramento",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := postgres.Connect(ctx, cfg.Database.DSN,
				cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
			if err != nil {
				return err
			}
			defer db.Close()
			repo := postgres.NewRepository(db, cfg.Database.QueryTimeout)

			srv := monitor.New(db, openCache(cfg), repo, telemetry.New(), log.Logger)
			return srv.Run(ctx, monitor.Addr(cfg.Monitor.Host, cfg.Monitor.Port))
		},
	}
}

// llmProvider selects the analysis backend from configuration.
func llmProvider(cfg config.LLMConfig) (analysis.Provider, error) {
	var p analysis.Provider
	switch cfg.Provider {
	case "anthropic":
		p = analysis.NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.MaxTokens)
	case "openai_compat":
		p = analysis.NewOpenAICompatProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("provedor de LLM desconhecido: %q", cfg.Provider)
	}
	if !cfg.EnableWebSearch {
		p = analysis.WithoutWebSearch(p)
	}
	return p, nil
}
