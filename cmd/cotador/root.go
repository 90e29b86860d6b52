package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/licitaware/cotador/internal/cache"
	"github.com/licitaware/cotador/internal/config"
)

const version = "0.4.0"

var configPath string

// Execute builds the command tree and runs it under the signal context.
func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:          "cotador",
		Short:        "Motor de cotação de preços para reavaliação de bens públicos",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml",
		"caminho do arquivo de configuração")
	// Underscore spellings resolve to the dashed flag names.
	root.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	root.AddCommand(
		workerCmd(ctx),
		processCmd(ctx),
		monitorCmd(ctx),
		quoteCmd(ctx),
		batchCmd(ctx),
		requoteCmd(ctx),
		migrateCmd(ctx),
	)
	return root.ExecuteContext(ctx)
}

// loadConfig reads the configuration and applies the global log level.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log_level inválido: %w", err)
	}
	zerolog.SetGlobalLevel(lvl)
	return cfg, nil
}

// openCache returns the Redis cache, or nil when caching is disabled.
// A nil cache degrades every caching call to a direct pass-through.
func openCache(cfg *config.Config) *cache.Cache {
	if !cfg.Redis.Enabled || cfg.Redis.Addr == "" {
		return nil
	}
	return cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
}
