package main

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/licitaware/cotador/db"
)

func migrateCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Aplica as migrações do banco de dados",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			conn, err := sql.Open("postgres", cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("abrindo conexão: %w", err)
			}
			defer conn.Close()

			goose.SetBaseFS(db.Migrations)
			if err := goose.SetDialect("postgres"); err != nil {
				return err
			}

			action := "up"
			if len(args) == 1 {
				action = args[0]
			}
			switch action {
			case "up":
				return goose.UpContext(ctx, conn, "migrations")
			case "down":
				return goose.DownContext(ctx, conn, "migrations")
			case "status":
				return goose.StatusContext(ctx, conn, "migrations")
			default:
				return fmt.Errorf("ação de migração desconhecida: %q", action)
			}
		},
	}
}
