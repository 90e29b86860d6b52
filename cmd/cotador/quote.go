package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/licitaware/cotador/internal/blobstore"
	"github.com/licitaware/cotador/internal/config"
	"github.com/licitaware/cotador/internal/coordinator"
	"github.com/licitaware/cotador/internal/intake"
	"github.com/licitaware/cotador/internal/persistence/postgres"
)

func quoteCmd(ctx context.Context) *cobra.Command {
	var (
		images      []string
		projectID   string
		clientID    string
		codigoItem  string
		local       string
		pesquisador string
	)
	cmd := &cobra.Command{
		Use:   "quote [descrição do item]",
		Short: "Cria uma requisição de cotação (texto e/ou imagens)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, closeDB, err := openIntake(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			item := intake.Item{
				CodigoItem:  optional(codigoItem),
				Local:       optional(local),
				Pesquisador: optional(pesquisador),
			}
			if len(args) == 1 {
				item.Text = args[0]
			}
			for _, path := range images {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("lendo imagem %s: %w", path, err)
				}
				item.Images = append(item.Images, content)
				item.ImageNames = append(item.ImageNames, filepath.Base(path))
			}

			pid, err := optionalUUID(projectID)
			if err != nil {
				return err
			}
			cid, err := optionalUUID(clientID)
			if err != nil {
				return err
			}

			q, err := svc.CreateOne(ctx, pid, cid, item)
			if err != nil {
				return err
			}
			fmt.Println(q.ID)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&images, "image", nil, "caminho de uma foto do item (repetível)")
	cmd.Flags().StringVar(&projectID, "project", "", "id do projeto")
	cmd.Flags().StringVar(&clientID, "client", "", "id do cliente")
	cmd.Flags().StringVar(&codigoItem, "codigo-item", "", "código patrimonial do item")
	cmd.Flags().StringVar(&local, "local", "", "localização do bem")
	cmd.Flags().StringVar(&pesquisador, "pesquisador", "", "responsável pela pesquisa")
	return cmd
}

func batchCmd(ctx context.Context) *cobra.Command {
	var (
		file      string
		projectID string
		clientID  string
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Cria um lote de requisições a partir de um arquivo (um item por linha)",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, closeDB, err := openIntake(ctx, cfg)
			if err != nil {
				return err
			}
			defer closeDB()

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("abrindo arquivo do lote: %w", err)
			}
			defer f.Close()

			var items []intake.Item
			sc := bufio.NewScanner(f)
			for sc.Scan() {
				line := strings.TrimSpace(sc.Text())
				if line == "" {
					continue
				}
				items = append(items, intake.Item{Text: line})
			}
			if err := sc.Err(); err != nil {
				return fmt.Errorf("lendo arquivo do lote: %w", err)
			}

			pid, err := optionalUUID(projectID)
			if err != nil {
				return err
			}
			cid, err := optionalUUID(clientID)
			if err != nil {
				return err
			}

			job, children, err := svc.CreateBatch(ctx, pid, cid, items)
			if err != nil {
				return err
			}
			fmt.Printf("lote %s com %d itens\n", job.ID, job.TotalCount)
			for _, child := range children {
				fmt.Println(child.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "arquivo com um item por linha")
	cmd.Flags().StringVar(&projectID, "project", "", "id do projeto")
	cmd.Flags().StringVar(&clientID, "client", "", "id do cliente")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func requoteCmd(ctx context.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "requote <id>",
		Short: "Cria uma recotação para uma requisição cancelada ou com erro",
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

			db, err := postgres.Connect(ctx, cfg.Database.DSN,
				cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
			if err != nil {
				return err
			}
			defer db.Close()
			repo := postgres.NewRepository(db, cfg.Database.QueryTimeout)

			// Only the repository side of the coordinator runs here; the
			// child is picked up by the worker pool like any new request.
			coord := coordinator.New(coordinator.Deps{Repo: repo, Logger: log.Logger})
			child, err := coord.Requote(ctx, id)
			if err != nil {
				return err
			}
			fmt.Println(child.ID)
			return nil
		},
	}
}

// openIntake wires the intake service against a fresh DB connection.
func openIntake(ctx context.Context, cfg *config.Config) (*intake.Service, func(), error) {
	db, err := postgres.Connect(ctx, cfg.Database.DSN,
		cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime)
	if err != nil {
		return nil, nil, err
	}
	repo := postgres.NewRepository(db, cfg.Database.QueryTimeout)
	blobs, err := blobstore.New(cfg.Storage.Root)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	svc := intake.New(repo, blobs, cfg.Quotes, log.Logger)
	return svc, func() { db.Close() }, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("uuid inválido %q: %w", s, err)
	}
	return &id, nil
}
