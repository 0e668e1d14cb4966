package cli

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"

	"github.com/nthbao13/cloud-quiz/internal/config"
	"github.com/nthbao13/cloud-quiz/internal/infra/postgres"
	"github.com/nthbao13/cloud-quiz/internal/quizbank"
)

// NewImportCmd loads a quiz source file into Postgres.
func NewImportCmd(configPath *string) *cobra.Command {
	var sourceID string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a quiz source file into Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), *configPath, sourceID, args[0])
		},
	}
	cmd.Flags().StringVar(&sourceID, "id", "default", "source id to import under")
	return cmd
}

func runImport(ctx context.Context, configPath, sourceID, file string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read source file: %w", err)
	}

	bank := quizbank.ParseBank(string(data))
	if bank.Empty() {
		return fmt.Errorf("source %s parses to an empty bank", file)
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.NewSourceStore(pool).SaveSource(ctx, sourceID, string(data)); err != nil {
		return err
	}
	log.Printf("imported %s as source %q: %d quizzes, %d questions",
		file, sourceID, len(bank.Names()), bank.Len())
	return nil
}
