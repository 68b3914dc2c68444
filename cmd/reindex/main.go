package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bimakw/transfer-indexer/internal/config"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/database"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/logging"
)

var rootCmd = &cobra.Command{
	Use:           "reindex",
	Short:         "Transfer indexer maintenance utilities",
	Long:          "Re-scan block ranges, run migrations and inspect the watermark using the indexer's environment configuration",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// session bundles what every subcommand opens
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	db, err := database.Open(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &session{cfg: cfg, logger: logger, db: db}, nil
}

func (rt *session) Close() {
	_ = rt.db.Close()
	_ = rt.logger.Sync()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
