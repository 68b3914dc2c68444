package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/bimakw/transfer-indexer/internal/application/services"
	"github.com/bimakw/transfer-indexer/internal/domain/entities"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/database"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/ethereum"
)

var rangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Index an explicit block range",
	Long:  "Scan [from, to] for Transfer events and store new records. The watermark is left untouched.",
	RunE:  runRange,
}

var latestCmd = &cobra.Command{
	Use:   "latest",
	Short: "Index the most recent blocks",
	Long:  "Scan the last N blocks up to the confirmed chain tip. The watermark is left untouched.",
	RunE:  runLatest,
}

func init() {
	rootCmd.AddCommand(rangeCmd)
	rootCmd.AddCommand(latestCmd)

	rangeCmd.Flags().Uint64("from", 0, "First block to scan")
	rangeCmd.Flags().Uint64("to", 0, "Last block to scan, clamped to the chain tip")
	_ = rangeCmd.MarkFlagRequired("from")
	_ = rangeCmd.MarkFlagRequired("to")

	latestCmd.Flags().Uint64("blocks", 0, "Number of blocks to scan (0 uses INDEXER_LATEST_BLOCKS)")
}

func runRange(cmd *cobra.Command, args []string) error {
	from, _ := cmd.Flags().GetUint64("from")
	to, _ := cmd.Flags().GetUint64("to")

	return withIndexService(cmd, func(ctx context.Context, svc *services.IndexService) (*entities.ScanResult, error) {
		return svc.IndexRange(ctx, from, to)
	})
}

func runLatest(cmd *cobra.Command, args []string) error {
	blocks, _ := cmd.Flags().GetUint64("blocks")

	return withIndexService(cmd, func(ctx context.Context, svc *services.IndexService) (*entities.ScanResult, error) {
		return svc.IndexLatest(ctx, blocks)
	})
}

// withIndexService wires a manual index service and prints the scan result.
// A partial result is printed even when the scan was interrupted.
func withIndexService(cmd *cobra.Command, run func(context.Context, *services.IndexService) (*entities.ScanResult, error)) error {
	ctx := cmd.Context()

	rt, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	ethClient, err := ethereum.NewClient(rt.cfg.Ethereum, rt.logger)
	if err != nil {
		return err
	}
	defer ethClient.Close()

	reader := ethereum.NewReader(ethClient, rt.cfg.Indexer, rt.logger)
	indexer := services.NewRangeIndexer(reader, database.NewTransferRepo(rt.db), rt.cfg.Indexer, nil, rt.logger)
	svc := services.NewIndexService(reader, indexer, nil, rt.cfg.Indexer.LatestBlocks, rt.logger)

	result, runErr := run(ctx, svc)
	if result != nil {
		if err := printJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	}
	return runErr
}
