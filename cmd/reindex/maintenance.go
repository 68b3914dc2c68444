package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bimakw/transfer-indexer/internal/domain/entities"
	"github.com/bimakw/transfer-indexer/internal/infrastructure/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		// openSession already migrates when DB_AUTO_MIGRATE is set
		if !rt.cfg.Database.AutoMigrate {
			if err := rt.db.Migrate(cmd.Context()); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s schema is up to date\n", rt.db.Engine())
		return nil
	},
}

var watermarkCmd = &cobra.Command{
	Use:   "watermark",
	Short: "Show the scheduler watermark",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		wm, err := database.NewWatermarkRepo(rt.db).Get(cmd.Context(), entities.TransfersWatermark)
		if err != nil {
			return err
		}
		if wm == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "watermark not initialized")
			return nil
		}
		return printJSON(cmd.OutOrStdout(), wm)
	},
}

var watermarkSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Rewind or advance the scheduler watermark",
	Long:  "Overwrite the watermark. Stop the indexer first; the next tick scans from block+1.",
	RunE: func(cmd *cobra.Command, args []string) error {
		block, _ := cmd.Flags().GetUint64("block")

		rt, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := database.NewWatermarkRepo(rt.db).Set(cmd.Context(), entities.TransfersWatermark, block); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "watermark set to %d\n", block)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(watermarkCmd)
	watermarkCmd.AddCommand(watermarkSetCmd)

	watermarkSetCmd.Flags().Uint64("block", 0, "Last fully indexed block")
	_ = watermarkSetCmd.MarkFlagRequired("block")
}
