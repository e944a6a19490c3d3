package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/pumpwatch/internal/core/config"
	"github.com/vietddude/pumpwatch/internal/infra/storage/postgres"
)

var resetCheckpointCmd = &cobra.Command{
	Use:   "reset-checkpoint [stream_id] [ledger]",
	Short: "Force a stream's checkpoint to a given ledger",
	Long: `Force a stream's checkpoint to a given ledger, including backwards.
Handlers are idempotent, so re-ingesting an already processed range is safe.`,
	Args: cobra.ExactArgs(2),
	Run:  runResetCheckpoint,
}

func init() {
	rootCmd.AddCommand(resetCheckpointCmd)
}

func runResetCheckpoint(cmd *cobra.Command, args []string) {
	streamID := args[0]
	ledger, err := strconv.ParseUint(args[1], 10, 32)
	if err != nil {
		fmt.Printf("Invalid ledger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	// Direct SQL on purpose: the repository refuses regressions, a
	// manual reset must not.
	query := `
		INSERT INTO checkpoints (stream_id, last_ledger, last_event_id, updated_at)
		VALUES ($1, $2, '', now())
		ON CONFLICT (stream_id) DO UPDATE SET
			last_ledger   = EXCLUDED.last_ledger,
			last_event_id = '',
			updated_at    = now()`
	if _, err := db.ExecContext(ctx, query, streamID, int64(ledger)); err != nil {
		slog.Error("Failed to reset checkpoint", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Successfully reset checkpoint for %s to ledger %d\n", streamID, ledger)
}
