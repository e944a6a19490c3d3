package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/pumpwatch/internal/core/config"
	"github.com/vietddude/pumpwatch/internal/core/domain"
	"github.com/vietddude/pumpwatch/internal/ingest/handlers"
	redisclient "github.com/vietddude/pumpwatch/internal/infra/redis"
	"github.com/vietddude/pumpwatch/internal/infra/storage/postgres"
)

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "Inspect and replay the dead letter queue",
}

var failedListCmd = &cobra.Command{
	Use:   "list [contract]",
	Short: "List dead letter events for a contract",
	Args:  cobra.ExactArgs(1),
	Run:   runFailedList,
}

var failedRetryCmd = &cobra.Command{
	Use:   "retry [contract]",
	Short: "Replay dead letter events through the handlers, oldest first",
	Long: `Replay dead letter events through the handlers, oldest first.
Stops at the first event that fails again; handlers are idempotent, so
retrying an event that partially applied is safe.`,
	Args: cobra.ExactArgs(1),
	Run:  runFailedRetry,
}

var failedResolveCmd = &cobra.Command{
	Use:   "resolve [contract] [id]",
	Short: "Drop one dead letter event without replaying it",
	Args:  cobra.ExactArgs(2),
	Run:   runFailedResolve,
}

func init() {
	failedCmd.AddCommand(failedListCmd)
	failedCmd.AddCommand(failedRetryCmd)
	failedCmd.AddCommand(failedResolveCmd)
	rootCmd.AddCommand(failedCmd)
}

func openFailedRepo(contract string) (*config.AppConfig, *redisclient.FailedEventRepo) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.URL == "" {
		slog.Error("redis.url is not configured, no dead letter queue")
		os.Exit(1)
	}

	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return cfg, redisclient.NewFailedEventRepo(client, contract)
}

func runFailedList(cmd *cobra.Command, args []string) {
	_, repo := openFailedRepo(args[0])

	events, err := repo.GetAll(context.Background())
	if err != nil {
		slog.Error("Failed to read dead letter queue", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tEVENT\tKIND\tLEDGER\tTYPE\tRETRIES\tERROR")

	for _, fe := range events {
		msg := fe.Error
		if len(msg) > 60 {
			msg = msg[:57] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			fe.ID, fe.EventID, fe.Kind, fe.Ledger, fe.FailureType, fe.RetryCount, msg)
	}
	_ = w.Flush()
}

func runFailedRetry(cmd *cobra.Command, args []string) {
	cfg, repo := openFailedRepo(args[0])

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()

	registry := handlers.NewRegistry(handlers.Deps{
		Tokens:    postgres.NewTokenRepo(db),
		Trades:    postgres.NewTradeRepo(db),
		Liquidity: postgres.NewLiquidityRepo(db),
		Swaps:     postgres.NewSwapRepo(db),
		Traders:   postgres.NewTraderRepo(db),
	})

	replayed := 0
	for {
		fe, err := repo.GetNext(ctx)
		if err != nil {
			slog.Error("Failed to read dead letter queue", "error", err)
			os.Exit(1)
		}
		if fe == nil {
			break
		}

		evt := domain.Event{
			ID:       fe.EventID,
			Ledger:   fe.Ledger,
			Contract: fe.Contract,
			Kind:     fe.Kind,
			Payload:  fe.Payload,
			ClosedAt: time.Unix(fe.ClosedAt, 0),
		}

		if err := registry.Handle(ctx, evt); err != nil {
			if rerr := repo.IncrementRetry(ctx, fe.ID); rerr != nil {
				slog.Warn("Failed to bump retry count", "id", fe.ID, "error", rerr)
			}
			slog.Error("Replay failed, stopping", "event", fe.EventID, "error", err)
			os.Exit(1)
		}

		if err := repo.MarkResolved(ctx, fe.ID); err != nil {
			slog.Error("Failed to mark event resolved", "id", fe.ID, "error", err)
			os.Exit(1)
		}
		replayed++
		fmt.Printf("Replayed %s (%s)\n", fe.EventID, fe.Kind)
	}

	fmt.Printf("Replayed %d event(s)\n", replayed)
}

func runFailedResolve(cmd *cobra.Command, args []string) {
	_, repo := openFailedRepo(args[0])

	if err := repo.MarkResolved(context.Background(), args[1]); err != nil {
		slog.Error("Failed to mark event resolved", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Resolved %s\n", args[1])
}
