package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	redisclient "github.com/vietddude/backstop/internal/infra/redis"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the most recent failures recorded in the Redis journal",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "number of failures to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Redis.URL == "" {
		slog.Error("The failure journal is only shared through Redis; set redis.url")
		os.Exit(1)
	}

	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = client.Close()
	}()

	journal := redisclient.NewJournalRepo(client, cfg.Journal.Prefix, cfg.Journal.TTL)
	entries, err := journal.Recent(context.Background(), statusLimit)
	if err != nil {
		slog.Error("Failed to read failures", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CID\tSTATUS\tMETHOD\tURI\tAT\tMESSAGE")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			e.CID, e.Status, e.Method, e.URI, e.OccurredAt.Format(time.RFC3339), e.Message)
	}
	_ = w.Flush()
}
