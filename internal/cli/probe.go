package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/vietddude/backstop/internal/control"
)

var (
	probeAccept  string
	probeRetries int
	probeHeaders bool
)

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Fetch a URL with retries and print the response or the rendered failure",
	Args:  cobra.ExactArgs(1),
	RunE:  runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeAccept, "accept", "", "Accept header used to pick the error representation")
	probeCmd.Flags().IntVar(&probeRetries, "retries", 0, "override the configured max retries")
	probeCmd.Flags().BoolVarP(&probeHeaders, "include", "i", false, "print status and headers")
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Probe output goes to stdout; keep the journal in memory.
	cfg.Redis.URL = ""
	if probeRetries > 0 {
		cfg.Retry.MaxRetries = probeRetries
	}
	setupLogging(cfg)

	app, err := control.NewApp(cfg, slog.Default())
	if err != nil {
		return err
	}

	resp, err := app.Probe(context.Background(), args[0], probeAccept)
	if err != nil {
		return err
	}
	if probeHeaders {
		printHead(cmd.OutOrStdout(), resp.Status, resp.Headers)
	}
	if _, err := cmd.OutOrStdout().Write(resp.Body); err != nil {
		return err
	}
	if resp.Status >= 400 {
		os.Exit(2)
	}
	return nil
}

func printHead(w io.Writer, status int, headers map[string]string) {
	fmt.Fprintf(w, "%d\n", status)
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s: %s\n", k, headers[k])
	}
	fmt.Fprintln(w)
}
