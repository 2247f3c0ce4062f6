package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sawpanic/marketdata-ingest/internal/config"
)

var (
	healthJSON    bool
	healthTimeout time.Duration
	healthAddr    string
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Query a running ingestd's /health endpoint",
	Long: `Fetches the JSON health snapshot from a running ingestd instance's
local health server and prints it. Exits non-zero if any source is
degraded or the server can't be reached.

Examples:
  ingestd health
  ingestd health --json
  ingestd health --addr 127.0.0.1:9090`,
	RunE: runHealthCommand,
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Print the raw JSON response")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 5*time.Second, "Request timeout")
	healthCmd.Flags().StringVar(&healthAddr, "addr", "", "Health server address (default: HEALTH_HTTP_ADDR or 127.0.0.1:9090)")
}

type healthSnapshot struct {
	Status    string                     `json:"status"`
	Timestamp time.Time                  `json:"timestamp"`
	Sources   map[string]json.RawMessage `json:"sources"`
}

func runHealthCommand(cmd *cobra.Command, args []string) error {
	addr := healthAddr
	if addr == "" {
		cfg, err := config.Load()
		if err == nil && cfg.HealthHTTPAddr != "" {
			addr = cfg.HealthHTTPAddr
		} else {
			addr = "127.0.0.1:9090"
		}
	}

	client := &http.Client{Timeout: healthTimeout}
	resp, err := client.Get("http://" + addr + "/health")
	if err != nil {
		return fmt.Errorf("reach ingestd at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read health response: %w", err)
	}

	var snap healthSnapshot
	parseErr := json.Unmarshal(body, &snap)

	if healthJSON {
		fmt.Fprintln(os.Stdout, string(body))
	} else {
		if parseErr != nil {
			return fmt.Errorf("parse health response: %w", parseErr)
		}
		fmt.Printf("status: %s (as of %s)\n", snap.Status, snap.Timestamp.Format(time.RFC3339))
		for name, raw := range snap.Sources {
			fmt.Printf("  %s: %s\n", name, string(raw))
		}
	}

	if resp.StatusCode != http.StatusOK || snap.Status == "degraded" {
		os.Exit(1)
	}
	return nil
}
