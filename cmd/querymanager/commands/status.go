package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/openmmo/querymanager/pkg/config"
)

var (
	statusOutput  string
	statusPidFile string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the query manager daemon.

This command checks the PID file and, when the metrics listener is enabled,
probes its health endpoint.

Examples:
  # Check status (uses default settings)
  querymanager status

  # Output as JSON
  querymanager status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/querymanager/querymanager.pid)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json)")
}

// ServerStatus is the answer of the status command.
type ServerStatus struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid,omitempty"`
	Healthy bool   `json:"healthy"`
	Message string `json:"message"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusOutput != "table" && statusOutput != "json" {
		return fmt.Errorf("invalid output format: %s (use table or json)", statusOutput)
	}

	status := ServerStatus{Message: "Query manager is not running"}

	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}
	if pid, running := isProcessRunning(pidPath); running {
		status.Running = true
		status.PID = pid
		status.Message = "Query manager process exists"
	}

	// The health probe works for daemon and foreground mode alike, but only
	// when the metrics listener is configured on.
	if cfg, err := config.Load(GetConfigFile()); err == nil && cfg.Metrics.Enabled {
		probeHealth(&status, cfg.Metrics)
	}

	if statusOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	printStatusTable(status)
	return nil
}

// probeHealth asks the metrics listener whether the server is up. A reply
// proves liveness even when no PID file exists.
func probeHealth(status *ServerStatus, cfg config.MetricsConfig) {
	host := cfg.Host
	if host == "" {
		host = "localhost"
	}
	url := fmt.Sprintf("http://%s:%d/healthz", host, cfg.Port)

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		if status.Running {
			status.Message = "Query manager process exists but health check failed"
		}
		return
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64))
	if resp.StatusCode == http.StatusOK && strings.TrimSpace(string(body)) == "ok" {
		status.Running = true
		status.Healthy = true
		status.Message = "Query manager is running and healthy"
		return
	}
	status.Running = true
	status.Message = fmt.Sprintf("Query manager is running but unhealthy (HTTP %d)", resp.StatusCode)
}

func printStatusTable(status ServerStatus) {
	fmt.Println()
	fmt.Println("Query Manager Status")
	fmt.Println("====================")
	fmt.Println()

	if status.Running {
		if status.Healthy {
			fmt.Printf("  Status:  \033[32m● Running\033[0m\n")
		} else {
			fmt.Printf("  Status:  \033[33m● Running (unverified)\033[0m\n")
		}
		if status.PID != 0 {
			fmt.Printf("  PID:     %d\n", status.PID)
		}
	} else {
		fmt.Printf("  Status:  \033[31m○ Stopped\033[0m\n")
	}

	fmt.Println()
	fmt.Printf("  %s\n", status.Message)
	fmt.Println()
}
