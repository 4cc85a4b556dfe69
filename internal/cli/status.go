package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/runnerr0/seer/internal/seer"
	"github.com/runnerr0/seer/internal/storage"
)

const statsTimeout = 5 * time.Second

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string           `json:"version"`
	Enabled           bool             `json:"enabled"`
	ConfigPath        string           `json:"config_path"`
	DatabasePath      string           `json:"database_path"`
	DatabaseSizeBytes int64            `json:"database_size_bytes"`
	Startups          int              `json:"startups"`
	LastStartup       string           `json:"last_startup,omitempty"`
	Tables            []tableCountJSON `json:"tables"`
	DaemonAddr        string           `json:"daemon_addr"`
	DaemonRunning     bool             `json:"daemon_running"`
}

type tableCountJSON struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	e, err := loadEnv(c.globals)
	if err != nil {
		return err
	}
	defer e.logger.Sync() //nolint:errcheck

	s, err := openSeer(e, seerDeps{})
	if err != nil {
		return err
	}
	return c.executeWithSeer(e, s)
}

// executeWithSeer prints status for s and shuts it down.
func (c *StatusCommand) executeWithSeer(e *env, s *seer.Seer) error {
	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()

	stats, err := s.Stats(ctx)
	dbPath := s.DBPath()
	if serr := s.Shutdown(); err == nil && serr != nil {
		err = serr
	}
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	addr := e.cfg.Addr()
	daemonRunning := checkDaemon(addr)

	if c.globals != nil && c.globals.JSON {
		return c.printStatusJSON(e, stats, dbPath, addr, daemonRunning)
	}
	return c.printStatusHuman(e, stats, dbPath, addr, daemonRunning)
}

func (c *StatusCommand) printStatusHuman(e *env, stats *storage.Stats, dbPath, addr string, daemonRunning bool) error {
	fmt.Println("Seer Status")
	fmt.Println("===========")
	fmt.Printf("Version:       %s\n", c.version)
	if e.cfg.Enabled {
		fmt.Printf("Predictions:   %s\n", color.New(color.FgHiGreen).Sprint("enabled"))
	} else {
		fmt.Printf("Predictions:   %s\n", color.New(color.FgRed).Sprint("disabled"))
	}
	fmt.Printf("Config:        %s\n", e.cfgPath)
	fmt.Printf("Database:      %s (%s)\n", dbPath, formatBytes(stats.DatabaseSizeBytes))
	fmt.Printf("Startups:      %s\n", formatNumber(int64(stats.Startups.Count)))
	if !stats.Startups.LastStartup.IsZero() {
		fmt.Printf("Last startup:  %s\n", stats.Startups.LastStartup.Local().Format("2006-01-02 15:04"))
	}

	fmt.Println()
	fmt.Println("Tables:")
	for _, tc := range stats.Tables {
		fmt.Printf("  %-20s %s\n", tc.Table, formatNumber(tc.Rows))
	}

	fmt.Println()
	if daemonRunning {
		fmt.Printf("Daemon:        %s (%s)\n", color.New(color.FgHiGreen).Sprint("running"), addr)
	} else {
		fmt.Printf("Daemon:        %s\n", color.New(color.FgYellow).Sprint("not running"))
	}
	return nil
}

func (c *StatusCommand) printStatusJSON(e *env, stats *storage.Stats, dbPath, addr string, daemonRunning bool) error {
	out := statusJSON{
		Version:           c.version,
		Enabled:           e.cfg.Enabled,
		ConfigPath:        e.cfgPath,
		DatabasePath:      dbPath,
		DatabaseSizeBytes: stats.DatabaseSizeBytes,
		Startups:          stats.Startups.Count,
		Tables:            make([]tableCountJSON, len(stats.Tables)),
		DaemonAddr:        addr,
		DaemonRunning:     daemonRunning,
	}
	if !stats.Startups.LastStartup.IsZero() {
		out.LastStartup = stats.Startups.LastStartup.UTC().Format(time.RFC3339)
	}
	for i, tc := range stats.Tables {
		out.Tables[i] = tableCountJSON{Table: tc.Table, Rows: tc.Rows}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// checkDaemon attempts an HTTP GET to the daemon's status endpoint.
// Returns true if the daemon responds within 1 second.
func checkDaemon(addr string) bool {
	client := &http.Client{Timeout: 1 * time.Second}
	resp, err := client.Get("http://" + addr + "/status")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
