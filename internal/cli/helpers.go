package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/runnerr0/seer/internal/config"
	"github.com/runnerr0/seer/internal/logging"
	"github.com/runnerr0/seer/internal/netaction"
	"github.com/runnerr0/seer/internal/seer"
)

// env is what every command needs before it can build an engine.
type env struct {
	cfg     *config.Config
	cfgPath string
	logger  *zap.Logger
}

// loadEnv resolves and loads the config file (creating it with defaults if
// missing), applies overrides in order, and builds the logger last so it
// sees the final settings.
func loadEnv(globals *GlobalFlags, overrides ...func(*config.Config) error) (*env, error) {
	if globals == nil {
		globals = &GlobalFlags{}
	}
	path, err := config.ResolvePath(globals.Config)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	cfg, err := config.LoadOrCreateAt(path)
	if err != nil {
		return nil, err
	}
	for _, override := range overrides {
		if err := override(cfg); err != nil {
			return nil, err
		}
	}
	logger, err := logging.New(cfg.Logging, globals.Verbose)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, cfgPath: path, logger: logger}, nil
}

// seerDeps are the collaborators a command plugs into the engine.
type seerDeps struct {
	Prefs     seer.Preferences
	Connector seer.Connector
	Resolver  seer.Resolver
	// TrackStartups counts this process as a startup. Only the daemon
	// lives long enough for that to mean anything.
	TrackStartups bool
}

// openSeer builds and initializes an engine from the config. Without an
// explicit Prefs the config's enabled flag is used as read.
func openSeer(e *env, deps seerDeps) (*seer.Seer, error) {
	profileDir, err := e.cfg.ProfileDir()
	if err != nil {
		return nil, fmt.Errorf("resolve profile dir: %w", err)
	}
	prefs := deps.Prefs
	if prefs == nil {
		prefs = seer.StaticPreferences(e.cfg.Enabled)
	}

	s := seer.New(seer.Options{
		ProfileDir:  profileDir,
		DBFile:      e.cfg.Storage.DBFile,
		Synchronous: e.cfg.Storage.Synchronous,
		Prefs:       prefs,
		Connector:   deps.Connector,
		Resolver:    deps.Resolver,
		Logger:      e.logger,

		NoStartupTracking: !deps.TrackStartups,
	})
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

// networkActions builds the real connector and resolver from the config.
func networkActions(e *env) (*netaction.Connector, *netaction.Resolver) {
	connector := netaction.NewConnector(netaction.ConnectorOptions{
		Timeout: time.Duration(e.cfg.Network.ConnectTimeoutSeconds) * time.Second,
	}, e.logger)
	resolver := netaction.NewResolver(time.Duration(e.cfg.Network.ResolveTimeoutSeconds)*time.Second, e.logger)
	return connector, resolver
}

// parseOptionalURL parses raw, returning nil for an empty string.
func parseOptionalURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, seer.ErrInvalidArgument)
	}
	return u, nil
}

// explain turns engine sentinels into messages a user can act on.
func explain(err error) error {
	switch {
	case errors.Is(err, seer.ErrNotAvailable):
		return fmt.Errorf("seer is disabled or not running (set enabled: true in the config): %w", err)
	case errors.Is(err, seer.ErrUnsupportedScheme):
		return fmt.Errorf("only http and https URIs can be learned or predicted: %w", err)
	}
	return err
}

// dryRun accepts actions without touching the network.
type dryRun struct{}

func (dryRun) Preconnect(*url.URL) {}
func (dryRun) Resolve(string)      {}

// actionLog collects the actions the engine issued. It is an Observer.
type actionLog struct {
	mu          sync.Mutex
	preconnects []string
	preresolves []string
}

func (l *actionLog) OnPredictPreconnect(u *url.URL) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.preconnects = append(l.preconnects, u.String())
}

func (l *actionLog) OnPredictDNS(u *url.URL) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.preresolves = append(l.preresolves, u.String())
}

func (l *actionLog) print(asJSON bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if asJSON {
		out := struct {
			Preconnects []string `json:"preconnects"`
			Preresolves []string `json:"preresolves"`
		}{nonNil(l.preconnects), nonNil(l.preresolves)}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if len(l.preconnects)+len(l.preresolves) == 0 {
		fmt.Println("No predictions.")
		return nil
	}
	for _, u := range l.preconnects {
		fmt.Printf("preconnect  %s\n", u)
	}
	for _, u := range l.preresolves {
		fmt.Printf("preresolve  %s\n", u)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
		if len(s) > remainder {
			result.WriteString(",")
		}
	}
	for i := remainder; i < len(s); i += 3 {
		if i > remainder {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
