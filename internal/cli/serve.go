package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/runnerr0/seer/internal/config"
	"github.com/runnerr0/seer/internal/metrics"
	"github.com/runnerr0/seer/internal/seer"
)

const shutdownTimeout = 10 * time.Second

// Execute implements the go-flags Commander interface for ServeCommand.
// It blocks until SIGINT or SIGTERM.
func (c *ServeCommand) Execute(args []string) error {
	e, err := loadEnv(c.globals, c.applyOverrides)
	if err != nil {
		return err
	}
	defer e.logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := config.NewWatcher(e.cfgPath, e.cfg, e.logger)
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		watcher.Stop()
		return err
	}
	defer watcher.Stop()

	connector, resolver := networkActions(e)
	defer resolver.Wait()
	defer connector.Wait()

	s, err := openSeer(e, seerDeps{
		Prefs:         watcher,
		Connector:     connector,
		Resolver:      resolver,
		TrackStartups: true,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	d := newDaemon(s, watcher, reg, e.cfg.Daemon.MaxRequestSize, e.logger)
	return d.run(ctx, e.cfg.Addr())
}

// applyOverrides folds the command-line flags into cfg.
func (c *ServeCommand) applyOverrides(cfg *config.Config) error {
	if c.Host != "" {
		cfg.Daemon.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Daemon.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = strings.ToLower(c.LogLevel)
	}
	return cfg.Validate()
}

// daemon is the HTTP front-end over one engine.
type daemon struct {
	seer     *seer.Seer
	prefs    seer.Preferences
	recorder *metrics.Recorder
	observer *metrics.Observer
	maxBody  int64
	logger   *zap.Logger
	handler  http.Handler
}

func newDaemon(s *seer.Seer, prefs seer.Preferences, reg *prometheus.Registry, maxBody int64, logger *zap.Logger) *daemon {
	d := &daemon{
		seer:     s,
		prefs:    prefs,
		recorder: metrics.NewRecorder(reg),
		observer: metrics.NewObserver(reg),
		maxBody:  maxBody,
		logger:   logger.Named("daemon"),
	}
	reg.MustRegister(metrics.NewStoreCollector(s, statsTimeout, d.logger))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /learn", d.handleLearn)
	mux.HandleFunc("POST /predict", d.handlePredict)
	mux.HandleFunc("POST /reset", d.handleReset)
	mux.HandleFunc("GET /status", d.handleStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	d.handler = mux
	return d
}

// run serves on addr until ctx is done, then stops the HTTP server before
// the engine so no request races the shutdown.
func (d *daemon) run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           d.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	d.logger.Info("daemon listening", zap.String("addr", addr))

	var serveErr error
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("daemon listen: %w", err)
		}
	case <-ctx.Done():
		d.logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("http shutdown", zap.Error(err))
		}
	}

	if err := d.seer.Shutdown(); err != nil {
		d.logger.Warn("seer shutdown", zap.Error(err))
	}
	return serveErr
}

// request is the body of POST /learn and POST /predict.
type request struct {
	Reason  string `json:"reason"`
	Target  string `json:"target"`
	Referer string `json:"referer,omitempty"`
	Private bool   `json:"private,omitempty"`
}

func (d *daemon) decode(w http.ResponseWriter, r *http.Request) (request, seer.BrowsingContext, error) {
	var req request
	body := http.MaxBytesReader(w, r.Body, d.maxBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return req, seer.BrowsingContext{}, fmt.Errorf("decode request: %w", seer.ErrInvalidArgument)
	}
	return req, seer.BrowsingContext{Private: req.Private}, nil
}

func (d *daemon) handleLearn(w http.ResponseWriter, r *http.Request) {
	req, lc, err := d.decode(w, r)
	label := "unknown"
	if err == nil {
		var reason seer.LearnReason
		if reason, err = seer.ParseLearnReason(req.Reason); err == nil {
			label = reason.String()
			err = d.learn(req, reason, lc)
		}
	}
	d.recorder.Record("learn", label, err)
	d.respond(w, err)
}

func (d *daemon) learn(req request, reason seer.LearnReason, lc seer.LoadContext) error {
	target, err := parseOptionalURL(req.Target)
	if err != nil {
		return err
	}
	referer, err := parseOptionalURL(req.Referer)
	if err != nil {
		return err
	}
	return d.seer.Learn(target, referer, reason, lc)
}

func (d *daemon) handlePredict(w http.ResponseWriter, r *http.Request) {
	req, lc, err := d.decode(w, r)
	label := "unknown"
	if err == nil {
		var reason seer.PredictReason
		if reason, err = seer.ParsePredictReason(req.Reason); err == nil {
			label = reason.String()
			err = d.predict(req, reason, lc)
		}
	}
	d.recorder.Record("predict", label, err)
	d.respond(w, err)
}

func (d *daemon) predict(req request, reason seer.PredictReason, lc seer.LoadContext) error {
	target, err := parseOptionalURL(req.Target)
	if err != nil {
		return err
	}
	referer, err := parseOptionalURL(req.Referer)
	if err != nil {
		return err
	}
	return d.seer.Predict(target, referer, reason, lc, d.observer)
}

func (d *daemon) handleReset(w http.ResponseWriter, r *http.Request) {
	err := d.seer.Reset()
	d.recorder.Record("reset", "", err)
	d.respond(w, err)
}

func (d *daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statsTimeout)
	defer cancel()

	stats, err := d.seer.Stats(ctx)
	if err != nil {
		d.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}

	out := statusJSON{
		Enabled:           d.prefs == nil || d.prefs.Enabled(),
		DatabasePath:      d.seer.DBPath(),
		DatabaseSizeBytes: stats.DatabaseSizeBytes,
		Startups:          stats.Startups.Count,
		Tables:            make([]tableCountJSON, len(stats.Tables)),
	}
	if !stats.Startups.LastStartup.IsZero() {
		out.LastStartup = stats.Startups.LastStartup.UTC().Format(time.RFC3339)
	}
	for i, tc := range stats.Tables {
		out.Tables[i] = tableCountJSON{Table: tc.Table, Rows: tc.Rows}
	}
	d.writeJSON(w, http.StatusOK, out)
}

// respond maps engine errors to status codes. Accepted work answers 202
// because it runs after the response is written.
func (d *daemon) respond(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		d.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, seer.ErrNotAvailable):
		d.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(err, seer.ErrInvalidArgument), errors.Is(err, seer.ErrUnsupportedScheme):
		d.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		d.logger.Error("request failed", zap.Error(err))
		d.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func (d *daemon) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		d.logger.Debug("write response", zap.Error(err))
	}
}
