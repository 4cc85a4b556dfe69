// Package seer learns from navigation history and issues speculative
// preconnects and DNS pre-resolutions for the loads it expects next.
//
// Public methods run on the caller's goroutine and never block on storage
// or the network. Every store access happens on one worker goroutine;
// predicted actions come back to the caller-facing Executor in a single
// batch.
package seer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/runnerr0/seer/internal/loop"
	"github.com/runnerr0/seer/internal/storage"
	"github.com/runnerr0/seer/internal/uriinfo"
)

// DefaultDBFile is the database file name inside the profile directory.
const DefaultDBFile = "seer.sqlite"

// State is where a Seer is in its lifecycle.
type State int

const (
	Uninitialized State = iota
	Initialized
	ShuttingDown
	Shutdown
)

func (s State) String() string {
	switch s {
	case Initialized:
		return "initialized"
	case ShuttingDown:
		return "shutting down"
	case Shutdown:
		return "shutdown"
	}
	return "uninitialized"
}

// Options configure a Seer. Only ProfileDir is required.
type Options struct {
	// ProfileDir holds the database file.
	ProfileDir string
	// DBFile overrides DefaultDBFile.
	DBFile string
	// Synchronous is the SQLite synchronous pragma. Empty means OFF.
	Synchronous string

	// Prefs gates all work. Nil means always enabled.
	Prefs Preferences
	// Connector and Resolver carry out actions. A nil collaborator means
	// that kind of action is never sent.
	Connector Connector
	Resolver  Resolver

	// Main is the caller-facing executor actions run on. When nil, Init
	// starts a private loop that Shutdown drains.
	Main Executor

	// NoStartupTracking stops this process from counting as a startup and
	// from recording startup pages. Startup predictions still read what
	// earlier processes recorded.
	NoStartupTracking bool

	Logger *zap.Logger
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// Seer is the coordinator. It is safe to call its methods from multiple
// goroutines, but actions are only ever executed on the Main executor.
type Seer struct {
	opts   Options
	logger *zap.Logger

	mu       sync.Mutex
	state    State
	worker   *loop.Loop
	main     Executor
	ownMain  *loop.Loop
	dbPath   string
	dispatch *dispatcher

	// eng is only touched from worker tasks.
	eng *engine
}

// New returns an uninitialized Seer.
func New(opts Options) *Seer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DBFile == "" {
		opts.DBFile = DefaultDBFile
	}
	if opts.Synchronous == "" {
		opts.Synchronous = "OFF"
	}
	return &Seer{opts: opts, logger: logger.Named("seer")}
}

// Init starts the worker and resolves collaborators. The store is opened
// lazily by the first unit of work that needs it. Calling Init again is a
// no-op.
func (s *Seer) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Initialized:
		return nil
	case ShuttingDown, Shutdown:
		return ErrNotAvailable
	}
	if s.opts.ProfileDir == "" {
		return fmt.Errorf("init seer: empty profile dir: %w", ErrInvalidArgument)
	}

	s.dbPath = filepath.Join(s.opts.ProfileDir, s.opts.DBFile)
	s.dispatch = &dispatcher{
		connector: s.opts.Connector,
		resolver:  s.opts.Resolver,
		logger:    s.logger.Named("actions"),
	}

	s.main = s.opts.Main
	if s.main == nil {
		s.ownMain = loop.New("main", s.logger)
		s.main = s.ownMain
	}
	s.worker = loop.New("worker", s.logger)

	s.eng = &engine{
		path:       s.dbPath,
		storeOpts:  storage.Options{Synchronous: s.opts.Synchronous},
		startTime:  s.opts.Now(),
		noStartups: s.opts.NoStartupTracking,
		now:        s.opts.Now,
		logger:     s.logger.Named("engine"),
		deliver:    s.deliver,
	}

	s.state = Initialized
	s.logger.Info("seer initialized", zap.String("db", s.dbPath))
	return nil
}

// DBPath is where the store lives. Empty before Init.
func (s *Seer) DBPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dbPath
}

// State reports the lifecycle state.
func (s *Seer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Predict asks for speculative actions for an upcoming navigation. Link
// predictions run immediately; the others are queued for the worker and
// their actions arrive later on the Main executor.
func (s *Seer) Predict(target, referer *url.URL, reason PredictReason, lc LoadContext, obs Observer) error {
	worker, err := s.available()
	if err != nil {
		return err
	}
	if isPrivate(lc) {
		return nil
	}

	switch reason {
	case PredictLink:
		if target == nil || referer == nil {
			return ErrInvalidArgument
		}
	case PredictLoad:
		if target == nil || referer != nil {
			return ErrInvalidArgument
		}
	case PredictStartup:
		if target != nil || referer != nil {
			return ErrInvalidArgument
		}
	default:
		return ErrInvalidArgument
	}
	if !uriinfo.IsNilOrHTTP(target) || !uriinfo.IsNilOrHTTP(referer) {
		return ErrUnsupportedScheme
	}

	switch reason {
	case PredictLink:
		s.predictForLink(target, referer, obs)
		return nil
	case PredictLoad:
		info := uriinfo.From(target)
		return s.enqueue(worker, func() {
			s.eng.predictForPageload(context.Background(), info, obs)
		})
	default:
		return s.enqueue(worker, func() {
			s.eng.predictForStartup(context.Background(), obs)
		})
	}
}

// predictForLink preconnects to a hovered link without touching the store.
// An https referer never leaks its links through speculative connections.
func (s *Seer) predictForLink(target, referer *url.URL, obs Observer) {
	if uriinfo.IsHTTPS(referer) {
		return
	}
	s.dispatch.preconnect(target, obs)
}

// Learn records a navigation event. The write happens on the worker.
func (s *Seer) Learn(target, referer *url.URL, reason LearnReason, lc LoadContext) error {
	worker, err := s.available()
	if err != nil {
		return err
	}
	if isPrivate(lc) {
		return nil
	}

	switch reason {
	case LearnTopLevel, LearnStartup:
		if target == nil || referer != nil {
			return ErrInvalidArgument
		}
	case LearnRedirect, LearnSubresource:
		if target == nil || referer == nil {
			return ErrInvalidArgument
		}
	default:
		return ErrInvalidArgument
	}
	if !uriinfo.IsNilOrHTTP(target) || !uriinfo.IsNilOrHTTP(referer) {
		return ErrUnsupportedScheme
	}

	t, r := uriinfo.From(target), uriinfo.From(referer)
	return s.enqueue(worker, func() {
		ctx := context.Background()
		switch reason {
		case LearnTopLevel:
			s.eng.learnTopLevel(ctx, t)
		case LearnRedirect:
			s.eng.learnRedirect(ctx, t, r)
		case LearnSubresource:
			s.eng.learnSubresource(ctx, t, r)
		case LearnStartup:
			s.eng.learnStartup(ctx, t)
		}
	})
}

// Reset queues a wipe of everything learned.
func (s *Seer) Reset() error {
	worker, err := s.initialized()
	if err != nil {
		return err
	}
	return s.enqueue(worker, func() {
		s.eng.reset(context.Background())
	})
}

// Stats reads table sizes on the worker and waits for the answer or ctx.
// It is meant for status pages and metrics scrapes, not the navigation
// path.
func (s *Seer) Stats(ctx context.Context) (*storage.Stats, error) {
	worker, err := s.initialized()
	if err != nil {
		return nil, err
	}

	type result struct {
		stats *storage.Stats
		err   error
	}
	ch := make(chan result, 1)
	if err := s.enqueue(worker, func() {
		st, err := s.eng.stats(ctx)
		ch <- result{st, err}
	}); err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.stats, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops accepting work, lets the worker finish everything queued,
// closes the store, and then drains the private Main loop if there is
// one. It returns ErrNotAvailable unless the Seer is initialized.
func (s *Seer) Shutdown() error {
	s.mu.Lock()
	if s.state != Initialized {
		s.mu.Unlock()
		return ErrNotAvailable
	}
	s.state = ShuttingDown
	worker := s.worker
	s.worker = nil
	s.mu.Unlock()

	if err := worker.Dispatch(s.eng.close); err != nil {
		s.logger.Warn("queue store close failed", zap.Error(err))
	}
	worker.Shutdown()
	if s.ownMain != nil {
		s.ownMain.Shutdown()
	}

	s.mu.Lock()
	s.state = Shutdown
	s.mu.Unlock()
	s.logger.Info("seer shut down")
	return nil
}

// deliver runs on the worker and hands list to the Main executor.
func (s *Seer) deliver(list ActionList, obs Observer) {
	if list.Len() == 0 {
		return
	}
	if err := s.main.Dispatch(func() { s.dispatch.run(list, obs) }); err != nil {
		s.logger.Debug("drop actions", zap.Int("actions", list.Len()), zap.Error(err))
	}
}

func (s *Seer) initialized() (*loop.Loop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Initialized {
		return nil, ErrNotAvailable
	}
	return s.worker, nil
}

func (s *Seer) available() (*loop.Loop, error) {
	worker, err := s.initialized()
	if err != nil {
		return nil, err
	}
	if s.opts.Prefs != nil && !s.opts.Prefs.Enabled() {
		return nil, ErrNotAvailable
	}
	return worker, nil
}

func (s *Seer) enqueue(worker *loop.Loop, fn func()) error {
	if err := worker.Dispatch(fn); err != nil {
		if errors.Is(err, loop.ErrClosed) {
			return ErrNotAvailable
		}
		return err
	}
	return nil
}

func isPrivate(lc LoadContext) bool {
	return lc != nil && lc.UsePrivateBrowsing()
}
