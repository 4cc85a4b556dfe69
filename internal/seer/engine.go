package seer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/runnerr0/seer/internal/storage"
	"github.com/runnerr0/seer/internal/uriinfo"
)

// startupWindow is how long after process start a top-level load also
// counts as a startup page.
const startupWindow = 5 * time.Minute

// engine holds everything the worker goroutine owns. None of its methods
// may be called from anywhere but a worker task.
type engine struct {
	path      string
	storeOpts storage.Options
	store     *storage.SQLiteStore

	// started is set once the startup counter has been bumped for this
	// process. startups is the counter as it stood before that.
	started  bool
	startups storage.StartupCounter

	// noStartups leaves the startup counter and startup pages alone. Short
	// lived processes set it so they are not counted as browser startups.
	noStartups bool

	startTime time.Time
	now       func() time.Time
	logger    *zap.Logger

	// deliver hands a finished prediction to the caller-facing side.
	deliver func(ActionList, Observer)
}

// ensureStorage opens the store on first use.
func (e *engine) ensureStorage(ctx context.Context) error {
	if e.store != nil {
		return nil
	}
	store, err := storage.Open(ctx, e.path, e.storeOpts)
	if err != nil {
		e.logger.Warn("open store failed", zap.String("path", e.path), zap.Error(err))
		return fmt.Errorf("open store: %w", err)
	}
	e.store = store
	e.logger.Info("store opened", zap.String("path", e.path))
	return nil
}

// ensureStarted opens the store and counts this process as one startup.
func (e *engine) ensureStarted(ctx context.Context) error {
	if err := e.ensureStorage(ctx); err != nil {
		return err
	}
	if e.started {
		return nil
	}
	e.started = true

	bump := e.store.BumpStartupCounter
	if e.noStartups {
		bump = func(ctx context.Context, _ time.Time) (storage.StartupCounter, error) {
			return e.store.StartupCounter(ctx)
		}
	}
	counter, err := bump(ctx, e.startTime)
	if err != nil {
		e.logger.Warn("read startup counter failed", zap.Error(err))
		return nil
	}
	e.startups = counter
	e.logger.Debug("startup counter loaded",
		zap.Bool("counted", !e.noStartups),
		zap.Int("previous_startups", counter.Count),
		zap.Time("last_startup", counter.LastStartup))
	return nil
}

func (e *engine) reset(ctx context.Context) {
	if err := e.ensureStorage(ctx); err != nil {
		return
	}
	if err := e.store.Reset(ctx); err != nil {
		e.logger.Warn("reset failed", zap.Error(err))
		return
	}
	e.logger.Info("all navigation data cleared")
}

func (e *engine) stats(ctx context.Context) (*storage.Stats, error) {
	if err := e.ensureStorage(ctx); err != nil {
		return nil, err
	}
	return e.store.GetStats(ctx)
}

// close finalizes cached statements and closes the database.
func (e *engine) close() {
	if e.store == nil {
		return
	}
	if err := e.store.Close(); err != nil {
		e.logger.Warn("close store failed", zap.Error(err))
	}
	e.store = nil
	e.logger.Info("store closed")
}

// touchTopLevel records one load of info on both axes and returns the
// records as they were before this load.
func (e *engine) touchTopLevel(ctx context.Context, info uriinfo.Info, now time.Time) (page, origin topLevel) {
	page = e.touch(ctx, storage.AxisPage, info.Spec, now)
	origin = e.touch(ctx, storage.AxisOrigin, info.Origin, now)
	return page, origin
}

// topLevel is a lookup result: the record and whether it existed.
type topLevel struct {
	storage.TopLevelRecord
	found bool
}

func (e *engine) touch(ctx context.Context, axis storage.Axis, key string, now time.Time) topLevel {
	rec, found, err := e.store.LookupTopLevel(ctx, axis, key)
	if err != nil {
		e.logger.Debug("lookup top-level failed", zap.Stringer("axis", axis), zap.Error(err))
		return topLevel{}
	}
	if found {
		err = e.store.UpdateTopLevel(ctx, axis, rec, now)
	} else {
		err = e.store.AddTopLevel(ctx, axis, key, now)
	}
	if err != nil {
		e.logger.Debug("record top-level failed", zap.Stringer("axis", axis), zap.Error(err))
	}
	return topLevel{TopLevelRecord: rec, found: found}
}
