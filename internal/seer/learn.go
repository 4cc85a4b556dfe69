package seer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/runnerr0/seer/internal/storage"
	"github.com/runnerr0/seer/internal/uriinfo"
)

// learnTopLevel records a top-level load of info on both axes.
func (e *engine) learnTopLevel(ctx context.Context, info uriinfo.Info) {
	if err := e.ensureStarted(ctx); err != nil {
		return
	}
	now := e.now()
	e.maybeLearnStartup(ctx, info, now)
	e.touchTopLevel(ctx, info, now)
}

// learnSubresource records target as fetched while referer was loading.
// Axes whose parent has never been loaded are left alone.
func (e *engine) learnSubresource(ctx context.Context, target, referer uriinfo.Info) {
	if err := e.ensureStarted(ctx); err != nil {
		return
	}
	now := e.now()
	e.learnChild(ctx, storage.AxisPage, referer.Spec, target.Spec, now)
	e.learnChild(ctx, storage.AxisOrigin, referer.Origin, target.Origin, now)
}

func (e *engine) learnChild(ctx context.Context, axis storage.Axis, parentKey, key string, now time.Time) {
	parent, found, err := e.store.LookupTopLevel(ctx, axis, parentKey)
	if err != nil {
		e.logger.Debug("lookup parent failed", zap.Stringer("axis", axis), zap.Error(err))
		return
	}
	if !found {
		return
	}

	rec, found, err := e.store.LookupSubresource(ctx, axis, parent.ID, key)
	if err != nil {
		e.logger.Debug("lookup subresource failed", zap.Stringer("axis", axis), zap.Error(err))
		return
	}
	if found {
		err = e.store.UpdateSubresource(ctx, axis, rec, now)
	} else {
		err = e.store.AddSubresource(ctx, axis, parent.ID, key, now)
	}
	if err != nil {
		e.logger.Debug("record subresource failed", zap.Stringer("axis", axis), zap.Error(err))
	}
}

// learnRedirect records that loading source ended up at dest. Only the
// page axis tracks redirects.
func (e *engine) learnRedirect(ctx context.Context, dest, source uriinfo.Info) {
	if err := e.ensureStarted(ctx); err != nil {
		return
	}
	now := e.now()

	page, found, err := e.store.LookupTopLevel(ctx, storage.AxisPage, source.Spec)
	if err != nil {
		e.logger.Debug("lookup redirect source failed", zap.Error(err))
		return
	}
	if !found {
		return
	}

	rec, found, err := e.store.LookupRedirect(ctx, page.ID, dest.Spec)
	if err != nil {
		e.logger.Debug("lookup redirect failed", zap.Error(err))
		return
	}
	if found {
		err = e.store.UpdateRedirect(ctx, rec, now)
	} else {
		err = e.store.AddRedirect(ctx, page.ID, dest.Spec, dest.Origin, now)
	}
	if err != nil {
		e.logger.Debug("record redirect failed", zap.Error(err))
	}
}

// learnStartup records info's origin as loaded during startup. The hit is
// stamped with the process start time so every page of one startup shares
// a timestamp.
func (e *engine) learnStartup(ctx context.Context, info uriinfo.Info) {
	if err := e.ensureStarted(ctx); err != nil {
		return
	}

	rec, found, err := e.store.LookupStartupPage(ctx, info.Origin)
	if err != nil {
		e.logger.Debug("lookup startup page failed", zap.Error(err))
		return
	}
	if found {
		err = e.store.UpdateStartupPage(ctx, rec, e.startTime)
	} else {
		err = e.store.AddStartupPage(ctx, info.Origin, e.startTime)
	}
	if err != nil {
		e.logger.Debug("record startup page failed", zap.Error(err))
	}
}

func (e *engine) maybeLearnStartup(ctx context.Context, info uriinfo.Info, now time.Time) {
	if !e.noStartups && now.Sub(e.startTime) < startupWindow {
		e.learnStartup(ctx, info)
	}
}
