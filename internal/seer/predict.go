package seer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/runnerr0/seer/internal/confidence"
	"github.com/runnerr0/seer/internal/storage"
	"github.com/runnerr0/seer/internal/uriinfo"
)

// predictForPageload learns the load of info and predicts what it will
// need from the statistics as they stood before this load.
func (e *engine) predictForPageload(ctx context.Context, info uriinfo.Info, obs Observer) {
	if err := e.ensureStarted(ctx); err != nil {
		return
	}

	var list ActionList
	e.predictPage(ctx, info, e.now(), &list, map[string]bool{})
	e.deliver(list, obs)
}

func (e *engine) predictPage(ctx context.Context, info uriinfo.Info, now time.Time, list *ActionList, visited map[string]bool) {
	visited[info.Spec] = true

	e.maybeLearnStartup(ctx, info, now)
	page, origin := e.touchTopLevel(ctx, info, now)

	if page.found {
		if dest, ok := e.likelyRedirect(ctx, page.TopLevelRecord, now); ok && !visited[dest.Spec] {
			list.AddPreconnect(dest.Spec)
			e.predictPage(ctx, dest, now, list, visited)
			return
		}
	}

	predicted := false
	if page.found {
		predicted = e.tryPredict(ctx, storage.AxisPage, page.TopLevelRecord, now, list)
	}
	if !predicted && origin.found {
		e.tryPredict(ctx, storage.AxisOrigin, origin.TopLevelRecord, now, list)
	}
}

// tryPredict classifies every child of parent on axis and reports whether
// any action came out of it.
func (e *engine) tryPredict(ctx context.Context, axis storage.Axis, parent storage.TopLevelRecord, now time.Time, list *ActionList) bool {
	global := confidence.GlobalDegradation(now, parent.LastLoad)
	added := 0

	skipped, errs := storage.Fold(e.store.Subresources(ctx, axis, parent.ID), func(rec storage.SubresourceRecord) {
		base, ok := confidence.BaseConfidence(rec.HitCount, parent.LoadCount)
		if !ok {
			return
		}
		conf := confidence.Confidence(base, rec.LastHit, parent.LastLoad, global)
		if list.Add(conf, rec.Key) {
			added++
		}
	})
	e.logSkipped(axis.String(), skipped, errs)

	return added > 0
}

// likelyRedirect returns the most confident redirect away from page, if
// its confidence clears the redirect threshold.
func (e *engine) likelyRedirect(ctx context.Context, page storage.TopLevelRecord, now time.Time) (uriinfo.Info, bool) {
	global := confidence.GlobalDegradation(now, page.LastLoad)

	var best uriinfo.Info
	bestConf := -1
	skipped, errs := storage.Fold(e.store.Redirects(ctx, page.ID), func(rec storage.RedirectRecord) {
		base, ok := confidence.BaseConfidence(rec.HitCount, page.LoadCount)
		if !ok {
			return
		}
		conf := confidence.Confidence(base, rec.LastHit, page.LastLoad, global)
		if conf > bestConf {
			bestConf = conf
			best = uriinfo.Info{Spec: rec.URI, Origin: rec.Origin}
		}
	})
	e.logSkipped("redirects", skipped, errs)

	if bestConf > confidence.RedirectLikely {
		return best, true
	}
	return uriinfo.Info{}, false
}

// predictForStartup predicts from the origins loaded during earlier
// startups.
func (e *engine) predictForStartup(ctx context.Context, obs Observer) {
	if err := e.ensureStarted(ctx); err != nil {
		return
	}

	var list ActionList
	skipped, errs := storage.Fold(e.store.StartupPages(ctx), func(rec storage.StartupPageRecord) {
		base, ok := confidence.BaseConfidence(rec.HitCount, e.startups.Count)
		if !ok {
			return
		}
		conf := confidence.Confidence(base, rec.LastHit, e.startups.LastStartup, 0)
		list.Add(conf, rec.Origin)
	})
	e.logSkipped("startup_pages", skipped, errs)

	e.deliver(list, obs)
}

func (e *engine) logSkipped(scan string, skipped int, errs []error) {
	if skipped == 0 {
		return
	}
	e.logger.Debug("skipped unreadable rows",
		zap.String("scan", scan),
		zap.Int("skipped", skipped),
		zap.Errors("errors", errs))
}
