package seer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/seer/internal/storage"
	"github.com/runnerr0/seer/internal/uriinfo"
)

const (
	pageP  = "https://www.example.com/index.html"
	pageQ  = "https://www.example.net/landing"
	cdnJS  = "https://cdn.example.org/lib.js"
	imgPNG = "https://img.example.io/logo.png"
)

func info(t *testing.T, raw string) uriinfo.Info {
	t.Helper()
	i, err := uriinfo.Parse(raw)
	require.NoError(t, err)
	return i
}

func (te *testEngine) loadN(t *testing.T, raw string, n int) {
	for i := 0; i < n; i++ {
		te.learnTopLevel(context.Background(), info(t, raw))
	}
}

func (te *testEngine) fetchN(t *testing.T, target, referer string, n int) {
	for i := 0; i < n; i++ {
		te.learnSubresource(context.Background(), info(t, target), info(t, referer))
	}
}

func (te *testEngine) redirectN(t *testing.T, dest, source string, n int) {
	for i := 0; i < n; i++ {
		te.learnRedirect(context.Background(), info(t, dest), info(t, source))
	}
}

func (te *testEngine) topLevel(t *testing.T, axis storage.Axis, key string) storage.TopLevelRecord {
	t.Helper()
	rec, ok, err := te.store.LookupTopLevel(context.Background(), axis, key)
	require.NoError(t, err)
	require.True(t, ok, "%s %s should be recorded", axis, key)
	return rec
}

func (te *testEngine) rowCount(t *testing.T, table string) int64 {
	t.Helper()
	stats, err := te.stats(context.Background())
	require.NoError(t, err)
	for _, tc := range stats.Tables {
		if tc.Table == table {
			return tc.Rows
		}
	}
	t.Fatalf("no table %s", table)
	return 0
}

// --- Learning ---

func TestLearnTopLevel_Twice(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))

	te.clock.Set(t0)
	te.loadN(t, pageP, 1)
	second := t0.Add(time.Minute)
	te.clock.Set(second)
	te.loadN(t, pageP, 1)

	page := te.topLevel(t, storage.AxisPage, pageP)
	assert.Equal(t, 2, page.LoadCount)
	assert.True(t, page.LastLoad.Equal(second))

	origin := te.topLevel(t, storage.AxisOrigin, "https://www.example.com")
	assert.Equal(t, 2, origin.LoadCount)
	assert.True(t, origin.LastLoad.Equal(second))
}

func TestLearnSubresource_WithoutParentIsNoop(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)

	te.fetchN(t, cdnJS, pageP, 3)

	assert.Zero(t, te.rowCount(t, "subresources"))
	assert.Zero(t, te.rowCount(t, "subhosts"))
}

func TestLearnSubresource_BothAxes(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)
	ctx := context.Background()

	te.loadN(t, pageP, 1)
	te.fetchN(t, cdnJS, pageP, 2)

	page := te.topLevel(t, storage.AxisPage, pageP)
	sub, ok, err := te.store.LookupSubresource(ctx, storage.AxisPage, page.ID, cdnJS)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, sub.HitCount)

	host := te.topLevel(t, storage.AxisOrigin, "https://www.example.com")
	subhost, ok, err := te.store.LookupSubresource(ctx, storage.AxisOrigin, host.ID, "https://cdn.example.org")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, subhost.HitCount)
}

func TestLearnSubresource_OriginOnlyParent(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)

	te.loadN(t, pageP, 1)
	// Another page on the same origin has no page row, only the origin row.
	te.fetchN(t, cdnJS, "https://www.example.com/other", 1)

	assert.Zero(t, te.rowCount(t, "subresources"))
	assert.Equal(t, int64(1), te.rowCount(t, "subhosts"))
}

func TestLearnRedirect(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)
	ctx := context.Background()

	te.redirectN(t, pageQ, pageP, 1)
	assert.Zero(t, te.rowCount(t, "redirects"), "unknown source records nothing")

	te.loadN(t, pageP, 1)
	te.redirectN(t, pageQ, pageP, 2)

	page := te.topLevel(t, storage.AxisPage, pageP)
	rec, ok, err := te.store.LookupRedirect(ctx, page.ID, pageQ)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, rec.HitCount)
	assert.Equal(t, "https://www.example.net", rec.Origin)
}

func TestLearnStartup_StampsStartTime(t *testing.T) {
	start := t0
	te := newTestEngine(t, t.TempDir(), start)
	te.clock.Set(start.Add(2 * time.Minute))

	te.learnStartup(context.Background(), info(t, pageP))

	rec, ok, err := te.store.LookupStartupPage(context.Background(), "https://www.example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.LastHit.Equal(start))
}

func TestLearnTopLevel_StartupWindow(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0)

	te.clock.Set(t0.Add(4 * time.Minute))
	te.loadN(t, pageP, 1)
	assert.Equal(t, int64(1), te.rowCount(t, "startup_pages"))

	te.clock.Set(t0.Add(6 * time.Minute))
	te.loadN(t, pageQ, 1)
	assert.Equal(t, int64(1), te.rowCount(t, "startup_pages"), "loads after the window are not startup pages")
}

func TestEnsureStarted_CountsOncePerProcess(t *testing.T) {
	dir := t.TempDir()
	te := newTestEngine(t, dir, t0)
	te.loadN(t, pageP, 3)

	stats, err := te.stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Startups.Count)
}

// --- Prediction ---

func TestPredictForPageload_FirstLoadPredictsNothing(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)

	te.predictForPageload(context.Background(), info(t, pageP), nil)

	assert.Zero(t, te.last(t).Len())
	assert.Equal(t, 1, te.topLevel(t, storage.AxisPage, pageP).LoadCount, "the load is still learned")
}

func TestPredictForPageload_Scenarios(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))

	// Nine loads two days ago fetched the image five times; the last load,
	// at T, skipped it. The script was fetched on nine loads including T.
	te.clock.Set(t0.Add(-48 * time.Hour))
	te.loadN(t, pageP, 9)
	te.fetchN(t, imgPNG, pageP, 5)

	te.clock.Set(t0)
	te.loadN(t, pageP, 1)
	te.fetchN(t, cdnJS, pageP, 9)

	page := te.topLevel(t, storage.AxisPage, pageP)
	require.Equal(t, 10, page.LoadCount)

	te.predictForPageload(context.Background(), info(t, pageP), nil)

	list := te.last(t)
	assert.Equal(t, []string{cdnJS}, list.Preconnects, "a fresh 90 percent hit rate is a preconnect")
	assert.Empty(t, list.Preresolves, "a stale 50 percent hit rate scores 40, below the pre-resolve floor")
}

func TestPredictForPageload_Preresolve(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)

	te.loadN(t, pageP, 10)
	te.fetchN(t, imgPNG, pageP, 7)

	te.predictForPageload(context.Background(), info(t, pageP), nil)

	list := te.last(t)
	assert.Empty(t, list.Preconnects)
	assert.Equal(t, []string{imgPNG}, list.Preresolves)
}

func TestPredictForPageload_GlobalDegradation(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)
	te.loadN(t, pageP, 4)
	te.fetchN(t, cdnJS, pageP, 4)

	// 40 days later the same page only earns a pre-resolve: 100 - 25.
	te.clock.Set(t0.Add(40 * 24 * time.Hour))
	te.predictForPageload(context.Background(), info(t, pageP), nil)

	list := te.last(t)
	assert.Empty(t, list.Preconnects)
	assert.Equal(t, []string{cdnJS}, list.Preresolves)
}

func TestPredictForPageload_UsesStatsBeforeThisLoad(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)
	te.loadN(t, pageP, 1)
	te.fetchN(t, cdnJS, pageP, 1)

	te.clock.Set(t0.Add(time.Minute))
	te.predictForPageload(context.Background(), info(t, pageP), nil)

	// One load, one hit, both at T: full confidence even though this
	// prediction bumped the load count to two.
	assert.Equal(t, []string{cdnJS}, te.last(t).Preconnects)
	assert.Equal(t, 2, te.topLevel(t, storage.AxisPage, pageP).LoadCount)
}

func TestPredictForPageload_OriginFallback(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)
	te.loadN(t, pageP, 4)
	te.fetchN(t, cdnJS, pageP, 4)

	// A page never seen before on the same origin falls back to subhosts.
	te.predictForPageload(context.Background(), info(t, "https://www.example.com/news"), nil)

	assert.Equal(t, []string{"https://cdn.example.org"}, te.last(t).Preconnects)
}

func TestPredictForPageload_PageAxisWins(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)
	te.loadN(t, pageP, 4)
	te.fetchN(t, cdnJS, pageP, 4)

	te.predictForPageload(context.Background(), info(t, pageP), nil)

	assert.Equal(t, []string{cdnJS}, te.last(t).Preconnects, "origin axis is not consulted when the page predicts")
}

func TestPredictForPageload_FollowsLikelyRedirect(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)

	te.loadN(t, pageP, 10)
	te.fetchN(t, cdnJS, pageP, 10)
	te.redirectN(t, pageQ, pageP, 8)

	te.loadN(t, pageQ, 2)
	te.fetchN(t, imgPNG, pageQ, 2)

	te.predictForPageload(context.Background(), info(t, pageP), nil)

	require.Len(t, te.batches, 1, "one predict unit delivers one batch")
	list := te.last(t)
	assert.Equal(t, []string{pageQ, imgPNG}, list.Preconnects)
	assert.NotContains(t, list.Preconnects, cdnJS, "the original page's subresources are skipped")
}

func TestPredictForPageload_RedirectAtThresholdIgnored(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)

	te.loadN(t, pageP, 4)
	te.fetchN(t, cdnJS, pageP, 4)
	te.redirectN(t, pageQ, pageP, 3) // exactly 75

	te.predictForPageload(context.Background(), info(t, pageP), nil)

	assert.Equal(t, []string{cdnJS}, te.last(t).Preconnects)
}

func TestPredictForPageload_RedirectCycleTerminates(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)

	te.loadN(t, pageP, 2)
	te.loadN(t, pageQ, 2)
	te.redirectN(t, pageQ, pageP, 2)
	te.redirectN(t, pageP, pageQ, 2)
	te.fetchN(t, imgPNG, pageQ, 2)

	te.predictForPageload(context.Background(), info(t, pageP), nil)

	list := te.last(t)
	assert.Equal(t, []string{pageQ, imgPNG}, list.Preconnects)
}

func TestPredictForStartup_AcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	first := newTestEngine(t, dir, t0)
	first.clock.Set(t0.Add(time.Minute))
	first.loadN(t, pageP, 1)
	first.predictForStartup(context.Background(), nil)
	assert.Zero(t, first.last(t).Len(), "nothing is known on the first startup")
	first.close()

	second := newTestEngine(t, dir, t0.Add(24*time.Hour))
	second.predictForStartup(context.Background(), nil)

	assert.Equal(t, []string{"https://www.example.com"}, second.last(t).Preconnects)
}

func TestNoStartups_LeavesStartupModelAlone(t *testing.T) {
	dir := t.TempDir()

	first := newTestEngine(t, dir, t0)
	first.clock.Set(t0.Add(time.Minute))
	first.loadN(t, pageP, 1)
	first.close()

	for i := 1; i <= 3; i++ {
		start := t0.Add(time.Duration(i) * time.Hour)
		te := newTestEngine(t, dir, start)
		te.noStartups = true
		te.clock.Set(start.Add(time.Second))
		te.loadN(t, pageQ, 1)

		assert.Equal(t, int64(1), te.rowCount(t, "startup_pages"), "run %d", i)
		counter, err := te.store.StartupCounter(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, counter.Count, "run %d", i)
		assert.True(t, counter.LastStartup.Equal(t0))

		// Startup prediction still reads what the real startup recorded.
		te.predictForStartup(context.Background(), nil)
		assert.Equal(t, []string{"https://www.example.com"}, te.last(t).Preconnects)
		te.close()
	}
}

func TestLearnTopLevel_CanonicalKeys(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0.Add(-time.Hour))
	te.clock.Set(t0)

	te.loadN(t, "http://www.example.com/index.html", 1)
	te.loadN(t, "http://WWW.Example.com:80/index.html", 1)

	page := te.topLevel(t, storage.AxisPage, "http://www.example.com/index.html")
	assert.Equal(t, 2, page.LoadCount)
	origin := te.topLevel(t, storage.AxisOrigin, "http://www.example.com")
	assert.Equal(t, 2, origin.LoadCount)
	assert.Equal(t, int64(1), te.rowCount(t, "top_level_hosts"))
}

func TestPredictForStartup_StalePageOnlyResolves(t *testing.T) {
	dir := t.TempDir()

	// Startup 1 loads P and Q. Startup 2 loads only P. Startup 3 predicts.
	one := newTestEngine(t, dir, t0)
	one.loadN(t, pageP, 1)
	one.loadN(t, pageQ, 1)
	one.close()

	two := newTestEngine(t, dir, t0.Add(time.Hour))
	two.loadN(t, pageP, 1)
	two.close()

	three := newTestEngine(t, dir, t0.Add(2*time.Hour))
	three.predictForStartup(context.Background(), nil)

	list := three.last(t)
	assert.Equal(t, []string{"https://www.example.com"}, list.Preconnects)
	// Q: 1 of 2 startups, missed the last one by an hour: 50 - 1.
	assert.Empty(t, list.Preresolves)
}

func TestReset_ThenPredictYieldsNothing(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0)
	te.clock.Set(t0.Add(time.Minute))

	te.loadN(t, pageP, 4)
	te.fetchN(t, cdnJS, pageP, 4)

	te.reset(context.Background())
	for _, table := range []string{"top_level_pages", "top_level_hosts", "subresources", "subhosts", "redirects", "startup_pages", "startup_counter"} {
		assert.Zero(t, te.rowCount(t, table), table)
	}

	te.predictForPageload(context.Background(), info(t, pageP), nil)
	assert.Zero(t, te.last(t).Len())

	te.predictForStartup(context.Background(), nil)
	assert.Zero(t, te.last(t).Len())
}

func TestClose_IsIdempotent(t *testing.T) {
	te := newTestEngine(t, t.TempDir(), t0)
	te.loadN(t, pageP, 1)

	te.close()
	te.close()
	assert.Nil(t, te.store)
}
