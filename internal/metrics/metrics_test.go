package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/seer/internal/seer"
	"github.com/runnerr0/seer/internal/storage"
)

func TestObserver_CountsActions(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := NewObserver(reg)

	u, err := url.Parse("https://cdn.example.org/")
	require.NoError(t, err)
	o.OnPredictPreconnect(u)
	o.OnPredictPreconnect(u)
	o.OnPredictDNS(u)

	assert.Equal(t, 2.0, testutil.ToFloat64(o.preconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.preresolves))

	var _ seer.Observer = o
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{seer.ErrNotAvailable, OutcomeNotAvailable},
		{fmt.Errorf("parse reason: %w", seer.ErrInvalidArgument), OutcomeInvalidArgument},
		{seer.ErrUnsupportedScheme, OutcomeUnsupportedScheme},
		{errors.New("boom"), OutcomeError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Outcome(tt.err))
	}
}

func TestRecorder_LabelsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.Record("predict", "load", nil)
	r.Record("predict", "load", nil)
	r.Record("learn", "subresource", seer.ErrUnsupportedScheme)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.requests.WithLabelValues("predict", "load", OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.requests.WithLabelValues("learn", "subresource", OutcomeUnsupportedScheme)))
	assert.Equal(t, 2, testutil.CollectAndCount(r.requests))
}

type fakeStats struct {
	stats *storage.Stats
	err   error
}

func (f fakeStats) Stats(ctx context.Context) (*storage.Stats, error) {
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("no deadline")
	}
	return f.stats, f.err
}

func TestStoreCollector_ReportsTables(t *testing.T) {
	c := NewStoreCollector(fakeStats{stats: &storage.Stats{
		Tables: []storage.TableCount{
			{Table: "top_level_pages", Rows: 3},
			{Table: "subresources", Rows: 7},
		},
		Startups:          storage.StartupCounter{Count: 4},
		DatabaseSizeBytes: 8192,
	}}, 0, nil)

	expected := `
# HELP seer_database_size_bytes Size of the seer database file
# TYPE seer_database_size_bytes gauge
seer_database_size_bytes 8192
# HELP seer_startups_total Process startups recorded in the database
# TYPE seer_startups_total counter
seer_startups_total 4
# HELP seer_table_rows Rows currently stored per table
# TYPE seer_table_rows gauge
seer_table_rows{table="subresources"} 7
seer_table_rows{table="top_level_pages"} 3
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))
}

func TestStoreCollector_ErrorEmitsNothing(t *testing.T) {
	c := NewStoreCollector(fakeStats{err: seer.ErrNotAvailable}, 0, nil)
	assert.Zero(t, testutil.CollectAndCount(c))
}
