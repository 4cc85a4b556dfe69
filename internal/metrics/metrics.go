// Package metrics exports seer activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/runnerr0/seer/internal/seer"
	"github.com/runnerr0/seer/internal/storage"
)

// Outcomes recorded on seer_requests_total.
const (
	OutcomeOK                = "ok"
	OutcomeNotAvailable      = "not_available"
	OutcomeInvalidArgument   = "invalid_argument"
	OutcomeUnsupportedScheme = "unsupported_scheme"
	OutcomeError             = "error"
)

// Observer counts the actions the engine actually issued. It satisfies
// seer.Observer.
type Observer struct {
	preconnects prometheus.Counter
	preresolves prometheus.Counter
}

// NewObserver creates the action counters and registers them with reg.
func NewObserver(reg prometheus.Registerer) *Observer {
	o := &Observer{
		preconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seer_preconnects_total",
			Help: "Preconnects issued by the prediction engine",
		}),
		preresolves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seer_preresolves_total",
			Help: "DNS pre-resolutions issued by the prediction engine",
		}),
	}
	reg.MustRegister(o.preconnects, o.preresolves)
	return o
}

func (o *Observer) OnPredictPreconnect(*url.URL) { o.preconnects.Inc() }
func (o *Observer) OnPredictDNS(*url.URL)        { o.preresolves.Inc() }

// Recorder counts public calls into the engine by outcome.
type Recorder struct {
	requests *prometheus.CounterVec
}

// NewRecorder creates seer_requests_total and registers it with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seer_requests_total",
			Help: "Calls into the seer engine by operation, reason and outcome",
		}, []string{"op", "reason", "outcome"}),
	}
	reg.MustRegister(r.requests)
	return r
}

// Record counts one call of op with the error it returned.
func (r *Recorder) Record(op, reason string, err error) {
	r.requests.WithLabelValues(op, reason, Outcome(err)).Inc()
}

// Outcome maps an engine error to its label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, seer.ErrNotAvailable):
		return OutcomeNotAvailable
	case errors.Is(err, seer.ErrInvalidArgument):
		return OutcomeInvalidArgument
	case errors.Is(err, seer.ErrUnsupportedScheme):
		return OutcomeUnsupportedScheme
	default:
		return OutcomeError
	}
}

// StatsSource is anything that can report database statistics. *seer.Seer
// satisfies it.
type StatsSource interface {
	Stats(ctx context.Context) (*storage.Stats, error)
}

var (
	tableRowsDesc = prometheus.NewDesc(
		"seer_table_rows",
		"Rows currently stored per table",
		[]string{"table"},
		nil,
	)
	startupsDesc = prometheus.NewDesc(
		"seer_startups_total",
		"Process startups recorded in the database",
		nil,
		nil,
	)
	dbSizeDesc = prometheus.NewDesc(
		"seer_database_size_bytes",
		"Size of the seer database file",
		nil,
		nil,
	)
)

// StoreCollector reads database statistics on each scrape.
type StoreCollector struct {
	src     StatsSource
	timeout time.Duration
	logger  *zap.Logger
}

// NewStoreCollector returns a collector over src. A zero timeout means
// five seconds.
func NewStoreCollector(src StatsSource, timeout time.Duration, logger *zap.Logger) *StoreCollector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreCollector{src: src, timeout: timeout, logger: logger}
}

// Describe sends the metric descriptors to the channel.
func (c *StoreCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- tableRowsDesc
	ch <- startupsDesc
	ch <- dbSizeDesc
}

// Collect queries the engine and emits one gauge per table.
func (c *StoreCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stats, err := c.src.Stats(ctx)
	if err != nil {
		c.logger.Warn("failed to collect store metrics", zap.Error(err))
		return
	}
	for _, tc := range stats.Tables {
		ch <- prometheus.MustNewConstMetric(tableRowsDesc, prometheus.GaugeValue, float64(tc.Rows), tc.Table)
	}
	ch <- prometheus.MustNewConstMetric(startupsDesc, prometheus.CounterValue, float64(stats.Startups.Count))
	ch <- prometheus.MustNewConstMetric(dbSizeDesc, prometheus.GaugeValue, float64(stats.DatabaseSizeBytes))
}
