package netaction

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var errEmptyHost = errors.New("empty host")

// LookupFunc resolves a host. net.Resolver.LookupHost fits.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Resolver warms the system resolver's cache for a host. Concurrent
// requests for the same host share one lookup.
type Resolver struct {
	lookup  LookupFunc
	timeout time.Duration
	group   singleflight.Group
	logger  *zap.Logger
	wg      sync.WaitGroup

	lookups  atomic.Int64
	failures atomic.Int64
}

// NewResolver returns a Resolver using net.DefaultResolver. A zero timeout
// means 5 seconds.
func NewResolver(timeout time.Duration, logger *zap.Logger) *Resolver {
	return newResolver(net.DefaultResolver.LookupHost, timeout, logger)
}

func newResolver(lookup LookupFunc, timeout time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{
		lookup:  lookup,
		timeout: timeout,
		logger:  logger.Named("netaction"),
	}
}

// Resolve starts a lookup of host in the background. host should already
// be in ASCII form.
func (r *Resolver) Resolve(host string) {
	if host == "" {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		_, err, _ := r.group.Do(host, func() (any, error) {
			r.lookups.Add(1)
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()
			return r.lookup(ctx, host)
		})
		if err != nil {
			r.failures.Add(1)
			r.logger.Debug("preresolve failed", zap.String("host", host), zap.Error(err))
		}
	}()
}

// Wait blocks until every started lookup has finished.
func (r *Resolver) Wait() { r.wg.Wait() }

// Lookups is how many lookups actually ran, after deduplication.
func (r *Resolver) Lookups() int64 { return r.lookups.Load() }

// Failures is how many Resolve calls ended in error.
func (r *Resolver) Failures() int64 { return r.failures.Load() }
