package seer

import (
	"net/url"

	"go.uber.org/zap"

	"github.com/runnerr0/seer/internal/confidence"
	"github.com/runnerr0/seer/internal/netaction"
)

// ActionList is the batch of actions one prediction produced. It crosses
// from the worker to the caller-facing executor by value.
type ActionList struct {
	Preconnects []string
	Preresolves []string
}

// Add classifies conf and records uri under the matching action. It
// reports whether anything was added.
func (l *ActionList) Add(conf int, uri string) bool {
	switch confidence.Classify(conf) {
	case confidence.Preconnect:
		l.Preconnects = append(l.Preconnects, uri)
		return true
	case confidence.Preresolve:
		l.Preresolves = append(l.Preresolves, uri)
		return true
	}
	return false
}

// AddPreconnect records an unconditional preconnect.
func (l *ActionList) AddPreconnect(uri string) {
	l.Preconnects = append(l.Preconnects, uri)
}

// Len is the total number of actions.
func (l ActionList) Len() int {
	return len(l.Preconnects) + len(l.Preresolves)
}

// dispatcher turns an ActionList into calls on the network collaborators.
// It only runs on the caller-facing executor or the synchronous link path.
type dispatcher struct {
	connector Connector
	resolver  Resolver
	logger    *zap.Logger
}

// run executes every action in list without yielding. Preconnects go
// first.
func (d *dispatcher) run(list ActionList, obs Observer) {
	for _, raw := range list.Preconnects {
		u, err := url.Parse(raw)
		if err != nil {
			d.logger.Debug("skip preconnect", zap.String("uri", raw), zap.Error(err))
			continue
		}
		d.preconnect(u, obs)
	}
	for _, raw := range list.Preresolves {
		u, err := url.Parse(raw)
		if err != nil {
			d.logger.Debug("skip preresolve", zap.String("uri", raw), zap.Error(err))
			continue
		}
		d.preresolve(u, obs)
	}
}

func (d *dispatcher) preconnect(u *url.URL, obs Observer) {
	if d.connector == nil {
		return
	}
	d.connector.Preconnect(u)
	if obs != nil {
		obs.OnPredictPreconnect(u)
	}
}

func (d *dispatcher) preresolve(u *url.URL, obs Observer) {
	if d.resolver == nil {
		return
	}
	host, err := netaction.ASCIIHost(u)
	if err != nil {
		d.logger.Debug("skip preresolve", zap.String("uri", u.String()), zap.Error(err))
		return
	}
	d.resolver.Resolve(host)
	if obs != nil {
		obs.OnPredictDNS(u)
	}
}
