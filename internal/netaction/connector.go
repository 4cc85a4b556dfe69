// Package netaction carries out speculative network actions: TCP/TLS
// preconnects and DNS pre-resolution. Every action runs on its own
// goroutine and never reports back to the caller.
package netaction

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/idna"
)

// ConnectorOptions configure a Connector.
type ConnectorOptions struct {
	Timeout time.Duration
	// RootCAs overrides the system pool for TLS verification.
	RootCAs *x509.CertPool
	// SessionCache lets the connections made later by the real request
	// resume sessions established here. Nil gets a private LRU cache.
	SessionCache tls.ClientSessionCache
}

// ConnectorStats counts what the connector has done.
type ConnectorStats struct {
	Dials      int64
	Handshakes int64
	Failures   int64
}

// Connector opens a connection to a URL's host and, for https, completes
// the TLS handshake, then closes it.
type Connector struct {
	dialer  net.Dialer
	timeout time.Duration
	tlsConf *tls.Config
	logger  *zap.Logger
	wg      sync.WaitGroup

	dials      atomic.Int64
	handshakes atomic.Int64
	failures   atomic.Int64
}

// NewConnector returns a Connector. A zero Timeout means 10 seconds.
func NewConnector(opts ConnectorOptions, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.SessionCache == nil {
		opts.SessionCache = tls.NewLRUClientSessionCache(64)
	}
	return &Connector{
		dialer:  net.Dialer{Timeout: opts.Timeout, KeepAlive: -1},
		timeout: opts.Timeout,
		tlsConf: &tls.Config{
			RootCAs:            opts.RootCAs,
			ClientSessionCache: opts.SessionCache,
			MinVersion:         tls.VersionTLS12,
		},
		logger: logger.Named("netaction"),
	}
}

// SessionCache is the TLS session cache preconnects populate.
func (c *Connector) SessionCache() tls.ClientSessionCache {
	return c.tlsConf.ClientSessionCache
}

// Preconnect starts a connection attempt to u in the background.
func (c *Connector) Preconnect(u *url.URL) {
	addr, host, err := dialAddr(u)
	if err != nil {
		c.failures.Add(1)
		c.logger.Debug("preconnect skipped", zap.String("uri", u.String()), zap.Error(err))
		return
	}
	secure := strings.EqualFold(u.Scheme, "https")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		if err := c.connect(ctx, addr, host, secure); err != nil {
			c.failures.Add(1)
			c.logger.Debug("preconnect failed", zap.String("addr", addr), zap.Error(err))
		}
	}()
}

func (c *Connector) connect(ctx context.Context, addr, host string, secure bool) error {
	conn, err := c.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.dials.Add(1)

	if !secure {
		return nil
	}

	conf := c.tlsConf.Clone()
	conf.ServerName = host
	tc := tls.Client(conn, conf)
	if err := tc.HandshakeContext(ctx); err != nil {
		return err
	}
	c.handshakes.Add(1)
	return nil
}

// Wait blocks until every started preconnect has finished.
func (c *Connector) Wait() { c.wg.Wait() }

// Stats returns a snapshot of the counters.
func (c *Connector) Stats() ConnectorStats {
	return ConnectorStats{
		Dials:      c.dials.Load(),
		Handshakes: c.handshakes.Load(),
		Failures:   c.failures.Load(),
	}
}

// dialAddr returns host:port for u with the host in ASCII form, plus the
// bare host for TLS server name checks.
func dialAddr(u *url.URL) (addr, host string, err error) {
	host, err = ASCIIHost(u)
	if err != nil {
		return "", "", err
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if strings.EqualFold(u.Scheme, "https") {
			port = "443"
		}
	}
	return net.JoinHostPort(host, port), host, nil
}

// ASCIIHost returns the punycode form of u's hostname.
func ASCIIHost(u *url.URL) (string, error) {
	host := u.Hostname()
	if host == "" {
		return "", errEmptyHost
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}
	return idna.Lookup.ToASCII(host)
}
