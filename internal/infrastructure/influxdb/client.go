package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/apocaliss92/scrypted-neolink/internal/infrastructure/config"
)

const (
	pingTimeout          = 5 * time.Second
	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

var errUnhealthy = errors.New("server not healthy")

// pointWriter is the part of api.WriteAPI the client uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client records camera telemetry through the non-blocking, batching write
// API. It is safe for concurrent use and drops writes once closed.
type Client struct {
	client   influxdb2.Client
	writeAPI pointWriter
	now      func() time.Time
	closed   atomic.Bool

	errMu   sync.RWMutex
	onError func(err error)
}

// writeOptions maps the config onto client options, filling in defaults
// for unset batch size and flush interval.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds())) // #nosec G115 -- positive
}

// Connect pings the server within ctx and returns a client whose async
// write errors go to the SetOnError callback. A disabled config yields
// ErrDisabled.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	ic := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))
	if err := ping(ctx, ic); err != nil {
		ic.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	wa := ic.WriteAPI(cfg.Org, cfg.Bucket)
	c := newClient(wa)
	c.client = ic
	go c.handleWriteErrors(wa.Errors())
	return c, nil
}

func newClient(w pointWriter) *Client {
	return &Client{writeAPI: w, now: time.Now}
}

func ping(ctx context.Context, ic influxdb2.Client) error {
	ok, err := ic.Ping(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("ping: %w", err)
	case !ok:
		return errUnhealthy
	}
	return nil
}

func (c *Client) handleWriteErrors(errs <-chan error) {
	for err := range errs {
		c.errMu.RLock()
		cb := c.onError
		c.errMu.RUnlock()
		if cb != nil {
			cb(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// SetOnError sets the callback for async write failures.
func (c *Client) SetOnError(cb func(err error)) {
	c.errMu.Lock()
	c.onError = cb
	c.errMu.Unlock()
}

// IsConnected reports false once Close has been called.
func (c *Client) IsConnected() bool {
	return !c.closed.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.closed.Load() || c.client == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush blocks until buffered points are sent.
func (c *Client) Flush() {
	if !c.closed.Load() {
		c.writeAPI.Flush()
	}
}

// Close flushes pending points and releases the client. Later calls are
// no-ops.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.writeAPI.Flush()
	if c.client != nil {
		c.client.Close()
	}
	return nil
}
