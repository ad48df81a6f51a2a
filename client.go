package goSession

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/transport"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Client is the auth service of a dashboard process: the only writer of
// the session store, and the owner of the token-injecting HTTP pipeline.
// Methods are safe for concurrent use after [Builder.Build].
type Client struct {
	config  Config
	store   session.Store
	logger  *zap.Logger
	metrics *Metrics
	audit   *auditDispatcher
	now     func() time.Time

	raw        *transport.JSONClient
	api        *transport.JSONClient
	httpClient *http.Client

	// mu serializes token writes. epoch advances on every login, refresh
	// and clear so a refresh can detect that its session is gone.
	mu    sync.Mutex
	epoch uint64

	refreshGroup singleflight.Group

	listenersMu  sync.RWMutex
	listeners    map[uint64]InvalidationFunc
	nextListener uint64
}

// Close flushes pending audit events. The store is owned by the caller.
func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.audit != nil {
		c.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (c *Client) AuditDropped() uint64 {
	if c == nil || c.audit == nil {
		return 0
	}
	return c.audit.Dropped()
}

// AuditDroppedByType breaks AuditDropped down by event type.
func (c *Client) AuditDroppedByType() map[string]uint64 {
	if c == nil || c.audit == nil {
		return map[string]uint64{}
	}
	return c.audit.DroppedByType()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

func (c *Client) metricInc(id MetricID) {
	if c == nil || c.metrics == nil {
		return
	}
	c.metrics.Inc(id)
}

// Config returns a copy of the active configuration.
func (c *Client) Config() Config {
	return cloneConfig(c.config)
}

// HTTPClient returns the shared client that attaches the access token and
// recovers from a single 401 by refreshing.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// API returns a JSON client over [Client.HTTPClient].
func (c *Client) API() *transport.JSONClient {
	return c.api
}

// OnInvalidate registers fn to run after every session clear. The
// returned function unregisters it.
func (c *Client) OnInvalidate(fn InvalidationFunc) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()

	if c.listeners == nil {
		c.listeners = make(map[uint64]InvalidationFunc)
	}
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn

	return func() {
		c.listenersMu.Lock()
		delete(c.listeners, id)
		c.listenersMu.Unlock()
	}
}

func (c *Client) notifyInvalidated(ctx context.Context, reason InvalidationReason) {
	c.listenersMu.RLock()
	fns := make([]InvalidationFunc, 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.RUnlock()

	for _, fn := range fns {
		fn(ctx, reason)
	}
}

// currentEpoch returns the epoch a refresh must still observe when it
// stores its result.
func (c *Client) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// clearSession removes all session keys. With guard set the clear only
// happens while the epoch still equals epoch, so a stale failure never
// wipes a newer login.
func (c *Client) clearSession(ctx context.Context, guard bool, epoch uint64) (bool, error) {
	ctx = context.WithoutCancel(ctx)

	c.mu.Lock()
	if guard && c.epoch != epoch {
		c.mu.Unlock()
		return false, nil
	}
	c.epoch++
	err := session.Clear(ctx, c.store)
	c.mu.Unlock()

	if err != nil {
		c.metricInc(MetricStoreError)
		c.logger.Error("session clear failed", zap.Error(err))
	}
	return true, err
}

// invalidate force-clears the session and notifies listeners.
func (c *Client) invalidate(ctx context.Context, reason InvalidationReason, cause error, guard bool, epoch uint64) {
	cleared, _ := c.clearSession(ctx, guard, epoch)
	if !cleared {
		c.logger.Debug("session already replaced, skipping invalidation", zap.String("reason", string(reason)))
		return
	}

	c.metricInc(MetricSessionInvalidated)
	c.logger.Warn("session invalidated",
		zap.String("reason", string(reason)),
		zap.Error(cause),
	)
	c.emitAudit(ctx, auditEventSessionInvalidated, false, nil, cause, func() map[string]string {
		return map[string]string{"reason": string(reason)}
	})
	c.notifyInvalidated(ctx, reason)
}

func (c *Client) onTransportRetry(context.Context) {
	c.metricInc(MetricRequestRetried)
}

func (c *Client) onTransportRefreshFailed(_ context.Context, err error) {
	c.metricInc(MetricRequestUnauthorized)
	c.logger.Debug("request left unauthorized after refresh failure", zap.Error(err))
}

func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.config.RequestTimeout)
}
