package goSession

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/MrEthical07/goSession/transport"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles a [Client]. Builder instances are intended to be
// configured during initialization and used for a single Build.
type Builder struct {
	config Config
	store  session.Store
	redis  redis.UniversalClient

	logger    *zap.Logger
	auditSink AuditSink
	base      http.RoundTripper
	now       func() time.Time

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the session store. It takes precedence over WithRedis.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithRedis stores the session in Redis under Config.Session.RedisPrefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the logger; zap.NewNop when unset.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the sink used when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithHTTPTransport sets the round tripper beneath the token transport.
func (b *Builder) WithHTTPTransport(rt http.RoundTripper) *Builder {
	b.base = rt
	return b
}

// WithClock sets the time source used for expiry checks.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the refresh latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Client.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- SESSION STORE --------
	store := b.store
	if store == nil && b.redis != nil {
		store = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix)
	}
	if store == nil {
		store = session.NewMemoryStore()
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := b.now
	if now == nil {
		now = time.Now
	}
	base := b.base
	if base == nil {
		base = http.DefaultTransport
	}

	c := &Client{
		config:  cfg,
		store:   store,
		logger:  logger.Named("session"),
		metrics: NewMetrics(cfg.Metrics),
		audit:   newAuditDispatcher(cfg.Audit, b.auditSink),
		now:     now,
	}

	// -------- HTTP PIPELINE --------
	// Identity calls bypass the token transport: a 401 from login or
	// refresh must never trigger another refresh.
	rawHTTP := &http.Client{Transport: base, Timeout: cfg.RequestTimeout}
	c.raw = transport.NewJSONClient(rawHTTP, cfg.BaseURL, cfg.DefaultHeaders)

	c.httpClient = &http.Client{
		Transport: transport.New(transport.Options{
			Base:            base,
			Tokens:          c,
			Refresher:       c,
			OnRefreshFailed: c.onTransportRefreshFailed,
			OnRetry:         c.onTransportRetry,
			Logger:          c.logger.Named("transport"),
		}),
		// First attempt, refresh and retry.
		Timeout: 3 * cfg.RequestTimeout,
	}
	c.api = transport.NewJSONClient(c.httpClient, cfg.BaseURL, cfg.DefaultHeaders)

	b.built = true

	return c, nil
}
