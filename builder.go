package goVerify

import (
	"errors"
	"io"
	"time"

	"github.com/MrEthical07/goVerify/audit"
	"github.com/MrEthical07/goVerify/credstore"
	"github.com/MrEthical07/goVerify/identifier"
	"github.com/MrEthical07/goVerify/internal/backoff"
	"github.com/MrEthical07/goVerify/internal/limiters"
	"github.com/MrEthical07/goVerify/internal/rate"
	"github.com/MrEthical07/goVerify/internal/secret"
	"github.com/MrEthical07/goVerify/notify"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Builder assembles an Engine. Configure it during initialization, call
// Build once, then discard it.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	store     credstore.Store
	notifier  notify.Notifier
	auditSink audit.Sink
	logger    logrus.FieldLogger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing rate limits, lockout history and, unless
// WithStore is used, the record store.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithStore overrides the record store, e.g. with a credstore.PostgresStore.
func (b *Builder) WithStore(store credstore.Store) *Builder {
	b.store = store
	return b
}

// WithNotifier sets the delivery transport for SMS and email channels.
func (b *Builder) WithNotifier(n notify.Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the sink that receives audit events when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink audit.Sink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger. Defaults to a discarding logger.
func (b *Builder) WithLogger(logger logrus.FieldLogger) *Builder {
	b.logger = logger
	return b
}

// WithClock overrides time.Now. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires every component.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		if b.store == nil {
			return nil, errors.New("redis client or record store required")
		}
		if cfg.RateLimit.Enabled {
			return nil, errors.New("RateLimit requires redis client")
		}
		if cfg.Lockout.HistoryEnabled {
			return nil, errors.New("Lockout history requires redis client")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	normalizer, err := identifier.New(cfg.Phone.DefaultCountryCode)
	if err != nil {
		return nil, err
	}
	hasher, err := secret.NewHasher(cfg.Secret.Key)
	if err != nil {
		return nil, err
	}
	scheduler, err := backoff.New(cfg.Backoff.Schedule, cfg.Backoff.MaxResends)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:     cloneConfig(cfg),
		normalizer: normalizer,
		hasher:     hasher,
		scheduler:  scheduler,
		notifier:   b.notifier,
		now:        b.now,
		logger:     b.logger,
	}

	// -------- STORE --------
	engine.store = b.store
	if engine.store == nil {
		engine.store = credstore.NewRedisStore(b.redis, cfg.Store.RedisPrefix)
	}

	// -------- LIMITERS --------
	if cfg.RateLimit.Enabled {
		engine.requests = limiters.NewRequestLimiter(rate.New(b.redis, cfg.RateLimit.RedisPrefix), map[string]limiters.RequestPolicy{
			actionSend:   requestPolicy(cfg.RateLimit.Send),
			actionVerify: requestPolicy(cfg.RateLimit.Verify),
		})
	}
	if cfg.Lockout.HistoryEnabled {
		engine.lockouts = limiters.NewLockoutTracker(b.redis, limiters.LockoutConfig{
			Enabled: true,
			Window:  cfg.Lockout.HistoryWindow,
		})
	}

	if engine.now == nil {
		engine.now = time.Now
	}
	if engine.logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		engine.logger = discard
	}

	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:     cfg.Audit.Enabled,
		BufferSize:  cfg.Audit.BufferSize,
		DropIfFull:  cfg.Audit.DropIfFull,
		SinkTimeout: cfg.Audit.SinkTimeout,
	}, b.auditSink)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}

func requestPolicy(l ActionLimit) limiters.RequestPolicy {
	return limiters.RequestPolicy{
		SubjectLimit: l.SubjectLimit,
		CallerLimit:  l.CallerLimit,
		Window:       l.Window,
	}
}
