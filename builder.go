package sessionctl

import (
	"context"
	"errors"
	"log/slog"
)

// Builder assembles a [Controller]. A Builder is single-use.
type Builder struct {
	config Config

	provider  AuthProvider
	store     ProfileStore
	navigator Navigator
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAuthProvider sets the identity provider. Required.
func (b *Builder) WithAuthProvider(p AuthProvider) *Builder {
	b.provider = p
	return b
}

// WithProfileStore sets the profile table. Required.
func (b *Builder) WithProfileStore(s ProfileStore) *Builder {
	b.store = s
	return b
}

// WithNavigator sets the router used after sign-out. Without one, sign-out
// only clears state.
func (b *Builder) WithNavigator(n Navigator) *Builder {
	b.navigator = n
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger overrides the logger built from Config.Logging.
func (b *Builder) WithLogger(l *slog.Logger) *Builder {
	b.logger = l
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

// Build validates the configuration and returns a controller that has not
// yet been started.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.provider == nil {
		return nil, errors.New("auth provider required")
	}
	if b.store == nil {
		return nil, errors.New("profile store required")
	}

	logger := b.logger
	if logger == nil {
		logger = NewLogger(cfg.Logging, nil)
	}
	for _, w := range cfg.Lint() {
		logger.Warn("sessionctl: config lint", "code", w.Code, "message", w.Message)
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		config:     cfg,
		provider:   b.provider,
		store:      b.store,
		navigator:  b.navigator,
		logger:     logger,
		baseCtx:    baseCtx,
		cancelBase: cancel,
		busy:       make(map[uint64]struct{}),
	}
	c.audit = newAuditDispatcher(cfg.Audit, b.auditSink, logger)
	c.metrics = NewMetrics(cfg.Metrics)
	c.hub = newStateHub(logger)

	b.built = true

	return c, nil
}
