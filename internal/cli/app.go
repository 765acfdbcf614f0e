package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edudashpro/sessionctl"
	amqpsink "github.com/edudashpro/sessionctl/auditsink/amqp"
	"github.com/edudashpro/sessionctl/internal/config"
	"github.com/edudashpro/sessionctl/internal/rate"
	"github.com/edudashpro/sessionctl/jwt"
	"github.com/edudashpro/sessionctl/profilestore/memory"
	"github.com/edudashpro/sessionctl/profilestore/postgres"
	"github.com/edudashpro/sessionctl/provider/gotrue"
	"github.com/edudashpro/sessionctl/session"
)

// app is one wired controller plus everything it depends on.
type app struct {
	settings   *config.Settings
	logger     *slog.Logger
	sessions   *session.Store
	provider   *gotrue.Client
	navigator  *terminalNavigator
	controller *sessionctl.Controller

	// throttle is nil without redis.
	throttle *rate.Limiter

	closers []func()
}

func openApp(ctx context.Context, opts *rootOptions, out, errOut io.Writer) (a *app, err error) {
	settings, err := config.Load(opts.envFile)
	if err != nil {
		return nil, err
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	a = &app{
		settings: settings,
		logger:   sessionctl.NewLogger(settings.Controller.Logging, errOut),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if settings.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     settings.Redis.Addr,
			Password: settings.Redis.Password,
			DB:       settings.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })

		a.sessions = session.NewStore(rdb, settings.Redis.Prefix)
		a.throttle = rate.New(rdb, settings.Redis.Prefix, rate.Config{
			MaxSignInFailures: settings.Throttle.MaxSignInFailures,
			SignInCooldown:    settings.Throttle.SignInCooldown,
			MaxResetRequests:  settings.Throttle.MaxResetRequests,
			ResetWindow:       settings.Throttle.ResetWindow,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, pingErr := a.sessions.Ping(pingCtx)
		cancel()
		if pingErr != nil {
			return nil, pingErr
		}
	} else {
		a.logger.Warn("no redis configured; the session will not outlive this process")
	}

	var tokens *jwt.Manager
	if settings.JWT.Secret != "" {
		tokens, err = jwt.NewManager(jwt.Config{
			SigningMethod: jwt.MethodHS256,
			Secret:        []byte(settings.JWT.Secret),
			Issuer:        settings.JWT.Issuer,
			Audience:      settings.JWT.Audience,
			Leeway:        settings.JWT.Leeway,
		})
		if err != nil {
			return nil, fmt.Errorf("jwt: %w", err)
		}
	}

	a.provider, err = gotrue.New(gotrue.Config{
		BaseURL:          settings.GoTrue.URL,
		APIKey:           settings.GoTrue.APIKey,
		DeviceID:         settings.DeviceID,
		HTTPTimeout:      settings.GoTrue.Timeout,
		SessionRetention: settings.SessionRetention,
		RefreshMargin:    settings.RefreshMargin,
	}, a.sessions, tokens, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.provider.Close)

	var profiles sessionctl.ProfileStore
	if settings.Postgres.DSN != "" {
		pg, err := postgres.Open(settings.Postgres.DSN, postgres.Options{
			MaxOpenConns: settings.Postgres.MaxOpenConns,
			ScopeClaims:  settings.Postgres.ScopeClaims,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = pg.Close() })
		profiles = pg
	} else {
		a.logger.Warn("no postgres configured; every identity will report a missing profile")
		profiles = memory.New()
	}

	a.navigator = newTerminalNavigator(out)

	builder := sessionctl.New().
		WithConfig(settings.Controller).
		WithAuthProvider(a.provider).
		WithProfileStore(profiles).
		WithNavigator(a.navigator).
		WithLogger(a.logger)

	if settings.Controller.Audit.Enabled {
		sink, err := amqpsink.Dial(amqpsink.Config{
			URL:      settings.AMQP.URL,
			Exchange: settings.AMQP.Exchange,
			Queue:    settings.AMQP.Queue,
		}, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = sink.Close() })
		builder = builder.WithAuditSink(sink)
	}

	a.controller, err = builder.Build()
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.controller.Close)

	if err := a.controller.Start(ctx); err != nil {
		a.logger.Warn("session restore failed", "error", err)
	}
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// signIn runs the controller sign-in behind the per-email throttle.
func (a *app) signIn(ctx context.Context, email, password string) error {
	if a.throttle != nil {
		if err := a.throttle.CheckSignIn(ctx, email); err != nil {
			return err
		}
	}

	err := a.controller.SignIn(ctx, email, password)
	if a.throttle == nil {
		return err
	}
	switch {
	case err == nil:
		if resetErr := a.throttle.ResetSignIn(ctx, email); resetErr != nil {
			a.logger.Warn("clear sign-in throttle failed", "error", resetErr)
		}
	case errors.Is(err, sessionctl.ErrInvalidCredentials):
		if recErr := a.throttle.RecordSignInFailure(ctx, email); recErr != nil {
			a.logger.Warn("record sign-in failure failed", "error", recErr)
		}
	}
	return err
}

// resetPassword requests a recovery email behind the per-email throttle.
func (a *app) resetPassword(ctx context.Context, email string) error {
	if a.throttle != nil {
		if err := a.throttle.AllowReset(ctx, email); err != nil {
			return err
		}
	}
	return a.controller.ResetPassword(ctx, email)
}

// awaitSettled blocks until no operation keeps Loading true.
func awaitSettled(ctx context.Context, c *sessionctl.Controller, timeout time.Duration) (sessionctl.State, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	for s := range c.Watch(ctx) {
		if !s.Loading {
			return s, nil
		}
	}
	return c.State(), fmt.Errorf("waiting for session to settle: %w", ctx.Err())
}
