// Command irserve serves IR documents as server-rendered pages behind
// route policies.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/effectus/irkit/defaults"
	"github.com/effectus/irkit/hydrate"
	"github.com/effectus/irkit/internal/logging"
	"github.com/effectus/irkit/render"
	"github.com/effectus/irkit/session"
	"github.com/effectus/irkit/sink"
	"github.com/effectus/irkit/store"
	"go.uber.org/zap"
)

func main() {
	s, err := parseSettings(os.Args[0], os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(s.logLevel, s.logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, s, logger); err != nil {
		logger.Error("irserve failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, s *settings, logger *zap.Logger) error {
	srv, closeFn, err := newServer(ctx, s, logger)
	if err != nil {
		return err
	}
	defer closeFn()
	return startHTTPServer(ctx, s.httpAddr, srv.handler(), logger)
}

// newServer wires the document store, sessions, sink and routes described
// by s. The returned func releases their connections.
func newServer(ctx context.Context, s *settings, logger *zap.Logger) (*server, func(), error) {
	var closers []func() error
	closeAll := func() {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		if err := errors.Join(errs...); err != nil {
			logger.Warn("closing resources", zap.Error(err))
		}
	}
	fail := func(err error) (*server, func(), error) {
		closeAll()
		return nil, nil, err
	}

	routes, err := compileRoutes(s.routes)
	if err != nil {
		return nil, nil, err
	}
	auth, generated, err := buildAPIAuth(s.apiAuth, s.apiToken, s.apiReadToken)
	if err != nil {
		return nil, nil, err
	}
	if generated != "" {
		logger.Warn("no API token configured, generated a write token", zap.String("token", generated))
	}

	docs, err := store.Open(ctx, s.storeConfig(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening document store: %w", err)
	}
	if pg, ok := docs.(*store.Postgres); ok {
		closers = append(closers, func() error { pg.Close(); return nil })
	}
	if dir, ok := docs.(*store.Dir); ok && s.watch {
		go func() {
			err := dir.Watch(ctx, func(name string) {
				logger.Info("document changed", zap.String("document", name))
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("watching documents", zap.String("dir", dir.Root()), zap.Error(err))
			}
		}()
	}

	var provider session.Provider
	switch s.sessionStore {
	case "", "memory":
		provider = session.NewMemory()
	case "redis":
		rdb, err := session.NewRedis(ctx, s.redis)
		if err != nil {
			return fail(fmt.Errorf("connecting to redis: %w", err))
		}
		closers = append(closers, rdb.Close)
		provider = rdb
	default:
		return fail(fmt.Errorf("unknown session store: %s", s.sessionStore))
	}
	sessions := session.NewManager(provider, s.sessionTTL)
	sessions.Cookie = s.sessionCookie
	sessions.Secure = s.secureCookie
	if keys := s.sessionClaimKeys(); len(keys) > 0 {
		sessions.ClaimKeys = keys
	}

	ev := defaults.NewEvaluator(logger)
	events, err := sink.Open(s.sink)
	if err != nil {
		return fail(fmt.Errorf("opening sink: %w", err))
	}
	if events != nil {
		closers = append(closers, events.Close)
		sink.Register(ev.Registries(), events)
	}

	logger.Info("server configured",
		zap.String("store", s.storeKind),
		zap.String("sessions", s.sessionStore),
		zap.String("sink", s.sink.Kind),
		zap.String("api_auth", auth.mode),
		zap.Int("routes", routes.len()))

	return &server{
		ev:             ev,
		renderer:       render.New(ev, render.WithLogger(logger)),
		hydrator:       hydrate.New(ev, hydrate.WithLogger(logger)),
		docs:           docs,
		sessions:       sessions,
		routes:         routes,
		auth:           auth,
		limiter:        newRateLimiter(s.rateLimit, s.rateBurst),
		trustForwarded: s.trustForwarded,
		readOnly:       s.readOnly,
		log:            logger,
	}, closeAll, nil
}
