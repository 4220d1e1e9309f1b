package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"

	"github.com/aozorahack/pubserver2/pkg/cache"
	"github.com/aozorahack/pubserver2/pkg/catalog/sqlite"
	"github.com/aozorahack/pubserver2/pkg/config"
	"github.com/aozorahack/pubserver2/pkg/content"
	"github.com/aozorahack/pubserver2/pkg/fetch"
	"github.com/aozorahack/pubserver2/pkg/metrics"
	"github.com/aozorahack/pubserver2/pkg/server"
	"github.com/aozorahack/pubserver2/pkg/telemetry"
	"github.com/aozorahack/pubserver2/pkg/transform"
)

type serveCmd struct {
	config.Serve
}

func (c *serveCmd) Run(g *config.Globals) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	log.Info().Str("version", version).Str("addr", c.Addr()).Msg("Starting pubserver")

	if c.OTLPEndpoint != "" {
		shutdown, err := telemetry.SetupTracing(ctx, c.OTLPEndpoint, c.TraceSampleRate)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}

	store, err := sqlite.New(g.DB)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer store.Close()

	cacheStore, err := cache.Open(ctx, c.CacheURL)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer cacheStore.Close()

	fetchCfg := c.Fetch()
	if c.DNSRefresh > 0 {
		fetchCfg.Resolver = &dnscache.Resolver{}
		go fetch.RefreshResolver(ctx, fetchCfg.Resolver, c.DNSRefresh)
	}

	svc := content.NewService(
		cacheStore,
		store,
		fetch.New(fetchCfg),
		transform.New(c.Root()),
		content.Config{TTL: c.TTL()},
	)

	handler := server.New(server.Deps{
		Catalog: store,
		Content: svc,
		ReadyCheck: func(ctx context.Context) error {
			return errors.Join(store.Ping(ctx), cacheStore.Ping(ctx))
		},
		PublicDir: c.PublicDir,
	})

	if c.MetricsListenAddr != "" {
		go func() {
			if err := metrics.Server(ctx, c.MetricsListenAddr); err != nil {
				log.Error().Err(err).Msg("Caught error listening for metrics")
			}
		}()
	}

	return listen(ctx, &http.Server{
		Addr:              c.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, c.ShutdownTimeout)
}

// listen serves srv until ctx is canceled, then shuts it down gracefully.
func listen(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Msgf("Listening on %s", srv.Addr)

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info().Msg("Pubserver stopped")
	return nil
}
