package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/promptwars/warsd/internal/domain"
	"github.com/promptwars/warsd/internal/mirror"
	"github.com/promptwars/warsd/internal/notify"
	"github.com/promptwars/warsd/internal/server"
	"github.com/promptwars/warsd/internal/server/handler"
	"github.com/promptwars/warsd/internal/server/ws"
)

// writeRateLimit is the per-IP budget applied to write endpoints.
const (
	writeRateLimit  = 30
	writeRateWindow = time.Minute
)

// ServerMode runs the HTTP API, the WebSocket event feed, and the
// notification listener.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps)
	a.startNotifyListener(ctx, g, deps)
	return g.Wait()
}

// MirrorMode runs snapshot pollers that keep the cache warm and publish
// phase transitions, without serving the API.
func (a *App) MirrorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting mirror mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startMirror(ctx, g, deps)
	return g.Wait()
}

// SweepMode runs only the self-destruct sweeper.
func (a *App) SweepMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sweep mode")

	if deps.Sweeper == nil {
		return errors.New("app: sweep mode requires the native gateway and an enabled sweeper")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return deps.Sweeper.Run(ctx)
	})
	return g.Wait()
}

// FullMode runs everything: API server, mirror pollers, sweeper, and
// notifications.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startServer(ctx, g, deps)
	a.startNotifyListener(ctx, g, deps)

	if a.cfg.Mirror.Enabled {
		a.startMirror(ctx, g, deps)
	}
	if deps.Sweeper != nil {
		g.Go(func() error {
			return deps.Sweeper.Run(ctx)
		})
	}

	return g.Wait()
}

// startServer adds the HTTP server and WebSocket hub goroutines to the
// group. The server shuts down gracefully when the context is cancelled.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Markets:   handler.NewMarketHandler(deps.Markets, a.logger),
		Lifecycle: handler.NewLifecycleHandler(deps.Markets, a.logger),
	}
	if deps.Sweeper != nil {
		handlers.Sweep = handler.NewSweepHandler(deps.Sweeper, a.logger)
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, deps.BlobDeleter, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Auth:        deps.Auth,
		Limiter:     deps.RateLimiter,
		RateLimit:   writeRateLimit,
		RateWin:     writeRateWindow,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// startNotifyListener bridges lifecycle events to the configured
// notification channels.
func (a *App) startNotifyListener(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	listener := notify.NewEventListener(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		err := listener.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

// marketLister is implemented by gateways that can enumerate markets from a
// factory contract.
type marketLister interface {
	MarketsList(ctx context.Context, offset, limit int64) ([]string, error)
}

// startMirror supervises one snapshot poller per open market, rescanning the
// store periodically so newly created markets get a poller too. When the
// gateway exposes a factory listing, markets discovered on chain but absent
// from the store are mirrored as well. Pollers exit on their own once the
// mirrored market reaches a terminal phase.
func (a *App) startMirror(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	interval := a.cfg.Mirror.Interval.Duration
	if interval <= 0 {
		interval = mirror.DefaultInterval
	}

	g.Go(func() error {
		var (
			mu     sync.Mutex
			active = make(map[string]bool)
		)

		onChange := func(marketID string, from, to domain.Phase, snap domain.Snapshot) {
			a.logger.Info("mirror: phase transition",
				slog.String("market_id", marketID),
				slog.String("from", string(from)),
				slog.String("to", string(to)),
			)
		}

		spawn := func(ids []string) {
			mu.Lock()
			defer mu.Unlock()
			for _, id := range ids {
				if active[id] {
					continue
				}
				active[id] = true

				poller := mirror.NewPoller(id, deps.Gateway, a.logger,
					mirror.WithInterval(interval),
					mirror.WithCache(deps.SnapshotCache),
					mirror.WithChangeFunc(onChange),
				)
				g.Go(func() error {
					defer func() {
						mu.Lock()
						delete(active, id)
						mu.Unlock()
					}()
					err := poller.Run(ctx)
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				})
			}
		}

		ticker := time.NewTicker(interval * 4)
		defer ticker.Stop()

		const factoryPage = 100

		for {
			markets, err := deps.MarketStore.ListOpen(ctx, domain.ListOpts{})
			if err != nil {
				a.logger.WarnContext(ctx, "mirror: list open markets failed",
					slog.String("error", err.Error()),
				)
			} else {
				ids := make([]string, 0, len(markets))
				for _, m := range markets {
					ids = append(ids, m.Data.ID)
				}
				spawn(ids)
			}

			if lister, ok := deps.Gateway.(marketLister); ok {
				for offset := int64(0); ; offset += factoryPage {
					ids, err := lister.MarketsList(ctx, offset, factoryPage)
					if err != nil {
						a.logger.WarnContext(ctx, "mirror: factory listing failed",
							slog.String("error", err.Error()),
						)
						break
					}
					spawn(ids)
					if int64(len(ids)) < factoryPage {
						break
					}
				}
			}

			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
			}
		}
	})
}
