package syncer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"visitorgate/apperr"
	"visitorgate/models"
	"visitorgate/registry"
)

// Start loads local state, tries the remote once, marks the gateway ready and
// then runs the background loop until ctx is cancelled.
func (g *Gateway) Start(ctx context.Context) {
	go func() {
		g.initialLoad(ctx)
		g.Run(ctx)
	}()
}

func (g *Gateway) initialLoad(ctx context.Context) {
	defer g.markReady()

	if err := g.LoadLocal(ctx); err != nil {
		g.report(err)
	}

	g.probe(ctx)
	if g.online.Load() {
		g.Flush(ctx)
		g.Pull(ctx)
	}

	if g.registry.Len() == 0 {
		g.logger.Info("no locations known, installing defaults")
		if err := g.registry.Replace(registry.Defaults(g.now())); err != nil {
			g.report(err)
			return
		}
		g.Commit(ctx, models.QueueLocationUpdate, "", models.EntityLocations)
	}
}

func (g *Gateway) markReady() {
	g.readyOnce.Do(func() { close(g.ready) })
}

// Ready is closed once the initial load has finished.
func (g *Gateway) Ready() <-chan struct{} { return g.ready }

// WaitReady blocks until the gateway is ready. It fails with
// DependencyUnavailable after timeout, or cfg.ReadyTimeout when timeout is 0.
func (g *Gateway) WaitReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = g.cfg.ReadyTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-g.ready:
		return nil
	case <-timer.C:
		return &apperr.DependencyUnavailable{Name: "sync gateway", Wait: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run probes the remote every cfg.Interval, drains the queue and pulls when
// nothing is pending. A wake-up from Commit or SetOnline drains immediately.
func (g *Gateway) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()

	g.logger.Info("sync loop started", zap.Duration("interval", g.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			g.logger.Info("sync loop stopped")
			return
		case <-ticker.C:
			g.tick(ctx)
		case <-g.wake:
			g.drain(ctx)
		}
	}
}

func (g *Gateway) tick(ctx context.Context) {
	g.probe(ctx)
	if !g.online.Load() {
		return
	}
	if len(g.pending()) > 0 {
		g.drain(ctx)
		return
	}
	if err := g.Pull(ctx); errors.Is(err, ErrSyncInFlight) {
		g.logger.Debug("pull skipped, sync in flight")
	}
}

func (g *Gateway) drain(ctx context.Context) {
	if err := g.Flush(ctx); errors.Is(err, ErrSyncInFlight) {
		g.logger.Debug("flush skipped, sync in flight")
	}
}

func (g *Gateway) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	g.SetOnline(g.remote.Ping(pctx) == nil)
}
