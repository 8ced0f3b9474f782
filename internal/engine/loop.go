package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/SoarinFerret/AttokWarden/internal/eval"
	"github.com/SoarinFerret/AttokWarden/internal/metrics"
	"github.com/SoarinFerret/AttokWarden/internal/render"
	"github.com/SoarinFerret/AttokWarden/internal/scrape"
	"github.com/SoarinFerret/AttokWarden/internal/state"
)

func (e *Engine) pollLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	// Run immediately on start
	if err := e.Tick(ctx); errors.Is(err, ErrSuspended) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Tick(ctx); errors.Is(err, ErrSuspended) {
				return
			}
		}
	}
}

func (e *Engine) refreshLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.opts.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Refresh(ctx)
		}
	}
}

// Tick is one reconciliation: scrape, then either a full reconcile or, when
// the digest is unchanged, a timer-only sweep. It returns ErrSuspended once
// the failure threshold is reached.
func (e *Engine) Tick(ctx context.Context) error {
	e.mu.Lock()
	paused := e.paused
	e.mu.Unlock()
	if paused {
		return nil
	}

	started := time.Now()
	snap, err := e.scraper.Scrape(ctx)
	elapsed := time.Since(started)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return e.scrapeFailed(err, elapsed)
	}
	e.opts.Metrics.ObserveScrape(metrics.ResultOK, elapsed)

	e.mu.Lock()
	e.failures = 0
	e.lastErr = nil
	e.lastScrape = e.opts.Clock.Now()
	e.mu.Unlock()
	e.opts.Metrics.SetConsecutiveFailures(0)

	e.pub.Lock()
	defer e.pub.Unlock()

	digest := scrape.Digest(snap)
	changed := !e.haveDigest || digest != e.digest
	e.digest, e.haveDigest = digest, true

	now := e.opts.Clock.Now()
	var res state.Result
	if changed {
		e.log.Debug("board changed, reconciling", zap.Int("rows", len(snap)))
		res = e.store.Update(snap, now)
	} else {
		res = e.store.Refresh(now)
	}
	e.publish(ctx, res, now, changed)
	return nil
}

// Refresh is a timer-only tick.
func (e *Engine) Refresh(ctx context.Context) {
	e.pub.Lock()
	defer e.pub.Unlock()

	now := e.opts.Clock.Now()
	e.publish(ctx, e.store.Refresh(now), now, false)
}

func (e *Engine) scrapeFailed(err error, elapsed time.Duration) error {
	result := metrics.ResultUnavailable
	if errors.Is(err, scrape.ErrMalformed) {
		result = metrics.ResultMalformed
	}
	e.opts.Metrics.ObserveScrape(result, elapsed)

	e.mu.Lock()
	e.failures++
	failures := e.failures
	e.lastErr = err
	suspend := failures >= e.opts.FailureThreshold && e.state == StateRunning
	if suspend {
		e.state = StateSuspended
	}
	e.mu.Unlock()
	e.opts.Metrics.SetConsecutiveFailures(failures)

	if !suspend {
		e.log.Warn("board scrape failed", zap.Int("consecutive_failures", failures), zap.Error(err))
		return err
	}

	e.log.Error("too many consecutive scrape failures, suspending",
		zap.Int("consecutive_failures", failures), zap.Error(err))
	if e.opts.OnSuspend != nil {
		go e.opts.OnSuspend(err)
	}
	return ErrSuspended
}

// publish hands events to the notifier and a render request to the UI.
// Callers hold pub.
func (e *Engine) publish(ctx context.Context, res state.Result, now time.Time, dataChanged bool) {
	if len(res.Events) > 0 {
		for _, ev := range res.Events {
			e.opts.Metrics.Event(string(ev.Kind))
		}
		if err := e.notifier.Enqueue(ctx, res.Events); err != nil {
			e.log.Warn("failed to queue notifications", zap.Error(err))
		}
	}

	view := render.NewView(res.Active, res.Departed, now)
	composition := view.Composition()
	mode := render.ModeTimer
	if dataChanged || composition != e.composition {
		mode = render.ModeFull
	}
	e.composition = composition
	e.view = view

	e.opts.Renders.Push(render.Request{Mode: mode, View: view})
	e.opts.Metrics.Render(mode.String())

	overrun := 0
	for _, c := range view.Active {
		if c.Class == eval.ClassOverrun {
			overrun++
		}
	}
	e.opts.Metrics.SetStudents(len(view.Active)-overrun, overrun, len(view.Departed))
}
