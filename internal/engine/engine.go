package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SoarinFerret/AttokWarden/internal/boardtime"
	"github.com/SoarinFerret/AttokWarden/internal/render"
	"github.com/SoarinFerret/AttokWarden/internal/scrape"
	"github.com/SoarinFerret/AttokWarden/internal/session"
	"github.com/SoarinFerret/AttokWarden/internal/state"
)

// Engine drives the board: a poll loop reconciles scrapes into the store and
// a refresh loop keeps timers current between polls.
type Engine struct {
	opts     Options
	store    *state.Manager
	scraper  scrape.Scraper
	notifier Notifier
	log      *zap.Logger

	// ctl serialises lifecycle transitions, which may block on I/O.
	ctl    sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	base       context.Context
	state      State
	failures   int
	paused     bool
	lastScrape time.Time
	lastErr    error

	// pub guards what was last published to the renderer.
	pub         sync.Mutex
	digest      string
	haveDigest  bool
	composition string
	view        render.View
}

// NewEngine creates an idle engine.
func NewEngine(opts Options, store *state.Manager, scraper scrape.Scraper, notifier Notifier, log *zap.Logger) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Second
	}
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 3
	}
	if opts.Clock == nil {
		opts.Clock = boardtime.SystemClock{}
	}
	if opts.Renders == nil {
		opts.Renders = render.NewQueue()
	}
	return &Engine{
		opts:     opts,
		store:    store,
		scraper:  scraper,
		notifier: notifier,
		log:      log,
		base:     context.Background(),
		state:    StateIdle,
	}
}

// Run blocks until ctx is done, then stops the loops. With autoStart the
// board session is assumed logged in and ticking begins immediately.
func (e *Engine) Run(ctx context.Context, autoStart bool) error {
	e.mu.Lock()
	e.base = ctx
	e.mu.Unlock()

	e.log.Info("engine ready", zap.Bool("auto_start", autoStart))
	if autoStart {
		if err := e.Start(ctx); err != nil {
			e.log.Error("auto start failed", zap.Error(err))
		}
	}

	<-ctx.Done()
	e.log.Info("engine shutting down")
	if err := e.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return nil
}

// Start confirms the board session is logged in and begins ticking.
func (e *Engine) Start(ctx context.Context) error {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	switch e.State() {
	case StateRunning:
		return ErrAlreadyRunning
	case StateSuspended:
		return ErrSuspended
	}

	if err := e.scraper.Connect(ctx); err != nil {
		e.setErr(err)
		return fmt.Errorf("failed to open board session: %w", err)
	}
	e.launch(StateRunning)
	e.log.Info("engine started")
	return nil
}

// Stop cancels both loops and waits for an in-flight tick to return.
func (e *Engine) Stop() error {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	switch e.State() {
	case StateRunning, StateSuspended:
	default:
		return ErrNotRunning
	}

	e.halt()
	e.mu.Lock()
	e.state = StateStopped
	e.mu.Unlock()
	e.log.Info("engine stopped")
	return nil
}

// Restart reopens the board session and clears the failure counter. The
// store is kept so students already seen today remain.
func (e *Engine) Restart(ctx context.Context) error {
	e.ctl.Lock()
	defer e.ctl.Unlock()

	e.halt()
	if err := e.scraper.Connect(ctx); err != nil {
		e.setErr(err)
		e.mu.Lock()
		e.state = StateSuspended
		e.mu.Unlock()
		return fmt.Errorf("failed to reopen board session: %w", err)
	}
	e.launch(StateRunning)
	e.log.Info("engine restarted")
	return nil
}

// Reset empties the store and clears every notification latch.
func (e *Engine) Reset() {
	e.store.Reset()
	e.notifier.Reset()

	e.pub.Lock()
	e.haveDigest = false
	e.digest = ""
	e.pub.Unlock()

	e.log.Info("session reset")
	e.Refresh(e.baseCtx())
}

// Adjust changes a student's class length by delta minutes.
func (e *Engine) Adjust(name string, delta int) (session.Record, error) {
	rec, err := e.store.Adjust(name, delta, e.opts.Clock.Now())
	if err != nil {
		return session.Record{}, err
	}
	e.log.Info("class length adjusted",
		zap.String("student", rec.Name), zap.Int("delta", delta), zap.Int("class_minutes", rec.ClassMinutes))
	e.Refresh(e.baseCtx())
	return rec, nil
}

// Sleep pauses scraping without counting failures.
func (e *Engine) Sleep() {
	e.mu.Lock()
	e.paused = true
	e.mu.Unlock()
	e.log.Info("pausing board polling for sleep")
}

// Wake resumes after Sleep, reopening the session if the engine was live.
func (e *Engine) Wake(ctx context.Context) error {
	e.mu.Lock()
	e.paused = false
	st := e.state
	e.mu.Unlock()

	if st == StateRunning || st == StateSuspended {
		return e.Restart(ctx)
	}
	return nil
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Status() Status {
	active, departed := e.store.Order(e.opts.Clock.Now())
	policy := e.store.Options()

	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{
		State:      e.state,
		Failures:   e.failures,
		Paused:     e.paused,
		Active:     len(active),
		Departed:   len(departed),
		LastScrape: e.lastScrape,

		AutoDepart:      policy.AutoDepart,
		ClassMinutesMin: policy.ClassMinutesMin,
		ClassMinutesMax: policy.ClassMinutesMax,
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	return st
}

// View is the last published board view.
func (e *Engine) View() render.View {
	e.pub.Lock()
	defer e.pub.Unlock()
	return e.view
}

func (e *Engine) Renders() *render.Queue {
	return e.opts.Renders
}

func (e *Engine) Store() *state.Manager {
	return e.store
}

// launch starts the loops; callers hold ctl.
func (e *Engine) launch(st State) {
	ctx, cancel := context.WithCancel(e.baseCtx())
	e.cancel = cancel

	e.mu.Lock()
	e.state = st
	e.failures = 0
	e.lastErr = nil
	e.mu.Unlock()
	e.opts.Metrics.SetConsecutiveFailures(0)

	e.wg.Add(2)
	go e.pollLoop(ctx)
	go e.refreshLoop(ctx)
}

// halt cancels the loops and waits for them; callers hold ctl.
func (e *Engine) halt() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.wg.Wait()
}

func (e *Engine) baseCtx() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base
}

func (e *Engine) setErr(err error) {
	e.mu.Lock()
	e.lastErr = err
	e.mu.Unlock()
}
