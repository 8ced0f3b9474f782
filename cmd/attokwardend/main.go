package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/SoarinFerret/AttokWarden/internal/api"
	"github.com/SoarinFerret/AttokWarden/internal/boardtime"
	"github.com/SoarinFerret/AttokWarden/internal/config"
	"github.com/SoarinFerret/AttokWarden/internal/emitter"
	"github.com/SoarinFerret/AttokWarden/internal/engine"
	"github.com/SoarinFerret/AttokWarden/internal/ipc"
	"github.com/SoarinFerret/AttokWarden/internal/loginctl"
	"github.com/SoarinFerret/AttokWarden/internal/metrics"
	"github.com/SoarinFerret/AttokWarden/internal/notify"
	"github.com/SoarinFerret/AttokWarden/internal/queue"
	"github.com/SoarinFerret/AttokWarden/internal/render"
	"github.com/SoarinFerret/AttokWarden/internal/scrape"
	"github.com/SoarinFerret/AttokWarden/internal/state"
)

func main() {
	// check for argument to determine config location
	argPath := "/etc/attokwarden/config.toml"
	if len(os.Args) > 1 {
		argPath = os.Args[1]
	}

	if err := config.LoadEnvFile(filepath.Join(filepath.Dir(argPath), ".env")); err != nil {
		log.Fatal("Failed to load env file:", err)
	}
	cfg, err := config.LoadConfigFromFile(argPath)
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.Log.Debug)
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()
	logger.Info("using config file", zap.String("path", argPath))
	if !cfg.Log.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("shutdown signal received")
		cancel()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	notifier := newNotifier(ctx, cfg, logger.Named("notify"), m)
	eng := engine.NewEngine(engine.Options{
		PollInterval:     cfg.Engine.PollInterval(),
		RefreshInterval:  cfg.Engine.UIRefreshInterval(),
		FailureThreshold: cfg.Engine.ConsecFailureThreshold,
		Clock:            boardtime.SystemClock{Location: cfg.Location()},
		Metrics:          m,
		OnSuspend: func(err error) {
			logger.Error("board polling suspended, run `awctl restart` after logging in again", zap.Error(err))
		},
	}, newStore(cfg, logger.Named("state")), newScraper(cfg, logger.Named("scrape")), notifier, logger.Named("engine"))

	server := api.NewServer(api.Options{
		Listen:           cfg.HTTP.Listen,
		AllowedOrigins:   cfg.HTTP.AllowedOrigins,
		Grid:             renderGrid(cfg),
		InitialWidthPx:   1280,
		ControlPerMinute: 60,
		Gatherer:         reg,
	}, eng, notifier, logger.Named("api"))

	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	if _, err := c.AddFunc(cfg.Engine.DailyReset, func() {
		logger.Info("daily reset")
		eng.Reset()
	}); err != nil {
		logger.Fatal("invalid daily_reset schedule", zap.String("schedule", cfg.Engine.DailyReset), zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	var wg sync.WaitGroup

	// Start the logind sleep watcher (system D-Bus)
	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("monitoring dbus for sleep and wake")
		if err := loginctl.Watch(ctx, &sleepHandler{ctx: ctx, eng: eng, log: logger}, logger.Named("loginctl")); err != nil {
			logger.Warn("logind watcher error", zap.Error(err))
		}
	}()

	// Start the attokwarden D-Bus control service
	wg.Add(1)
	go func() {
		defer wg.Done()
		system := cfg.IPC.Bus == "system"
		logger.Info("opening D-Bus service", zap.String("bus", cfg.IPC.Bus))
		board := &ipc.Board{Engine: eng, Voice: notifier, AdjustStep: cfg.Engine.AdjustStep, Ctx: ctx}
		if err := ipc.Serve(ctx, system, board); err != nil {
			logger.Warn("attokwarden D-Bus service error", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := notifier.Run(ctx); err != nil {
			logger.Error("notifier error", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		server.Pump(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("serving board view", zap.String("listen", cfg.HTTP.Listen))
		if err := server.Run(ctx); err != nil {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	// Start the board engine
	wg.Add(1)
	go func() {
		defer wg.Done()
		if !*cfg.Engine.AutoStart {
			logger.Info("waiting for `awctl start` once the board is logged in")
		}
		if err := eng.Run(ctx, *cfg.Engine.AutoStart); err != nil {
			logger.Error("board engine error", zap.Error(err))
		}
	}()

	wg.Wait()
	logger.Info("shutdown complete")
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newStore(cfg *config.Config, logger *zap.Logger) *state.Manager {
	return state.NewManager(state.Options{
		DefaultClassMinutes: cfg.Engine.DefaultClassMinutes,
		ClassMinutesMin:     cfg.Engine.ClassMinutesMin,
		ClassMinutesMax:     cfg.Engine.ClassMinutesMax,
		AutoDepart:          *cfg.Engine.AutoDepart,
		InitialLoadSuppress: *cfg.Engine.InitialLoadSuppress,
	}, logger)
}

func newScraper(cfg *config.Config, logger *zap.Logger) *scrape.Adapter {
	b := cfg.Board
	var provider scrape.SessionProvider
	if b.File != "" {
		provider = scrape.FileProvider{Path: b.File, RowsMin: b.RowsMin, RowsMax: b.RowsMax}
	} else {
		provider = scrape.HTTPProvider{
			URL:       b.URL,
			Cookie:    b.Cookie,
			UserAgent: b.UserAgent,
			Timeout:   b.Timeout.Duration,
			RowsMin:   b.RowsMin,
			RowsMax:   b.RowsMax,
		}
	}
	return scrape.NewAdapter(provider, scrape.NewNameFilter(b.ExcludedNames), logger)
}

// newNotifier wires the local sinks and, when configured, the Redis and MQTT
// forwarders.
func newNotifier(ctx context.Context, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *notify.Notifier {
	sinks := []notify.Named{{Name: "log", Sink: notify.LogSink{Logger: logger}}}
	if len(cfg.Notify.SpeakCommand) > 0 || len(cfg.Notify.BeepCommand) > 0 {
		sinks = append(sinks, notify.Named{Name: "command", Sink: notify.CommandSink{
			SpeakCommand: cfg.Notify.SpeakCommand,
			BeepCommand:  cfg.Notify.BeepCommand,
			Timeout:      10 * time.Second,
		}})
	}
	if *cfg.Notify.Desktop {
		sinks = append(sinks, notify.Named{Name: "desktop", Sink: &notify.DesktopSink{}})
	}

	n := notify.New(queue.NewInMemory(cfg.Queue.Size), logger, m, sinks...)
	n.SetVoice(*cfg.Notify.Voice)

	if cfg.Queue.Backend == "redis" {
		client := queue.NewRedisClient(cfg.Queue.RedisAddr)
		rq := queue.NewRedisQueue(client, cfg.Queue.Key)
		if !rq.Healthy(ctx) {
			logger.Warn("redis not reachable yet, events will be retried per delivery", zap.String("addr", cfg.Queue.RedisAddr))
		}
		n.AddForwarder(notify.QueueForwarder{Queue: rq, Label: "redis"})
	}

	if cfg.MQTT.Broker != "" {
		em := emitter.NewMQTTEmitter(cfg.MQTT, logger)
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := em.Connect(connectCtx); err != nil {
			logger.Warn("mqtt connect failed, continuing without it", zap.String("broker", cfg.MQTT.Broker), zap.Error(err))
		} else {
			go func() {
				<-ctx.Done()
				em.Disconnect()
			}()
			n.AddForwarder(em)
		}
	}
	return n
}

// sleepHandler pauses polling across system suspend.
type sleepHandler struct {
	ctx context.Context
	eng *engine.Engine
	log *zap.Logger
}

func (h *sleepHandler) HandleSleep() {
	h.log.Info("system going to sleep, pausing board polling")
	h.eng.Sleep()
}

func (h *sleepHandler) HandleWake() {
	h.log.Info("system woke up, reopening board session")
	if err := h.eng.Wake(h.ctx); err != nil {
		h.log.Warn("failed to resume board polling", zap.Error(err))
	}
}

func renderGrid(cfg *config.Config) render.GridOptions {
	return render.GridOptions{
		ColumnsMin:  cfg.Grid.ColumnsMin,
		ColumnsMax:  cfg.Grid.ColumnsMax,
		CardWidthPx: cfg.Grid.CardNominalWidthPx,
	}
}
