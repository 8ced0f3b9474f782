package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/SoarinFerret/AttokWarden/internal/config"
	"github.com/SoarinFerret/AttokWarden/internal/notify"
	"github.com/SoarinFerret/AttokWarden/internal/queue"
)

// attokannounce consumes board events from the shared Redis list and
// announces them on this machine's speakers.
func main() {
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
	if cfg.Queue.RedisAddr == "" {
		log.Fatal("queue.redis_addr (or ATTOK_REDIS_ADDR) is required")
	}

	logger, err := zap.NewProduction()
	if cfg.Log.Debug {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		log.Fatal("Failed to create logger:", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	client := queue.NewRedisClient(cfg.Queue.RedisAddr)
	defer client.Close()
	q := queue.NewRedisQueue(client, cfg.Queue.Key)

	if !q.Healthy(ctx) {
		logger.Warn("redis not reachable, will keep retrying", zap.String("addr", cfg.Queue.RedisAddr))
	} else {
		logger.Info("redis connected", zap.String("addr", cfg.Queue.RedisAddr), zap.String("key", cfg.Queue.Key))
	}

	sinks := []notify.Named{{Name: "log", Sink: notify.LogSink{Logger: logger}}}
	if len(cfg.Notify.SpeakCommand) > 0 || len(cfg.Notify.BeepCommand) > 0 {
		sinks = append(sinks, notify.Named{Name: "command", Sink: notify.CommandSink{
			SpeakCommand: cfg.Notify.SpeakCommand,
			BeepCommand:  cfg.Notify.BeepCommand,
			Timeout:      10 * time.Second,
		}})
	} else {
		logger.Warn("no speak_command or beep_command configured, events will only be logged")
	}

	n := notify.New(q, logger, nil, sinks...)
	n.SetVoice(*cfg.Notify.Voice)

	c := cron.New(cron.WithLocation(cfg.Location()))
	if _, err := c.AddFunc(cfg.Engine.DailyReset, n.Reset); err != nil {
		logger.Fatal("invalid daily_reset schedule", zap.String("schedule", cfg.Engine.DailyReset), zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	logger.Info("announcer started, waiting for events...")
	if err := n.Run(ctx); err != nil {
		logger.Fatal("queue consume failed", zap.Error(err))
	}
	logger.Info("announcer stopped")
}
