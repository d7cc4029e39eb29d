package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"FamilyBudget/internal/bot"
	"FamilyBudget/internal/config"
	"FamilyBudget/internal/ledger"
	"FamilyBudget/internal/logger"
	"FamilyBudget/internal/mirror"
	"FamilyBudget/internal/notifier"
	"FamilyBudget/internal/recorder"
	"FamilyBudget/internal/scheduler"
	"FamilyBudget/internal/webhook"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config validation")
	}
	loc, _ := cfg.Location()
	log.Info().Str("mode", cfg.Telegram.Mode).Str("timezone", loc.String()).Msg("FamilyBudget starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithContext(ctx, log)

	rec := openRecorder(cfg, log)
	defer rec.Close()

	backend, err := openMirror(ctx, cfg)
	if err != nil {
		// The ledger works without its off-host copy.
		log.Error().Err(err).Msg("backup mirror failed: backend unavailable, mirroring disabled")
	}

	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.APIBase, cfg.Proxy,
		logger.Component(log, "telegram"))
	format := notifier.Formatter{Currency: cfg.Budget.Currency, Members: cfg.Contributors}

	sched := scheduler.NewScheduler(ctx, nil, tn, format, loc, logger.Component(log, "scheduler"))
	sched.NotifyChatID = cfg.Telegram.NotifyChatID
	sched.KeepAliveURL = cfg.KeepAlive.URL

	opts := []ledger.Option{
		ledger.WithRecorder(rec),
		ledger.WithLogger(logger.Component(log, "ledger")),
		ledger.WithRolloverHook(sched.AnnounceRollover),
	}
	var dispatcher *mirror.Dispatcher
	if backend != nil {
		defer backend.Close()
		dispatcher = mirror.NewDispatcher(backend, cfg.Mirror.Timeout, logger.Component(log, "mirror"))
		opts = append(opts, ledger.WithMirror(dispatcher))
	} else {
		opts = append(opts, ledger.WithMirror(mirror.Discard{}))
	}

	mgr, err := ledger.NewManager(ledger.NewFileStore(cfg.Budget.StateFile), ledger.Config{
		BaseLimit:            cfg.Budget.BaseLimit,
		IncomeAffectsBalance: cfg.Budget.IncomeAffectsBalance,
		Contributors:         cfg.Contributors,
		Location:             loc,
	}, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("init ledger")
	}
	sched.Ledger = mgr
	if err := sched.RegisterAll(cfg.Schedule.RolloverCron, cfg.Schedule.KeepAliveCron); err != nil {
		log.Fatal().Err(err).Msg("register cron tasks")
	}
	// A month may have ended while the bot was down.
	sched.RunRolloverNow()

	handler := bot.New(mgr, format, tn, logger.Component(log, "bot"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	if dispatcher != nil {
		g.Go(func() error { return dispatcher.Run(gctx) })
	}

	switch cfg.Telegram.Mode {
	case "webhook":
		url := strings.TrimRight(cfg.Webhook.PublicURL, "/") + cfg.Webhook.Path
		if err := tn.SetWebhook(ctx, url, cfg.Webhook.Secret); err != nil {
			log.Fatal().Err(err).Msg("set webhook")
		}
		srv := webhook.New(cfg.Webhook.Path, cfg.Webhook.Secret, handler.Dispatch, logger.Component(log, "webhook"))
		g.Go(func() error { return srv.Run(gctx, cfg.Webhook.Listen) })
	default:
		if err := tn.DeleteWebhook(ctx); err != nil {
			log.Warn().Err(err).Msg("delete webhook, polling may be rejected")
		}
		g.Go(func() error { return tn.StartPolling(gctx, handler.Dispatch) })
	}

	log.Info().Msg("FamilyBudget is running. Press Ctrl+C to stop.")
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("stopped with error")
	}
	log.Info().Msg("FamilyBudget stopped")
}

func openRecorder(cfg *config.Config, log zerolog.Logger) recorder.Recorder {
	if cfg.Database.SQLitePath == "" {
		return recorder.NewNoopRecorder()
	}
	sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, logger.Component(log, "recorder"))
	if err != nil {
		log.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		return recorder.NewNoopRecorder()
	}
	return sr
}

// openMirror returns nil when no backend is configured.
func openMirror(ctx context.Context, cfg *config.Config) (mirror.Backend, error) {
	switch cfg.Mirror.Backend {
	case "gcs":
		b, err := mirror.NewGCSBackend(ctx, cfg.Mirror.GCSBucket, cfg.Mirror.GCSObject)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "amqp":
		b, err := mirror.NewAMQPBackend(cfg.Mirror.AMQPURL, cfg.Mirror.AMQPExchange, cfg.Mirror.AMQPRoutingKey)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		l := logger.FromContext(ctx)
		l.Info().Msg("no backup mirror configured")
		return nil, nil
	}
}
