package main

import (
	"context"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"booking-bot/internal/availability"
	"booking-bot/internal/bot"
	"booking-bot/internal/clock"
	"booking-bot/internal/config"
	"booking-bot/internal/database"
	"booking-bot/internal/dialog"
	"booking-bot/internal/handlers"
	"booking-bot/internal/scheduler"
	"booking-bot/internal/service"
	"booking-bot/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	// Logger config from env (LOG_LEVEL, LOG_FORMAT, LOG_OUTPUT)
	loggerConfig := &logger.Config{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
		Output: getEnv("LOG_OUTPUT", "stdout"),
	}
	zapLogger, err := logger.New(loggerConfig, logger.DefaultServiceName)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to init logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = zapLogger.Sync() }()
	zap.ReplaceGlobals(zapLogger)

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Invalid configuration", zap.Error(err))
	}

	db, err := database.New(database.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	})
	if err != nil {
		zap.L().Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	// Postgres may still be starting; ping with backoff before migrating.
	backoff := retry.WithMaxRetries(10, retry.NewExponential(time.Second))
	err = retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		if pingErr := db.PingContext(ctx); pingErr != nil {
			zap.L().Warn("Database not ready, retrying", zap.Error(pingErr))
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		zap.L().Fatal("Failed to connect to database", zap.Error(err))
	}

	zap.L().Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		zap.L().Fatal("Failed to run migrations", zap.Error(err))
	}

	b, err := bot.New(cfg.BotToken, cfg.BotAPIEndpoint, cfg.DefaultAdminID, zapLogger)
	if err != nil {
		zap.L().Fatal("Failed to create bot", zap.Error(err))
	}

	clk := clock.New(cfg.Location)

	svc := service.New(db, clk, service.Config{
		Step:         cfg.Step,
		WorkingStart: cfg.WorkingStart,
		WorkingEnd:   cfg.WorkingEnd,
		MaxDuration:  cfg.MaxDuration,
	})

	env := &handlers.Env{
		Bot:     b,
		DB:      db,
		Service: svc,
		Avail:   availability.New(db, clk, cfg.Step, cfg.WorkingStart, cfg.WorkingEnd),
		Dialogs: dialog.NewManager(),
		Timers:  scheduler.NewTimerRegistry(),
		Clk:     clk,
		Cfg:     cfg,
		Log:     zapLogger,
	}

	sched := scheduler.New(db, env, clk, zapLogger, scheduler.Config{
		LeadStart:    cfg.LeadStart,
		LeadEnd:      cfg.LeadEnd,
		MisfireGrace: cfg.MisfireGrace,
	})
	env.Sched = sched
	defer sched.Stop()

	// Recover notifications that were pending when the process went down.
	live, err := db.ListLive(clk.Now())
	if err != nil {
		zap.L().Fatal("Failed to load live reservations", zap.Error(err))
	}
	if err := sched.Resync(live); err != nil {
		zap.L().Error("Schedule recovery incomplete", zap.Error(err))
	}
	zap.L().Info("Schedule recovered", zap.Int("reservations", len(live)))

	zap.L().Info("Bot started successfully")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.API.GetUpdatesChan(u)

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return env.RunDialogGC(ctx)
	})

	g.Go(func() error {
		for update := range updates {
			if update.Message != nil && !update.Message.Chat.IsPrivate() {
				continue
			}
			go env.HandleUpdate(update)
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		zap.L().Fatal("Bot stopped", zap.Error(err))
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
