package main

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"reddit-lead-bot/internal/adapters/classifier"
	"reddit-lead-bot/internal/adapters/drafter"
	"reddit-lead-bot/internal/adapters/notify"
	"reddit-lead-bot/internal/adapters/reddit"
	"reddit-lead-bot/internal/adapters/repo"
	"reddit-lead-bot/internal/infra/config"
	"reddit-lead-bot/internal/infra/db"
	"reddit-lead-bot/internal/infra/log"
	"reddit-lead-bot/internal/infra/metrics"
	"reddit-lead-bot/internal/infra/openai"
	"reddit-lead-bot/internal/usecase/monitor"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	aiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, 60*time.Second)
	classifierAdapter := classifier.NewOpenAI(aiClient, cfg.OpenAI.Model, 30*time.Second)
	drafterAdapter := drafter.NewOpenAI(aiClient, cfg.OpenAI.Model, 45*time.Second)

	redditClient := reddit.NewClient(reddit.Config{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
	}, &reddit.TokenCache{}, logger)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	dispatcher := notify.NewDispatcher(botAPI, logger)

	monitorService := monitor.NewService(monitor.Deps{
		Posts:      redditClient,
		Classifier: classifierAdapter,
		Drafter:    drafterAdapter,
		Mentions:   repoAdapter,
		Products:   repoAdapter,
		Personas:   repoAdapter,
		Conns:      repoAdapter,
		State:      repoAdapter,
		Notifier:   dispatcher,
		PostLimit:  cfg.Reddit.PostLimit,
	}, logger)

	// Прогоны не накладываются: пока идёт текущий, очередной тик пропускается.
	var running atomic.Bool
	c := cron.New()
	_, err = c.AddFunc(cfg.Monitor.Cron, func() {
		if !running.CompareAndSwap(false, true) {
			logger.Warn().Msg("предыдущий прогон ещё идёт, тик пропущен")
			return
		}
		defer running.Store(false)
		if _, err := monitorService.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("прогон мониторинга провалился")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.Monitor.Cron).Msg("некорректное расписание")
	}
	c.Start()
	logger.Info().Str("cron", cfg.Monitor.Cron).Msg("мониторинг запущен")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка мониторинга")
	cancel()
	<-c.Stop().Done()
}
