package main

import (
	"fmt"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"reddit-lead-bot/internal/adapters/classifier"
	"reddit-lead-bot/internal/adapters/drafter"
	"reddit-lead-bot/internal/adapters/extractor"
	"reddit-lead-bot/internal/adapters/notify"
	"reddit-lead-bot/internal/adapters/reddit"
	"reddit-lead-bot/internal/adapters/repo"
	"reddit-lead-bot/internal/adapters/webfetch"
	"reddit-lead-bot/internal/domain"
	"reddit-lead-bot/internal/infra/config"
	"reddit-lead-bot/internal/infra/db"
	apphttp "reddit-lead-bot/internal/infra/http"
	"reddit-lead-bot/internal/infra/log"
	"reddit-lead-bot/internal/infra/metrics"
	"reddit-lead-bot/internal/infra/openai"
	"reddit-lead-bot/internal/infra/tokens"
	"reddit-lead-bot/internal/usecase/connect"
	"reddit-lead-bot/internal/usecase/mentions"
	"reddit-lead-bot/internal/usecase/monitor"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)
	metrics.MustRegister(prometheus.DefaultRegisterer)

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось подключиться к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool)
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	tokenStore := tokens.NewRedisTokenStore(redisClient)

	aiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, 60*time.Second)
	classifierAdapter := classifier.NewOpenAI(aiClient, cfg.OpenAI.Model, 30*time.Second)
	drafterAdapter := drafter.NewOpenAI(aiClient, cfg.OpenAI.Model, 45*time.Second)
	extractorAdapter := extractor.NewOpenAI(aiClient, cfg.OpenAI.Model, 45*time.Second)
	fetcher := webfetch.NewFirecrawl(cfg.Firecrawl.APIKey, cfg.Firecrawl.BaseURL, 60*time.Second)

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
	mentionService := mentions.NewService(repoAdapter, repoAdapter, repoAdapter, drafterAdapter, logger)
	connectService := connect.NewService(tokenStore, repoAdapter, cfg.Telegram.Username, logger)

	a := &api{
		log:       logger,
		monitorUC: monitorService,
		mentionUC: mentionService,
		connectUC: connectService,
		extractor: extractorAdapter,
		fetcher:   fetcher,
		state:     repoAdapter,
	}

	srv := apphttp.NewServer(logger)
	srv.Router.Route("/internal", func(r chi.Router) {
		r.Use(apphttp.CronAuthMiddleware(cfg.CronSecret))
		r.Post("/monitor/run", a.handleMonitorRun)
	})
	srv.Router.Route("/api", func(r chi.Router) {
		r.Use(apphttp.UserAuthMiddleware())
		r.Get("/mentions", a.handleListMentions)
		r.Get("/mentions/{id}", a.handleGetMention)
		r.Patch("/mentions/{id}/status", a.handleSetStatus)
		r.Post("/mentions/{id}/regenerate", a.handleRegenerate)
		r.Post("/telegram/connect-token", a.handleConnectToken)
		r.Post("/products/extract", a.handleExtract)
		r.Get("/monitoring/state", a.handleMonitoringState)
	})

	if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("HTTP сервер остановлен")
	}
}

var _ domain.MentionRepo = (*repo.Postgres)(nil)
var _ domain.ProductRepo = (*repo.Postgres)(nil)
var _ domain.PersonaRepo = (*repo.Postgres)(nil)
var _ domain.ConnectionRepo = (*repo.Postgres)(nil)
var _ domain.MonitoringStateRepo = (*repo.Postgres)(nil)
