package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"reddit-lead-bot/internal/adapters/bot"
	"reddit-lead-bot/internal/adapters/drafter"
	"reddit-lead-bot/internal/adapters/notify"
	"reddit-lead-bot/internal/adapters/repo"
	"reddit-lead-bot/internal/infra/config"
	"reddit-lead-bot/internal/infra/db"
	"reddit-lead-bot/internal/infra/log"
	"reddit-lead-bot/internal/infra/metrics"
	"reddit-lead-bot/internal/infra/openai"
	"reddit-lead-bot/internal/infra/tokens"
	"reddit-lead-bot/internal/usecase/connect"
	"reddit-lead-bot/internal/usecase/mentions"
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
	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	tokenStore := tokens.NewRedisTokenStore(redisClient)

	aiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, 60*time.Second)
	drafterAdapter := drafter.NewOpenAI(aiClient, cfg.OpenAI.Model, 45*time.Second)

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("не удалось создать бота")
	}
	dispatcher := notify.NewDispatcher(botAPI, logger)

	connectService := connect.NewService(tokenStore, repoAdapter, cfg.Telegram.Username, logger)
	mentionService := mentions.NewService(repoAdapter, repoAdapter, repoAdapter, drafterAdapter, logger)
	h := bot.NewHandler(botAPI, logger, connectService, mentionService, repoAdapter, dispatcher)

	r := chi.NewRouter()
	r.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("бот-гейтвей запущен")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("HTTP сервер остановлен")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Info().Msg("остановка бота")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
