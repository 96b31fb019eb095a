package config

import (
	"log"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token    string `envconfig:"TG_BOT_TOKEN"`
		Username string `envconfig:"TG_BOT_USERNAME"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	CronSecret string `envconfig:"CRON_SECRET"`

	OpenAI struct {
		APIKey  string `envconfig:"OPENAI_API_KEY"`
		BaseURL string `envconfig:"OPENAI_BASE_URL"`
		Model   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	} `envconfig:""`

	Reddit struct {
		ClientID     string `envconfig:"REDDIT_CLIENT_ID"`
		ClientSecret string `envconfig:"REDDIT_CLIENT_SECRET"`
		PostLimit    int    `envconfig:"REDDIT_POST_LIMIT" default:"25"`
	} `envconfig:""`

	Firecrawl struct {
		APIKey  string `envconfig:"FIRECRAWL_API_KEY"`
		BaseURL string `envconfig:"FIRECRAWL_BASE_URL" default:"https://api.firecrawl.dev"`
	} `envconfig:""`

	Monitor struct {
		Cron string `envconfig:"MONITOR_CRON" default:"*/15 * * * *"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
