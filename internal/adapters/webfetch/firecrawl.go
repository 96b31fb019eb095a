package webfetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"reddit-lead-bot/internal/domain"
	"reddit-lead-bot/internal/infra/metrics"
)

// ErrNoContent возвращается, когда страница не содержит осмысленного текста.
var ErrNoContent = errors.New("не удалось извлечь осмысленный текст страницы")

// ErrNotConfigured возвращается при отсутствии FIRECRAWL_API_KEY.
var ErrNotConfigured = errors.New("не задан FIRECRAWL_API_KEY")

const minContentLength = 100

// Firecrawl возвращает нормализованный markdown-текст страницы.
type Firecrawl struct {
	http    *resty.Client
	baseURL string
	apiKey  string
}

// NewFirecrawl создаёт клиента Firecrawl.
func NewFirecrawl(apiKey, baseURL string, timeout time.Duration) *Firecrawl {
	if baseURL == "" {
		baseURL = "https://api.firecrawl.dev"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Firecrawl{
		http:    resty.New().SetTimeout(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

var _ domain.WebContentFetcher = (*Firecrawl)(nil)

type scrapeRequest struct {
	URL     string   `json:"url"`
	Formats []string `json:"formats"`
}

type scrapeResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Markdown string `json:"markdown"`
	} `json:"data"`
	Error string `json:"error"`
}

// FetchContent скачивает страницу и возвращает её markdown-представление.
func (f *Firecrawl) FetchContent(ctx context.Context, url string) (string, error) {
	if f.apiKey == "" {
		return "", ErrNotConfigured
	}

	start := time.Now()
	resp, err := f.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+f.apiKey).
		SetHeader("Content-Type", "application/json").
		SetBody(scrapeRequest{URL: url, Formats: []string{"markdown"}}).
		Post(f.baseURL + "/v1/scrape")
	metrics.ObserveNetworkRequest("firecrawl", "scrape", "page", start, err)
	if err != nil {
		return "", fmt.Errorf("скрейпинг страницы: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("скрейпинг страницы: HTTP %d", resp.StatusCode())
	}

	var parsed scrapeResponse
	if err := json.Unmarshal(resp.Body(), &parsed); err != nil {
		return "", fmt.Errorf("распаковка ответа firecrawl: %w", err)
	}
	if !parsed.Success {
		if parsed.Error != "" {
			return "", fmt.Errorf("firecrawl: %s", parsed.Error)
		}
		return "", ErrNoContent
	}
	content := strings.TrimSpace(parsed.Data.Markdown)
	if len(content) < minContentLength {
		return "", ErrNoContent
	}
	return content, nil
}
