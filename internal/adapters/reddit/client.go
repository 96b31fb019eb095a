package reddit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"reddit-lead-bot/internal/domain"
	"reddit-lead-bot/internal/infra/metrics"
)

const (
	defaultPublicBaseURL = "https://www.reddit.com"
	defaultOAuthBaseURL  = "https://oauth.reddit.com"
	userAgent            = "LeadRadarBot/1.0 (Reddit Monitoring)"

	// Токен живёт около часа; обновляем за 5 минут до фактического истечения.
	tokenExpiryBuffer = 5 * time.Minute
)

// ErrAllSourcesFailed возвращается, когда ни один провайдер не смог отдать посты.
var ErrAllSourcesFailed = errors.New("все источники недоступны")

// ErrMissingCredentials возвращается при попытке OAuth-запроса без настроенных ключей.
var ErrMissingCredentials = errors.New("не заданы REDDIT_CLIENT_ID/REDDIT_CLIENT_SECRET")

// TokenCache — явный одноместный кэш access-токена с внедряемыми часами.
// Промах или устаревание кэша лишь вызывают повторный запрос токена.
type TokenCache struct {
	mu        sync.Mutex
	value     string
	expiresAt time.Time
}

// Get возвращает токен, если он ещё действителен на момент now.
func (c *TokenCache) Get(now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == "" || !now.Add(tokenExpiryBuffer).Before(c.expiresAt) {
		return "", false
	}
	return c.value, true
}

// Put сохраняет токен и срок его действия.
func (c *TokenCache) Put(value string, expiresAt time.Time) {
	c.mu.Lock()
	c.value = value
	c.expiresAt = expiresAt
	c.mu.Unlock()
}

// Clear сбрасывает кэш (после 401 от OAuth-эндпоинта).
func (c *TokenCache) Clear() {
	c.mu.Lock()
	c.value = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// Config описывает настройки клиента Reddit.
type Config struct {
	ClientID      string
	ClientSecret  string
	PublicBaseURL string
	OAuthBaseURL  string
	Timeout       time.Duration
	Now           func() time.Time
}

// Client выгружает посты сабреддитов: сперва публичный JSON-листинг,
// при блокировке — авторизованный листинг через OAuth.
type Client struct {
	http          *resty.Client
	clientID      string
	clientSecret  string
	publicBaseURL string
	oauthBaseURL  string
	cache         *TokenCache
	now           func() time.Time
	log           zerolog.Logger
}

// NewClient создаёт клиента Reddit.
func NewClient(cfg Config, cache *TokenCache, logger zerolog.Logger) *Client {
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = defaultPublicBaseURL
	}
	if cfg.OAuthBaseURL == "" {
		cfg.OAuthBaseURL = defaultOAuthBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cache == nil {
		cache = &TokenCache{}
	}
	return &Client{
		http:          resty.New().SetTimeout(cfg.Timeout).SetHeader("User-Agent", userAgent),
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		oauthBaseURL:  strings.TrimRight(cfg.OAuthBaseURL, "/"),
		cache:         cache,
		now:           cfg.Now,
		log:           logger,
	}
}

var _ domain.PostSource = (*Client)(nil)

// outcome — трёхзначный результат одной стратегии выгрузки.
type outcome int

const (
	outcomeOK   outcome = iota // посты получены
	outcomeSkip                // сабреддит закрыт или не существует, тихо пропускаем
	outcomeNext                // провайдер заблокирован, пробуем следующий
)

type strategy struct {
	name  string
	fetch func(ctx context.Context, subreddit string, limit int) ([]domain.RedditPost, outcome, error)
}

// Fetch пробует стратегии по порядку. 404/403 на уровне сабреддита — не ошибка:
// возвращается пустой список, чтобы цикл мониторинга мог молча пропустить его.
func (c *Client) Fetch(ctx context.Context, subreddit string, limit int) (domain.FetchResult, error) {
	if limit <= 0 {
		limit = 25
	}
	chain := []strategy{
		{name: "public", fetch: c.fetchPublic},
		{name: "oauth", fetch: c.fetchOAuth},
	}

	var lastErr error
	for _, s := range chain {
		posts, out, err := s.fetch(ctx, subreddit, limit)
		switch out {
		case outcomeOK:
			return domain.FetchResult{Posts: posts, Source: s.name}, nil
		case outcomeSkip:
			return domain.FetchResult{Source: s.name}, nil
		case outcomeNext:
			if err != nil {
				lastErr = err
				c.log.Debug().Err(err).Str("subreddit", subreddit).Str("source", s.name).Msg("источник недоступен, пробуем следующий")
			}
		}
	}
	if lastErr == nil {
		lastErr = ErrAllSourcesFailed
	}
	return domain.FetchResult{}, fmt.Errorf("выгрузка r/%s: %w", subreddit, lastErr)
}

func (c *Client) fetchPublic(ctx context.Context, subreddit string, limit int) ([]domain.RedditPost, outcome, error) {
	url := fmt.Sprintf("%s/r/%s/new.json?limit=%d", c.publicBaseURL, subreddit, limit)
	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).SetHeader("Accept", "application/json").Get(url)
	metrics.ObserveNetworkRequest("reddit", "listing_public", subreddit, start, err)
	if err != nil {
		return nil, outcomeNext, err
	}
	switch {
	case resp.StatusCode() == 404:
		return nil, outcomeSkip, nil
	case resp.StatusCode() == 403 || resp.StatusCode() == 429:
		return nil, outcomeNext, fmt.Errorf("публичный листинг заблокирован: HTTP %d", resp.StatusCode())
	case resp.StatusCode() >= 400:
		return nil, outcomeNext, fmt.Errorf("публичный листинг: HTTP %d", resp.StatusCode())
	}
	posts, err := parseListing(resp.Body())
	if err != nil {
		// Reddit отдаёт HTML вместо JSON, когда блокирует IP — это сигнал фолбэка.
		return nil, outcomeNext, err
	}
	return posts, outcomeOK, nil
}

func (c *Client) fetchOAuth(ctx context.Context, subreddit string, limit int) ([]domain.RedditPost, outcome, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, outcomeNext, err
	}
	url := fmt.Sprintf("%s/r/%s/new?limit=%d", c.oauthBaseURL, subreddit, limit)
	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).SetHeader("Authorization", "Bearer "+token).Get(url)
	metrics.ObserveNetworkRequest("reddit", "listing_oauth", subreddit, start, err)
	if err != nil {
		return nil, outcomeNext, err
	}
	switch {
	case resp.StatusCode() == 404:
		return nil, outcomeSkip, nil
	case resp.StatusCode() == 401:
		c.cache.Clear()
		return nil, outcomeNext, errors.New("oauth-токен отклонён")
	case resp.StatusCode() >= 400:
		return nil, outcomeNext, fmt.Errorf("oauth-листинг: HTTP %d", resp.StatusCode())
	}
	posts, err := parseListing(resp.Body())
	if err != nil {
		return nil, outcomeNext, err
	}
	return posts, outcomeOK, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if token, ok := c.cache.Get(c.now()); ok {
		return token, nil
	}
	if c.clientID == "" || c.clientSecret == "" {
		return "", ErrMissingCredentials
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.clientID, c.clientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		Post(c.publicBaseURL + "/api/v1/access_token")
	metrics.ObserveNetworkRequest("reddit", "access_token", "oauth", start, err)
	if err != nil {
		return "", fmt.Errorf("запрос токена: %w", err)
	}
	if resp.StatusCode() >= 400 {
		return "", fmt.Errorf("запрос токена: HTTP %d", resp.StatusCode())
	}
	var tr tokenResponse
	if err := json.Unmarshal(resp.Body(), &tr); err != nil {
		return "", fmt.Errorf("распаковка токена: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("пустой access_token в ответе")
	}
	c.cache.Put(tr.AccessToken, c.now().Add(time.Duration(tr.ExpiresIn)*time.Second))
	return tr.AccessToken, nil
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Data struct {
				ID          string  `json:"id"`
				Title       string  `json:"title"`
				Selftext    string  `json:"selftext"`
				Author      string  `json:"author"`
				Subreddit   string  `json:"subreddit"`
				Permalink   string  `json:"permalink"`
				CreatedUTC  float64 `json:"created_utc"`
				Score       int     `json:"score"`
				NumComments int     `json:"num_comments"`
				IsSelf      bool    `json:"is_self"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func parseListing(body []byte) ([]domain.RedditPost, error) {
	var listing listingResponse
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, fmt.Errorf("ответ листинга не является JSON: %w", err)
	}
	posts := make([]domain.RedditPost, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		p := child.Data
		posts = append(posts, domain.RedditPost{
			ID:          p.ID,
			Title:       p.Title,
			Selftext:    p.Selftext,
			Author:      p.Author,
			Subreddit:   p.Subreddit,
			Permalink:   p.Permalink,
			CreatedUTC:  time.Unix(int64(p.CreatedUTC), 0).UTC(),
			Score:       p.Score,
			NumComments: p.NumComments,
			IsSelf:      p.IsSelf,
		})
	}
	return posts, nil
}
