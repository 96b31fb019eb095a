package reddit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func listingJSON(ids ...string) string {
	var children []string
	for _, id := range ids {
		children = append(children, fmt.Sprintf(`{"data":{"id":%q,"title":"post %s","selftext":"body","author":"u1","subreddit":"golang","permalink":"/r/golang/comments/%s/","created_utc":1700000000,"score":3,"num_comments":1,"is_self":true}}`, id, id, id))
	}
	return fmt.Sprintf(`{"data":{"children":[%s]}}`, strings.Join(children, ","))
}

func newTestClient(t *testing.T, publicHandler, oauthHandler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	public := httptest.NewServer(publicHandler)
	t.Cleanup(public.Close)
	cfg.PublicBaseURL = public.URL
	if oauthHandler != nil {
		oauth := httptest.NewServer(oauthHandler)
		t.Cleanup(oauth.Close)
		cfg.OAuthBaseURL = oauth.URL
	}
	return NewClient(cfg, &TokenCache{}, zerolog.Nop())
}

func TestFetchPublicListing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/r/golang/new.json" {
			t.Fatalf("неожиданный путь: %s", r.URL.Path)
		}
		fmt.Fprint(w, listingJSON("abc", "def"))
	}, nil, Config{})

	result, err := client.Fetch(context.Background(), "golang", 25)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.Source != "public" {
		t.Fatalf("ожидали источник public, получили %s", result.Source)
	}
	if len(result.Posts) != 2 || result.Posts[0].ID != "abc" {
		t.Fatalf("ожидали 2 поста, получили %+v", result.Posts)
	}
	if result.Posts[0].CreatedUTC.IsZero() {
		t.Fatal("created_utc должен парситься")
	}
}

func TestFetchMissingSubredditIsSilentSkip(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, nil, Config{})

	result, err := client.Fetch(context.Background(), "doesnotexist", 25)
	if err != nil {
		t.Fatalf("404 сабреддита — не ошибка: %v", err)
	}
	if len(result.Posts) != 0 {
		t.Fatalf("ожидали пустой список, получили %d", len(result.Posts))
	}
}

func TestFetchBlockedFallsBackToOAuth(t *testing.T) {
	var tokenRequests int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/access_token" {
			tokenRequests++
			user, pass, ok := r.BasicAuth()
			if !ok || user != "id" || pass != "secret" {
				t.Fatal("ожидали basic auth с ключами приложения")
			}
			fmt.Fprint(w, `{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Fatalf("ожидали Bearer tok-1, получили %q", got)
		}
		fmt.Fprint(w, listingJSON("xyz"))
	}, Config{ClientID: "id", ClientSecret: "secret"})

	result, err := client.Fetch(context.Background(), "golang", 25)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.Source != "oauth" {
		t.Fatalf("ожидали источник oauth, получили %s", result.Source)
	}
	if len(result.Posts) != 1 || result.Posts[0].ID != "xyz" {
		t.Fatalf("неожиданные посты: %+v", result.Posts)
	}

	// Второй вызов переиспользует закэшированный токен.
	if _, err := client.Fetch(context.Background(), "golang", 25); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if tokenRequests != 1 {
		t.Fatalf("ожидали один запрос токена, было %d", tokenRequests)
	}
}

func TestFetchHTMLBodyTriggersFallback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/access_token" {
			fmt.Fprint(w, `{"access_token":"tok","expires_in":3600}`)
			return
		}
		// Reddit отдаёт HTML-страницу блокировки со статусом 200.
		fmt.Fprint(w, "<html><body>blocked</body></html>")
	}, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingJSON("ok"))
	}, Config{ClientID: "id", ClientSecret: "secret"})

	result, err := client.Fetch(context.Background(), "golang", 25)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if result.Source != "oauth" || len(result.Posts) != 1 {
		t.Fatalf("ожидали фолбэк на oauth, получили %+v", result)
	}
}

func TestFetchAllSourcesFailedWithoutCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}, nil, Config{})

	if _, err := client.Fetch(context.Background(), "golang", 25); err == nil {
		t.Fatal("ожидали ошибку, когда оба источника недоступны")
	}
}

func TestTokenCacheExpiryBuffer(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := &TokenCache{}
	cache.Put("tok", now.Add(10*time.Minute))

	if _, ok := cache.Get(now); !ok {
		t.Fatal("свежий токен должен находиться в кэше")
	}
	// За 5 минут до истечения токен уже считается устаревшим.
	if _, ok := cache.Get(now.Add(6 * time.Minute)); ok {
		t.Fatal("токен в буферной зоне должен считаться устаревшим")
	}

	cache.Clear()
	if _, ok := cache.Get(now); ok {
		t.Fatal("после Clear кэш должен быть пуст")
	}
}
