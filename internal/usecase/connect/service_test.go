package connect

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"reddit-lead-bot/internal/domain"
)

type stubTokens struct {
	issued    string
	issuedFor string
	ttl       time.Duration
	consumeID string
	err       error
}

func (s *stubTokens) Issue(_ context.Context, userID string, ttl time.Duration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.issuedFor = userID
	s.ttl = ttl
	return s.issued, nil
}

func (s *stubTokens) Consume(context.Context, string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.consumeID, nil
}

type stubConns struct {
	upserted []domain.TelegramConnection
	err      error
}

func (s *stubConns) UpsertConnection(_ context.Context, conn domain.TelegramConnection) error {
	if s.err != nil {
		return s.err
	}
	s.upserted = append(s.upserted, conn)
	return nil
}

func (s *stubConns) GetConnectionByUser(context.Context, string) (domain.TelegramConnection, error) {
	return domain.TelegramConnection{}, domain.ErrNotFound
}

func (s *stubConns) GetConnectionByChat(context.Context, int64) (domain.TelegramConnection, error) {
	return domain.TelegramConnection{}, domain.ErrNotFound
}

func TestIssueLinkBuildsDeepLink(t *testing.T) {
	tokens := &stubTokens{issued: "tok-123"}
	svc := NewService(tokens, &stubConns{}, "lead_radar_bot", zerolog.Nop())

	link, err := svc.IssueLink(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if link.DeepLink != "https://t.me/lead_radar_bot?start=tok-123" {
		t.Fatalf("неожиданный deep link: %s", link.DeepLink)
	}
	if tokens.ttl != TokenTTL {
		t.Fatalf("ожидали TTL %v, получили %v", TokenTTL, tokens.ttl)
	}
	if tokens.issuedFor != "u-1" {
		t.Fatalf("токен должен выдаваться для u-1, получили %s", tokens.issuedFor)
	}
}

func TestCompleteUpsertsConnection(t *testing.T) {
	tokens := &stubTokens{consumeID: "u-1"}
	conns := &stubConns{}
	svc := NewService(tokens, conns, "lead_radar_bot", zerolog.Nop())

	conn, err := svc.Complete(context.Background(), "tok-123", 500, 42)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if conn.UserID != "u-1" || conn.TelegramChatID != 500 || conn.TelegramUserID != 42 {
		t.Fatalf("неожиданная привязка: %+v", conn)
	}
	if len(conns.upserted) != 1 {
		t.Fatalf("ожидали один upsert, было %d", len(conns.upserted))
	}
}

func TestCompleteUnknownTokenFails(t *testing.T) {
	tokens := &stubTokens{err: domain.ErrNotFound}
	conns := &stubConns{}
	svc := NewService(tokens, conns, "lead_radar_bot", zerolog.Nop())

	_, err := svc.Complete(context.Background(), "bad", 500, 42)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("ожидали ErrNotFound, получили %v", err)
	}
	if len(conns.upserted) != 0 {
		t.Fatal("без валидного токена привязка не создаётся")
	}
}

func TestCompleteUpsertErrorWrapped(t *testing.T) {
	tokens := &stubTokens{consumeID: "u-1"}
	conns := &stubConns{err: errors.New("база недоступна")}
	svc := NewService(tokens, conns, "lead_radar_bot", zerolog.Nop())

	_, err := svc.Complete(context.Background(), "tok", 500, 42)
	if err == nil || !strings.Contains(err.Error(), "сохранение привязки") {
		t.Fatalf("ожидали обёрнутую ошибку сохранения, получили %v", err)
	}
}
