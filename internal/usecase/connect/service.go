package connect

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"reddit-lead-bot/internal/domain"
)

// TokenTTL — срок жизни одноразового токена привязки.
const TokenTTL = 30 * time.Minute

// Service выдаёт одноразовые токены привязки Telegram и завершает привязку
// по команде /start из бота.
type Service struct {
	tokens      domain.TokenStore
	conns       domain.ConnectionRepo
	botUsername string
	log         zerolog.Logger
}

// NewService создаёт сервис привязки.
func NewService(tokens domain.TokenStore, conns domain.ConnectionRepo, botUsername string, logger zerolog.Logger) *Service {
	return &Service{tokens: tokens, conns: conns, botUsername: botUsername, log: logger}
}

// Link — токен и deep link для кнопки «Подключить Telegram».
type Link struct {
	Token     string    `json:"token"`
	DeepLink  string    `json:"deep_link"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IssueLink выдаёт новый токен. Повторный вызов инвалидирует предыдущий
// токен пользователя: активен всегда не более одного.
func (s *Service) IssueLink(ctx context.Context, userID string) (Link, error) {
	token, err := s.tokens.Issue(ctx, userID, TokenTTL)
	if err != nil {
		return Link{}, fmt.Errorf("выдача токена привязки: %w", err)
	}
	return Link{
		Token:     token,
		DeepLink:  fmt.Sprintf("https://t.me/%s?start=%s", s.botUsername, token),
		ExpiresAt: time.Now().UTC().Add(TokenTTL),
	}, nil
}

// Complete атомарно потребляет токен и привязывает чат. Повторная привязка
// того же пользователя перезаписывает чат (не более одной привязки).
func (s *Service) Complete(ctx context.Context, token string, chatID, tgUserID int64) (domain.TelegramConnection, error) {
	userID, err := s.tokens.Consume(ctx, token)
	if err != nil {
		return domain.TelegramConnection{}, err
	}
	conn := domain.TelegramConnection{
		UserID:         userID,
		TelegramChatID: chatID,
		TelegramUserID: tgUserID,
	}
	if err := s.conns.UpsertConnection(ctx, conn); err != nil {
		return domain.TelegramConnection{}, fmt.Errorf("сохранение привязки: %w", err)
	}
	s.log.Info().Str("user", userID).Int64("chat", chatID).Msg("telegram привязан")
	return conn, nil
}
