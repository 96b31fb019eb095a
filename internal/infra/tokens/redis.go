package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"reddit-lead-bot/internal/domain"
)

const (
	tokenKeyPrefix = "tg_connect:token:"
	userKeyPrefix  = "tg_connect:user:"
)

// RedisTokenStore хранит одноразовые токены привязки Telegram в Redis.
// TTL ключа сам реализует delete-on-expiry, GETDEL — delete-on-use.
type RedisTokenStore struct {
	client *redis.Client
}

// NewRedisTokenStore создаёт хранилище токенов.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{client: client}
}

var _ domain.TokenStore = (*RedisTokenStore)(nil)

// Issue выпускает новый токен для пользователя, отзывая предыдущий.
func (s *RedisTokenStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	prev, err := s.client.GetDel(ctx, userKeyPrefix+userID).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	if prev != "" {
		_ = s.client.Del(ctx, tokenKeyPrefix+prev).Err()
	}

	token := uuid.NewString()
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, tokenKeyPrefix+token, userID, ttl)
	pipe.Set(ctx, userKeyPrefix+userID, token, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return token, nil
}

// Consume атомарно читает и удаляет токен.
func (s *RedisTokenStore) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.client.GetDel(ctx, tokenKeyPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", domain.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	_ = s.client.Del(ctx, userKeyPrefix+userID).Err()
	return userID, nil
}
