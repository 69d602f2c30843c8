package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"storefront/internal/domain/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCartStore keeps anonymous carts keyed by the session cookie.
type RedisCartStore struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisCartStore(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCartStore {
	return &RedisCartStore{client: client, ttl: ttl, log: log}
}

func (s *RedisCartStore) Load(ctx context.Context, owner model.CartOwner) (model.Cart, error) {
	if owner.SessionKey == "" {
		return model.Cart{}, fmt.Errorf("cart store: session key required")
	}

	data, err := s.client.Get(ctx, cartKey(owner.SessionKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.NewCart(), nil
	}
	if err != nil {
		return model.Cart{}, fmt.Errorf("redis get failed: %w", err)
	}

	cart, warnings, err := model.DecodeCart(data)
	if err != nil {
		// unreadable payload: start over rather than fail every request
		s.log.Error("discarding unreadable session cart", zap.String("session", owner.SessionKey), zap.Error(err))
		return model.NewCart(), nil
	}
	for _, w := range warnings {
		s.log.Warn("session cart entry repaired", zap.String("session", owner.SessionKey), zap.Error(w))
	}
	return cart, nil
}

func (s *RedisCartStore) Save(ctx context.Context, owner model.CartOwner, cart model.Cart) error {
	if owner.SessionKey == "" {
		return fmt.Errorf("cart store: session key required")
	}
	data, err := model.EncodeCart(cart)
	if err != nil {
		return fmt.Errorf("encode cart failed: %w", err)
	}
	if err := s.client.Set(ctx, cartKey(owner.SessionKey), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisCartStore) Delete(ctx context.Context, owner model.CartOwner) error {
	if owner.SessionKey == "" {
		return nil
	}
	if err := s.client.Del(ctx, cartKey(owner.SessionKey)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cartKey(sessionKey string) string {
	return fmt.Sprintf("cart:session:%s", sessionKey)
}
