package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"shoemart_back_end/internal/models"
)

const UserCacheTTL = 5 * time.Minute

type UserSource interface {
	GetByID(ctx context.Context, userID string) (models.User, error)
}

// CachedUsers reads user profiles through Redis before hitting the store.
type CachedUsers struct {
	source UserSource
	client redis.Cmdable
	ttl    time.Duration
}

func NewCachedUsers(source UserSource, client redis.Cmdable, ttl time.Duration) *CachedUsers {
	if ttl <= 0 {
		ttl = UserCacheTTL
	}
	return &CachedUsers{source: source, client: client, ttl: ttl}
}

func (c *CachedUsers) GetByID(ctx context.Context, userID string) (models.User, error) {
	key := "user:" + userID

	// 1. Redis
	if data, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var u models.User
		if json.Unmarshal(data, &u) == nil {
			return u, nil
		}
	}

	// 2. store
	u, err := c.source.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, err
	}

	// 3. fill the cache
	if data, err := json.Marshal(u); err == nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			log.Printf("⚠️ user %s not cached: %v", userID, err)
		}
	}
	return u, nil
}

func (c *CachedUsers) Invalidate(ctx context.Context, userID string) {
	c.client.Del(ctx, "user:"+userID)
}
