package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shoemart_back_end/internal/models"
)

// TTL is refreshed on every write.
const TTL = 30 * 24 * time.Hour

const maxTxAttempts = 10

// RedisStore keeps each cart as a JSON blob under "cart:<owner>" and
// publishes change events on a channel of the same name.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func key(owner models.CartOwner) string { return "cart:" + string(owner) }

func (s *RedisStore) Load(ctx context.Context, owner models.CartOwner) (models.Cart, error) {
	return load(ctx, s.client, owner)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func load(ctx context.Context, c getter, owner models.CartOwner) (models.Cart, error) {
	cart := models.Cart{Owner: owner}
	data, err := c.Get(ctx, key(owner)).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart, nil
	}
	if err != nil {
		return cart, fmt.Errorf("get cart %s: %w", owner, err)
	}
	if err := json.Unmarshal(data, &cart); err != nil {
		return cart, fmt.Errorf("decode cart %s: %w", owner, err)
	}
	cart.Owner = owner
	return cart, nil
}

func save(ctx context.Context, p redis.Pipeliner, cart models.Cart) error {
	if len(cart.Items) == 0 {
		p.Del(ctx, key(cart.Owner))
		p.Publish(ctx, key(cart.Owner), EventCleared)
		return nil
	}
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("encode cart %s: %w", cart.Owner, err)
	}
	p.Set(ctx, key(cart.Owner), data, TTL)
	p.Publish(ctx, key(cart.Owner), EventUpdated)
	return nil
}

// transact retries fn until the watched keys stay untouched between read and EXEC.
func (s *RedisStore) transact(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("cart %v: too much contention", keys)
}

func (s *RedisStore) Update(ctx context.Context, owner models.CartOwner, fn func(*models.Cart) error) (models.Cart, error) {
	var out models.Cart
	err := s.transact(ctx, func(tx *redis.Tx) error {
		cart, err := load(ctx, tx, owner)
		if err != nil {
			return err
		}
		if err := fn(&cart); err != nil {
			return err
		}
		cart.UpdatedAt = time.Now()
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			return save(ctx, p, cart)
		})
		out = cart
		return err
	}, key(owner))
	return out, err
}

func (s *RedisStore) Delete(ctx context.Context, owner models.CartOwner) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key(owner))
	pipe.Publish(ctx, key(owner), EventCleared)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete cart %s: %w", owner, err)
	}
	return nil
}

func (s *RedisStore) Merge(ctx context.Context, from, to models.CartOwner, fn func(from, to *models.Cart) error) (models.Cart, error) {
	var out models.Cart
	err := s.transact(ctx, func(tx *redis.Tx) error {
		src, err := load(ctx, tx, from)
		if err != nil {
			return err
		}
		dst, err := load(ctx, tx, to)
		if err != nil {
			return err
		}
		out = dst
		if len(src.Items) == 0 {
			return nil
		}
		if err := fn(&src, &dst); err != nil {
			return err
		}
		dst.UpdatedAt = time.Now()
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			if err := save(ctx, p, dst); err != nil {
				return err
			}
			p.Del(ctx, key(from))
			p.Publish(ctx, key(from), EventCleared)
			return nil
		})
		out = dst
		return err
	}, key(from), key(to))
	return out, err
}

func (s *RedisStore) Watch(ctx context.Context, owner models.CartOwner) (<-chan string, error) {
	pubsub := s.client.Subscribe(ctx, key(owner))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe cart %s: %w", owner, err)
	}

	out := make(chan string, 8)
	go func() {
		defer close(out)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				default:
				}
			}
		}
	}()
	return out, nil
}
