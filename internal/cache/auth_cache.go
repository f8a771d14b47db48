package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// OTPEntry is a pending one-time code. Only the hash is stored.
type OTPEntry struct {
	Hash     string
	Attempts int
}

// RedisOTPStore keeps one pending code per phone in the hash "otp:<phone>".
type RedisOTPStore struct {
	client redis.Cmdable
}

func NewRedisOTPStore(client redis.Cmdable) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

func otpKey(phone string) string { return "otp:" + phone }

// Save replaces any pending code for phone.
func (s *RedisOTPStore) Save(ctx context.Context, phone, hash string, ttl time.Duration) error {
	key := otpKey(phone)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, "hash", hash, "attempts", 0)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	return nil
}

func (s *RedisOTPStore) Load(ctx context.Context, phone string) (OTPEntry, bool, error) {
	fields, err := s.client.HGetAll(ctx, otpKey(phone)).Result()
	if err != nil {
		return OTPEntry{}, false, fmt.Errorf("load otp: %w", err)
	}
	if fields["hash"] == "" {
		return OTPEntry{}, false, nil
	}
	attempts, _ := strconv.Atoi(fields["attempts"])
	return OTPEntry{Hash: fields["hash"], Attempts: attempts}, true, nil
}

// Attempt counts one verification attempt and returns the new total.
func (s *RedisOTPStore) Attempt(ctx context.Context, phone string) (int, error) {
	n, err := s.client.HIncrBy(ctx, otpKey(phone), "attempts", 1).Result()
	if err != nil {
		return 0, fmt.Errorf("count otp attempt: %w", err)
	}
	return int(n), nil
}

func (s *RedisOTPStore) Delete(ctx context.Context, phone string) error {
	return s.client.Del(ctx, otpKey(phone)).Err()
}
