package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flicky/solar-storefront/internal/model"
)

// incrementAttempts refuses to touch a key whose hash field is gone, so an
// expired record is never resurrected without a TTL.
var incrementAttempts = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], "hash") == 0 then
	return -1
end
return redis.call("HINCRBY", KEYS[1], "attempts", 1)
`)

var consumeOTP = redis.NewScript(`
if redis.call("HGET", KEYS[1], "hash") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisOTPStore keeps each record in a hash so attempts can be bumped in place.
type RedisOTPStore struct {
	client *redis.Client
}

func NewRedisOTPStore(client *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{client: client}
}

func (s *RedisOTPStore) Save(ctx context.Context, rec *model.OTPRecord) error {
	key := otpKey(rec.Email, rec.Purpose)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"hash", rec.Hash,
			"attempts", rec.Attempts,
			"issued_at", rec.IssuedAt.UnixMilli(),
			"expires_at", rec.ExpiresAt.UnixMilli(),
		)
		pipe.Expire(ctx, key, ttlUntil(rec.ExpiresAt))
		return nil
	})
	if err != nil {
		return fmt.Errorf("save otp: %w", err)
	}
	return nil
}

func (s *RedisOTPStore) Get(ctx context.Context, email string, purpose model.OTPPurpose) (*model.OTPRecord, error) {
	fields, err := s.client.HGetAll(ctx, otpKey(email, purpose)).Result()
	if err != nil {
		return nil, fmt.Errorf("get otp: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	if fields["hash"] == "" {
		return nil, nil
	}

	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("parse otp attempts: %w", err)
	}
	issued, err := strconv.ParseInt(fields["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse otp issued_at: %w", err)
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse otp expires_at: %w", err)
	}
	return &model.OTPRecord{
		Email:     email,
		Purpose:   purpose,
		Hash:      fields["hash"],
		Attempts:  attempts,
		IssuedAt:  time.UnixMilli(issued),
		ExpiresAt: time.UnixMilli(expires),
	}, nil
}

func (s *RedisOTPStore) IncrementAttempts(ctx context.Context, email string, purpose model.OTPPurpose) (int, error) {
	n, err := incrementAttempts.Run(ctx, s.client, []string{otpKey(email, purpose)}).Int()
	if err != nil {
		return 0, fmt.Errorf("increment otp attempts: %w", err)
	}
	if n < 0 {
		return 0, ErrNoRecord
	}
	return n, nil
}

func (s *RedisOTPStore) Consume(ctx context.Context, email string, purpose model.OTPPurpose, hash string) (bool, error) {
	n, err := consumeOTP.Run(ctx, s.client, []string{otpKey(email, purpose)}, hash).Int()
	if err != nil {
		return false, fmt.Errorf("consume otp: %w", err)
	}
	return n == 1, nil
}

var _ OTPStore = (*RedisOTPStore)(nil)
