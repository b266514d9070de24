package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Booking idempotency:
//
//	idem:booking:create:{key} -> response body
//	idem:booking:ref:{bookingID} -> key
const (
	KeyIdemBookingCreate = "idem:booking:create:%s"
	KeyIdemBookingRef    = "idem:booking:ref:%s"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// Idempotency remembers the response of a booking request by its client key
type Idempotency struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewIdempotency(rdb *redis.Client, ttl time.Duration) *Idempotency {
	return &Idempotency{rdb: rdb, ttl: ttl}
}

// Lookup returns the stored response for key, if any
func (i *Idempotency) Lookup(ctx context.Context, key string) (string, bool, error) {
	v, err := i.rdb.Get(ctx, idemKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	return v, true, nil
}

// Remember stores the response for key and indexes it by booking id. An
// existing entry is kept.
func (i *Idempotency) Remember(ctx context.Context, key, bookingID, response string) error {
	stored, err := i.rdb.SetNX(ctx, idemKey(key), response, i.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	if !stored {
		return nil
	}
	if err := i.rdb.Set(ctx, refKey(bookingID), key, i.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency ref: %w", err)
	}
	return nil
}

// Forget drops the entry that produced bookingID so a retry books again
func (i *Idempotency) Forget(ctx context.Context, bookingID string) error {
	key, err := i.rdb.Get(ctx, refKey(bookingID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read idempotency ref: %w", err)
	}
	if err := i.rdb.Del(ctx, idemKey(key), refKey(bookingID)).Err(); err != nil {
		return fmt.Errorf("failed to drop idempotency key: %w", err)
	}
	return nil
}

func idemKey(key string) string {
	return fmt.Sprintf(KeyIdemBookingCreate, key)
}

func refKey(bookingID string) string {
	return fmt.Sprintf(KeyIdemBookingRef, bookingID)
}
