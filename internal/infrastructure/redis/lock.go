// Package redis holds the daily run lock.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockHeld is returned when another run already holds the day's lock.
var ErrLockHeld = errors.New("a run for this date is already in progress")

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Println("Redis connection established")
	return client, nil
}

// RunLock keeps two daily runs for the same date from overlapping.
type RunLock struct {
	client   goredis.Cmdable
	ttl      time.Duration
	prefix   string
	newToken func() string
}

// NewRunLock creates a lock whose keys expire after ttl, so a crashed run
// never blocks the next one for long.
func NewRunLock(client goredis.Cmdable, ttl time.Duration) *RunLock {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RunLock{
		client:   client,
		ttl:      ttl,
		prefix:   "budgetwatch:run:",
		newToken: uuid.NewString,
	}
}

// Key returns the lock key for date.
func (l *RunLock) Key(date time.Time) string {
	return l.prefix + date.Format("2006-01-02")
}

// Acquire takes the lock for date. The returned release func gives it back
// and is safe to call after the key expired.
func (l *RunLock) Acquire(ctx context.Context, date time.Time) (func(context.Context) error, error) {
	key := l.Key(date)
	token := l.newToken()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLockHeld, key)
	}

	log.Printf("Run lock %s acquired", key)

	release := func(ctx context.Context) error {
		n, err := l.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
		if err != nil {
			return fmt.Errorf("failed to release run lock: %w", err)
		}
		if n == 0 {
			log.Printf("Run lock %s had already expired", key)
		}
		return nil
	}

	return release, nil
}
