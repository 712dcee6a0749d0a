// Package lock implements an optional Redis-backed advisory lock
// so two accidental concurrent orchestrator invocations against the
// same database don't both claim the same month. It is pure
// operational insurance — the fingerprint primary key is the actual
// correctness guarantee.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nyctaxi/taxietl/internal/errs"
)

const (
	key = "taxietl:run-lock"
	ttl = 6 * time.Hour
)

// releaseScript deletes the key only if it still holds our token,
// so a lock we've lost ownership of (expired and re-acquired by
// another process) is never deleted out from under that process.
const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// Lock wraps one acquired run-lock instance; Release is a no-op if
// the token it holds has already expired or been stolen.
type Lock struct {
	client *redis.Client
	token  string
}

// Acquire attempts to claim the run lock, returning a CONFIG-class
// PipelineError if it is already held — an operator-visible mistake
// (two invocations), not a data-correctness problem.
func Acquire(ctx context.Context, redisURL string) (*Lock, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errs.New(errs.Config, fmt.Errorf("invalid REDIS_URL: %w", err))
	}
	client := redis.NewClient(opt)

	token, err := randomToken()
	if err != nil {
		return nil, errs.New(errs.Fatal, fmt.Errorf("generate lock token: %w", err))
	}

	ok, err := client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		client.Close()
		return nil, errs.New(errs.Config, fmt.Errorf("acquire run lock: %w", err))
	}
	if !ok {
		client.Close()
		return nil, errs.New(errs.Config, fmt.Errorf("run lock %q already held by another invocation", key))
	}

	return &Lock{client: client, token: token}, nil
}

// Release deletes the lock key if and only if it still holds our
// token, then closes the underlying Redis connection.
func (l *Lock) Release(ctx context.Context) error {
	defer l.client.Close()
	if err := l.client.Eval(ctx, releaseScript, []string{key}, l.token).Err(); err != nil {
		return errs.New(errs.Fatal, fmt.Errorf("release run lock: %w", err))
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
