package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker guards a job so only one instance runs it at a time.
type Locker interface {
	// Acquire returns ok=false when another holder owns key. release must be
	// called once the job is done.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// releaseScript deletes the key only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
}

// NewRedisLocker builds a locker on client.
func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	}
	return release, true, nil
}

// localLocker is used when no Redis is configured; it only excludes
// overlapping runs inside this process.
type localLocker struct {
	held chan struct{}
}

func newLocalLocker() *localLocker {
	return &localLocker{held: make(chan struct{}, 1)}
}

func (l *localLocker) Acquire(ctx context.Context, _ string, _ time.Duration) (func(context.Context) error, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	select {
	case l.held <- struct{}{}:
		return func(context.Context) error {
			<-l.held
			return nil
		}, true, nil
	default:
		return nil, false, nil
	}
}
