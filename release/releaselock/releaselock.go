package releaselock

import (
	"context"
	"fmt"
	"time"

	"github.com/anyproto/any-sync/app"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/masterplanhq/masterplan-server/redisprovider"
	"github.com/masterplanhq/masterplan-server/release/releaseapi"
)

const CName = "release.lock"

const lockTTL = time.Minute

func New() Locker {
	return new(redisLocker)
}

// Locker serializes publish attempts per (project, version) across all
// server processes. TryLock fails fast with ErrConcurrencyConflict instead of
// queueing: publish happens at most once per version, so a second concurrent
// attempt is a conflict, not a waiter.
type Locker interface {
	TryLock(ctx context.Context, slug string, versionNumber int) (unlock func(), err error)
	app.Component
}

var unlockScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type redisLocker struct {
	redis redis.UniversalClient
}

func (l *redisLocker) Init(a *app.App) (err error) {
	l.redis = a.MustComponent(redisprovider.CName).(redisprovider.RedisProvider).Redis()
	return
}

func (l *redisLocker) Name() (name string) {
	return CName
}

func (l *redisLocker) TryLock(ctx context.Context, slug string, versionNumber int) (unlock func(), err error) {
	key := fmt.Sprintf("publish-lock:%s:%d", slug, versionNumber)
	token := uuid.New().String()
	ok, err := l.redis.SetNX(ctx, key, token, lockTTL).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, releaseapi.ErrConcurrencyConflict
	}
	return func() {
		// unlock only if we still hold the token
		_ = unlockScript.Run(context.Background(), l.redis, []string{key}, token).Err()
	}, nil
}
