package cache

import (
	"context"
	"time"

	"sales-realtime-api/pkg/uid"

	"github.com/redis/go-redis/v9"
)

// releaseIfOwnerScript deletes the lease key only while it still holds the
// caller's token.
var releaseIfOwnerScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Locker hands out token-scoped leases on Redis keys.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewLocker creates a locker whose leases expire after ttl.
func NewLocker(client redis.UniversalClient, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Lease is a held lock. Only the holder's token can release it.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
}

// Acquire tries once to take the lease on key. It returns nil and no error
// when another holder owns it.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lease, error) {
	token := uid.New()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Lease{client: l.client, key: key, token: token}, nil
}

// Release frees the lease. It reports false when the lease had already
// expired or been taken over.
func (l *Lease) Release(ctx context.Context) (bool, error) {
	n, err := releaseIfOwnerScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Key returns the locked key.
func (l *Lease) Key() string { return l.key }
