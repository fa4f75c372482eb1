// Package lock implements a short-lived, lease-based distributed lock
// on Redis.  A lease is held only for the duration of a critical
// section and lapses on its own at its TTL, so a crashed holder never
// blocks other instances for longer than the lease.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only when the stored token matches,
// so a holder whose lease already lapsed and was re-acquired by someone
// else cannot release the new holder's lease.
var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// Lease acquires per-key leases on a shared Redis instance.  A nil
// client degrades to always-acquire, which is correct for a
// single-process deployment.
type Lease struct {
	rdb    *redis.Client
	prefix string
}

// NewLease returns a Lease using the given client and key prefix.
func NewLease(rdb *redis.Client, prefix string) *Lease {
	if prefix == "" {
		prefix = "lease"
	}
	return &Lease{rdb: rdb, prefix: prefix}
}

// Acquire takes the lease for key, reporting ok=false when another
// holder has it.  On Redis failure the lease is granted rather than
// refused: the lock only serializes an advisory path and a dead broker
// must not take the engine down with it.
func (l *Lease) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool) {
	noop := func() {}
	if l.rdb == nil {
		return noop, true
	}
	token, err := randomToken()
	if err != nil {
		return noop, true
	}
	full := l.prefix + ":" + key
	set, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return noop, true
	}
	if !set {
		return nil, false
	}
	return func() {
		// Best effort; the TTL reclaims the lease if this fails.
		_ = releaseScript.Run(context.Background(), l.rdb, []string{full}, token).Err()
	}, true
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
