package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Tracker mirrors registry changes somewhere outside the process.
type Tracker interface {
	Online(ctx context.Context, accountID, connID string) error
	Offline(ctx context.Context, accountID, connID string) error
}

type NopTracker struct{}

func (NopTracker) Online(context.Context, string, string) error  { return nil }
func (NopTracker) Offline(context.Context, string, string) error { return nil }

// presence key: im:presence:<account>
// value: <node>/<conn>, expiring after the TTL
func presenceKey(accountID string) string { return "im:presence:" + accountID }

// delete only while the value still names this connection, so a stale
// offline cannot remove a newer holder
const luaOfflineIfOwner = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type RedisTracker struct {
	rdb     *redis.Client
	nodeID  string
	ttl     time.Duration
	offline *redis.Script
}

func NewRedisTracker(rdb *redis.Client, nodeID string, ttl time.Duration) *RedisTracker {
	return &RedisTracker{
		rdb:     rdb,
		nodeID:  nodeID,
		ttl:     ttl,
		offline: redis.NewScript(luaOfflineIfOwner),
	}
}

func (t *RedisTracker) owner(connID string) string {
	return fmt.Sprintf("%s/%s", t.nodeID, connID)
}

func (t *RedisTracker) Online(ctx context.Context, accountID, connID string) error {
	if t.rdb == nil {
		return errors.New("redis not initialized")
	}
	err := t.rdb.Set(ctx, presenceKey(accountID), t.owner(connID), t.ttl).Err()
	return errors.Wrapf(err, "presence online %s", accountID)
}

func (t *RedisTracker) Offline(ctx context.Context, accountID, connID string) error {
	if t.rdb == nil {
		return errors.New("redis not initialized")
	}
	err := t.offline.Run(ctx, t.rdb, []string{presenceKey(accountID)}, t.owner(connID)).Err()
	return errors.Wrapf(err, "presence offline %s", accountID)
}

// Refresh renews the TTL of an online account, e.g. after a heartbeat.
func (t *RedisTracker) Refresh(ctx context.Context, accountID string) error {
	if t.rdb == nil {
		return errors.New("redis not initialized")
	}
	err := t.rdb.Expire(ctx, presenceKey(accountID), t.ttl).Err()
	return errors.Wrapf(err, "presence refresh %s", accountID)
}

// Lookup reports which node/connection currently holds accountID.
func (t *RedisTracker) Lookup(ctx context.Context, accountID string) (string, bool, error) {
	if t.rdb == nil {
		return "", false, errors.New("redis not initialized")
	}
	val, err := t.rdb.Get(ctx, presenceKey(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "presence lookup %s", accountID)
	}
	return val, true, nil
}

// Refresher is implemented by trackers that expire entries.
type Refresher interface {
	Refresh(ctx context.Context, accountID string) error
}

// Refresh renews accountID's presence entry when the tracker supports it.
func (r *Registry) Refresh(accountID string) {
	refresher, ok := r.tracker.(Refresher)
	if !ok {
		return
	}
	r.track(func(ctx context.Context) error {
		return refresher.Refresh(ctx, accountID)
	})
}
