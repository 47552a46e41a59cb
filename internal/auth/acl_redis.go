package auth

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"duffel/pkg/model"
)

var aclCheckDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "duffel_acl_check_duration_ms",
	Help:    "Latency of list membership checks in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const (
	// Redis key prefix for list membership sets
	aclKeyPrefix = "acl:list:"
)

// RedisACL is a Redis-backed ACL. This is the production implementation for
// deployments where multiple instances need to share membership state.
type RedisACL struct {
	client *redis.Client
	prefix string
}

// RedisACLOption configures a RedisACL instance.
type RedisACLOption func(*RedisACL)

// WithACLKeyPrefix overrides the key prefix, for shared Redis deployments.
func WithACLKeyPrefix(prefix string) RedisACLOption {
	return func(a *RedisACL) {
		if prefix != "" {
			a.prefix = prefix
		}
	}
}

// NewRedisACL constructs a Redis-backed ACL.
func NewRedisACL(client *redis.Client, opts ...RedisACLOption) *RedisACL {
	acl := &RedisACL{
		client: client,
		prefix: aclKeyPrefix,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(acl)
		}
	}
	return acl
}

var _ ACL = (*RedisACL)(nil)

func (a *RedisACL) key(list model.ListID) string {
	return a.prefix + list.String()
}

// CanAccess checks membership with SISMEMBER.
func (a *RedisACL) CanAccess(ctx context.Context, actor model.ActorID, list model.ListID) (bool, error) {
	start := time.Now()
	defer func() {
		aclCheckDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	return a.client.SIsMember(ctx, a.key(list), actor.String()).Result()
}

func (a *RedisACL) Grant(ctx context.Context, list model.ListID, actor model.ActorID) error {
	return a.client.SAdd(ctx, a.key(list), actor.String()).Err()
}

func (a *RedisACL) Revoke(ctx context.Context, list model.ListID, actor model.ActorID) error {
	return a.client.SRem(ctx, a.key(list), actor.String()).Err()
}

// Close is a no-op; the client lifecycle is managed externally.
func (a *RedisACL) Close() {}
