package auth

import (
	"context"
	"sync"
	"time"

	"github.com/garyburd/redigo/redis"
)

// Revocations remembers signed-out token ids until they expire.
type Revocations interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type MemoryRevocations struct {
	mu  sync.Mutex
	ids map[string]time.Time
	now func() time.Time
}

func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{ids: map[string]time.Time{}, now: time.Now}
}

func (m *MemoryRevocations) Revoke(_ context.Context, jti string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.ids {
		if !exp.After(now) {
			delete(m.ids, id)
		}
	}
	if until.After(now) {
		m.ids[jti] = until
	}
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.ids[jti]
	return ok && exp.After(m.now()), nil
}

// RedisRevocations shares revoked ids between gateway replicas.
type RedisRevocations struct {
	pool   *redis.Pool
	prefix string
}

func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			return redis.Dial("tcp", addr,
				redis.DialConnectTimeout(3*time.Second),
				redis.DialReadTimeout(2*time.Second),
				redis.DialWriteTimeout(2*time.Second))
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

func NewRedisRevocations(pool *redis.Pool) *RedisRevocations {
	return &RedisRevocations{pool: pool, prefix: "quiz:revoked:"}
}

func (r *RedisRevocations) Revoke(_ context.Context, jti string, until time.Time) error {
	secs := int64(time.Until(until).Seconds()) + 1
	if secs <= 1 {
		return nil
	}
	c := r.pool.Get()
	defer c.Close()
	_, err := c.Do("SET", r.prefix+jti, 1, "EX", secs)
	return err
}

func (r *RedisRevocations) IsRevoked(_ context.Context, jti string) (bool, error) {
	c := r.pool.Get()
	defer c.Close()
	return redis.Bool(c.Do("EXISTS", r.prefix+jti))
}

// Ping checks connectivity at startup.
func (r *RedisRevocations) Ping() error {
	c := r.pool.Get()
	defer c.Close()
	_, err := c.Do("PING")
	return err
}
