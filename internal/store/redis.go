package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// defaultMaxAttempts bounds the exponential-backoff retry before a
// transient backing-store failure surfaces to the caller as
// BACKING_STORE_UNAVAILABLE.
const defaultMaxAttempts = 4

// RedisStore implements Store over a single go-redis client. Every
// operation except Subscribe and Close is retried with bounded exponential
// backoff (internal/store's Retry helper) before returning an error.
type RedisStore struct {
	client      *redis.Client
	maxAttempts int
}

// NewRedisStore builds a RedisStore from a ready-to-use go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, maxAttempts: defaultMaxAttempts}
}

// retry runs fn with bounded exponential backoff. The backoff sleep
// honors ctx: once ctx is cancelled, retry stops and returns ctx.Err().
func (s *RedisStore) retry(ctx context.Context, fn func() error) error {
	return Retry(ctx, s.maxAttempts, fn)
}

// Dial builds a go-redis client and wraps it as a RedisStore, pinging
// once to fail fast on misconfiguration.
func Dial(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: connect to redis at %s: %w", addr, err)
	}
	return NewRedisStore(client), nil
}

// Client exposes the underlying go-redis client for callers that need
// Redis-specific operations outside the Store contract.
func (s *RedisStore) Client() *redis.Client { return s.client }

func (s *RedisStore) Close() error { return s.client.Close() }

func (s *RedisStore) SetDoc(ctx context.Context, key string, value []byte) error {
	return s.retry(ctx, func() error {
		return s.client.Set(ctx, key, value, 0).Err()
	})
}

func (s *RedisStore) GetDoc(ctx context.Context, key string) ([]byte, bool, error) {
	var b []byte
	var found bool
	err := s.retry(ctx, func() error {
		var err error
		b, err = s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			b, found, err = nil, false, nil
			return nil
		}
		found = err == nil
		return err
	})
	return b, found, err
}

func (s *RedisStore) DeleteDoc(ctx context.Context, key string) error {
	return s.retry(ctx, func() error {
		return s.client.Del(ctx, key).Err()
	})
}

func (s *RedisStore) PushHead(ctx context.Context, key, value string) error {
	return s.retry(ctx, func() error {
		return s.client.LPush(ctx, key, value).Err()
	})
}

func (s *RedisStore) PushTail(ctx context.Context, key, value string) error {
	return s.retry(ctx, func() error {
		return s.client.RPush(ctx, key, value).Err()
	})
}

func (s *RedisStore) PopHead(ctx context.Context, key string) (string, bool, error) {
	var v string
	var found bool
	err := s.retry(ctx, func() error {
		var err error
		v, err = s.client.LPop(ctx, key).Result()
		if err == redis.Nil {
			v, found, err = "", false, nil
			return nil
		}
		found = err == nil
		return err
	})
	return v, found, err
}

func (s *RedisStore) ListLen(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.retry(ctx, func() error {
		var err error
		n, err = s.client.LLen(ctx, key).Result()
		return err
	})
	return n, err
}

func (s *RedisStore) ListRemove(ctx context.Context, key, value string) error {
	return s.retry(ctx, func() error {
		return s.client.LRem(ctx, key, 0, value).Err()
	})
}

func (s *RedisStore) DeleteKey(ctx context.Context, key string) error {
	return s.retry(ctx, func() error {
		return s.client.Del(ctx, key).Err()
	})
}

func (s *RedisStore) MapSet(ctx context.Context, key, field string, value []byte) error {
	return s.retry(ctx, func() error {
		return s.client.HSet(ctx, key, field, value).Err()
	})
}

func (s *RedisStore) MapGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	var b []byte
	var found bool
	err := s.retry(ctx, func() error {
		var err error
		b, err = s.client.HGet(ctx, key, field).Bytes()
		if err == redis.Nil {
			b, found, err = nil, false, nil
			return nil
		}
		found = err == nil
		return err
	})
	return b, found, err
}

func (s *RedisStore) MapDelete(ctx context.Context, key, field string) error {
	return s.retry(ctx, func() error {
		return s.client.HDel(ctx, key, field).Err()
	})
}

func (s *RedisStore) MapGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	var out map[string][]byte
	err := s.retry(ctx, func() error {
		m, err := s.client.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		out = make(map[string][]byte, len(m))
		for k, v := range m {
			out[k] = []byte(v)
		}
		return nil
	})
	return out, err
}

func (s *RedisStore) SetAdd(ctx context.Context, key, member string) error {
	return s.retry(ctx, func() error {
		return s.client.SAdd(ctx, key, member).Err()
	})
}

func (s *RedisStore) SetRemove(ctx context.Context, key, member string) error {
	return s.retry(ctx, func() error {
		return s.client.SRem(ctx, key, member).Err()
	})
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := s.retry(ctx, func() error {
		var err error
		out, err = s.client.SMembers(ctx, key).Result()
		return err
	})
	return out, err
}

func (s *RedisStore) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := s.retry(ctx, func() error {
		out = nil
		iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
		for iter.Next(ctx) {
			out = append(out, iter.Val())
		}
		return iter.Err()
	})
	return out, err
}

func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	var n int64
	err := s.retry(ctx, func() error {
		var err error
		n, err = s.client.Publish(ctx, channel, payload).Result()
		return err
	})
	return n, err
}

func (s *RedisStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		return nil, err
	}
	out := make(chan []byte, 64)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return &redisSubscription{ps: ps, ch: out}, nil
}

type redisSubscription struct {
	ps *redis.PubSub
	ch chan []byte
}

func (s *redisSubscription) Messages() <-chan []byte { return s.ch }
func (s *redisSubscription) Close() error            { return s.ps.Close() }

// takeHeadScript atomically pops the oldest id from pending and, if one
// was popped, writes its claim entry, the claim protocol's single
// atomic primitive (KEYS[1]=pending, KEYS[2]=claims, ARGV[1]=claim JSON).
var takeHeadScript = redis.NewScript(`
local id = redis.call('LPOP', KEYS[1])
if not id then
  return false
end
redis.call('HSET', KEYS[2], id, ARGV[1])
return id
`)

func (s *RedisStore) TakeHead(ctx context.Context, pendingKey, claimsKey string, claimValue []byte) (string, bool, error) {
	var id string
	var ok bool
	err := s.retry(ctx, func() error {
		res, err := takeHeadScript.Run(ctx, s.client, []string{pendingKey, claimsKey}, string(claimValue)).Result()
		if err != nil {
			if err == redis.Nil {
				id, ok, err = "", false, nil
				return nil
			}
			return err
		}
		id, ok = res.(string)
		return nil
	})
	return id, ok, err
}

// reapClaimScript conditionally reverts an expired claim: it re-reads the
// claim entry's deadline and only reaps if it is still <= now, so a
// claim completed between the reaper's scan and this call is left alone.
var reapClaimScript = redis.NewScript(`
local raw = redis.call('HGET', KEYS[1], ARGV[1])
if not raw then
  return 0
end
local entry = cjson.decode(raw)
if tonumber(entry.deadline) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('RPUSH', KEYS[2], ARGV[1])
return 1
`)

func (s *RedisStore) ReapClaim(ctx context.Context, claimsKey, field, pendingKey string, nowMs int64) (bool, error) {
	var reaped bool
	err := s.retry(ctx, func() error {
		res, err := reapClaimScript.Run(ctx, s.client, []string{claimsKey, pendingKey}, field, nowMs).Result()
		if err != nil {
			return err
		}
		n, _ := res.(int64)
		reaped = n == 1
		return nil
	})
	return reaped, err
}
