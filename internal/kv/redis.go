package kv

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyEscaper keeps ':' and glob metacharacters out of key components so a
// partition can be matched with SCAN without ambiguity.
var keyEscaper = strings.NewReplacer(
	"%", "%25",
	":", "%3A",
	"*", "%2A",
	"?", "%3F",
	"[", "%5B",
	"]", "%5D",
	`\`, "%5C",
)

// Redis implements Table on plain string keys "<name>:<partition>:<sort>".
// Expiry is native (SET PX), conditional writes use SET XX and deletes GETDEL.
// SET XX clears any expiry on the overwritten item.
type Redis struct {
	client redis.UniversalClient
	name   string
}

func NewRedis(client redis.UniversalClient, name string) *Redis {
	return &Redis{client: client, name: name}
}

func (r *Redis) redisKey(k Key) string {
	return r.name + ":" + keyEscaper.Replace(k.Partition) + ":" + keyEscaper.Replace(k.Sort)
}

func (r *Redis) Get(ctx context.Context, key Key) ([]byte, error) {
	v, err := r.client.Get(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *Redis) BatchGet(ctx context.Context, keys []Key) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	rk := make([]string, len(keys))
	for i, k := range keys {
		rk[i] = r.redisKey(k)
	}
	return r.mget(ctx, rk)
}

func (r *Redis) mget(ctx context.Context, keys []string) ([][]byte, error) {
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			out = append(out, []byte(s))
		}
	}
	return out, nil
}

func (r *Redis) Put(ctx context.Context, key Key, value []byte, opts ...PutOption) error {
	o := applyPutOptions(opts)
	var ttl time.Duration
	if !o.expiresAt.IsZero() {
		ttl = time.Until(o.expiresAt)
		if ttl <= 0 {
			return r.client.Del(ctx, r.redisKey(key)).Err()
		}
	}
	return r.client.Set(ctx, r.redisKey(key), value, ttl).Err()
}

func (r *Redis) PutIfExists(ctx context.Context, key Key, value []byte) error {
	_, err := r.client.SetArgs(ctx, r.redisKey(key), value, redis.SetArgs{Mode: "XX"}).Result()
	if errors.Is(err, redis.Nil) {
		return ErrConditionFailed
	}
	return err
}

func (r *Redis) Delete(ctx context.Context, key Key) ([]byte, error) {
	v, err := r.client.GetDel(ctx, r.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *Redis) Query(ctx context.Context, partition string) ([][]byte, error) {
	return r.scanMatch(ctx, r.name+":"+keyEscaper.Replace(partition)+":*")
}

func (r *Redis) Scan(ctx context.Context) ([][]byte, error) {
	return r.scanMatch(ctx, r.name+":*")
}

func (r *Redis) scanMatch(ctx context.Context, pattern string) ([][]byte, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return [][]byte{}, nil
	}
	sort.Strings(keys)
	return r.mget(ctx, keys)
}
