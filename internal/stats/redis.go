package stats

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultKey Redis hash 的預設 key
const DefaultKey = "rps:stats"

// Redis 以 Redis hash 保存計數器
//
//	HINCRBY rps:stats rounds_resolved 1
//	HGETALL rps:stats
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis 以既有的客戶端創建
func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = DefaultKey
	}
	return &Redis{client: client, key: key}
}

// DialRedis 建立連線並確認可用
func DialRedis(ctx context.Context, addr, password string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  100 * time.Millisecond,
		WriteTimeout: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	return NewRedis(client, DefaultKey), nil
}

func (r *Redis) Incr(ctx context.Context, c Counter) error {
	if err := r.client.HIncrBy(ctx, r.key, string(c), 1).Err(); err != nil {
		return errors.Wrapf(err, "hincrby %s %s", r.key, c)
	}
	return nil
}

func (r *Redis) Snapshot(ctx context.Context) (map[Counter]int64, error) {
	raw, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "hgetall %s", r.key)
	}

	out := make(map[Counter]int64, len(raw))
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parse counter %s", field)
		}
		out[Counter(field)] = n
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
