package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	recordKeyPrefix = "quota:"
	maxTxRetries    = 5
)

// RedisStore は送信記録を Redis に保持する Store です。
// 複数プロセスで上限を共有する場合に使います。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Reserve(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (int, bool, error) {
	rk := redisKey(key)
	var (
		used     int
		admitted bool
	)

	txf := func(tx *redis.Tx) error {
		stamps, err := loadTimestamps(ctx, tx, rk)
		if err != nil {
			return err
		}
		stamps = pruneTimestamps(stamps, now, window)

		if len(stamps) >= limit {
			used = len(stamps)
			admitted = false
			return nil
		}

		stamps = append(stamps, now)
		payload, err := json.Marshal(stamps)
		if err != nil {
			return fmt.Errorf("送信記録の生成に失敗しました: %w", err)
		}
		// WATCH したキーが他のクライアントに書き換えられていた場合、
		// この EXEC は redis.TxFailedErr で失敗し、外側でやり直します。
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, payload, window)
			return nil
		})
		if err != nil {
			return err
		}
		used = len(stamps)
		admitted = true
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, rk)
		if err == nil {
			return used, admitted, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return 0, false, err
	}
	return 0, false, fmt.Errorf("送信記録の更新が競合しました")
}

func (s *RedisStore) Count(ctx context.Context, key string, now time.Time, window time.Duration) (int, error) {
	stamps, err := loadTimestamps(ctx, s.rdb, redisKey(key))
	if err != nil {
		return 0, err
	}
	return len(pruneTimestamps(stamps, now, window)), nil
}

func redisKey(key string) string {
	return recordKeyPrefix + key
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func loadTimestamps(ctx context.Context, c redisGetter, key string) ([]time.Time, error) {
	payload, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("送信記録の取得に失敗しました: %w", err)
	}
	var stamps []time.Time
	if err := json.Unmarshal(payload, &stamps); err != nil {
		return nil, fmt.Errorf("送信記録の解析に失敗しました: %w", err)
	}
	return stamps, nil
}
