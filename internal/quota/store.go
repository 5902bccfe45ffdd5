package quota

import (
	"context"
	"sync"
	"time"
)

// Store は送信記録の保存先です。
type Store interface {
	// Reserve は窓内の送信回数を調べ、上限未満であれば1回分を追記します。
	// 読み取り・判定・追記は1つの不可分な操作として行います。
	// 戻り値 used は追記後（拒否時は現時点）の窓内送信回数です。
	Reserve(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (used int, ok bool, err error)
	// Count は窓内の送信回数を返します。
	Count(ctx context.Context, key string, now time.Time, window time.Duration) (int, error)
}

// MemoryStore はプロセス内メモリに送信記録を保持する Store です。
// 再起動で記録は消えます。複数プロセスで共有する場合は RedisStore を使います。
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]time.Time
}

// NewMemoryStore は空の MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]time.Time)}
}

func (s *MemoryStore) Reserve(_ context.Context, key string, now time.Time, window time.Duration, limit int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := pruneTimestamps(s.records[key], now, window)
	if len(stamps) >= limit {
		s.records[key] = stamps
		return len(stamps), false, nil
	}

	stamps = append(stamps, now)
	s.records[key] = stamps
	return len(stamps), true, nil
}

func (s *MemoryStore) Count(_ context.Context, key string, now time.Time, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamps := pruneTimestamps(s.records[key], now, window)
	if len(stamps) == 0 {
		delete(s.records, key)
		return 0, nil
	}
	s.records[key] = stamps
	return len(stamps), nil
}

// pruneTimestamps は窓の外に出た記録を取り除いた新しいスライスを返します。
func pruneTimestamps(stamps []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	kept := make([]time.Time, 0, len(stamps))
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
