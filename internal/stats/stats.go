// Package stats 記錄服務的運營計數器。
//
// 兩種後端：
//   - Memory：單機、行程內，重啟歸零
//   - Redis：HINCRBY 到同一個 hash，重啟後保留、多個行程可共用
//
// 計數器只用於觀察，任何寫入失敗都不應影響遊戲流程。
package stats

import (
	"context"
	"sync"
)

// Counter 計數器名稱
type Counter string

const (
	ConnectionsOpened Counter = "connections_opened"
	ConnectionsClosed Counter = "connections_closed"
	RoomsCreated      Counter = "rooms_created"
	RoomsDeleted      Counter = "rooms_deleted"
	Joins             Counter = "joins"
	JoinsRejected     Counter = "joins_rejected"
	Moves             Counter = "moves"
	RoundsResolved    Counter = "rounds_resolved"
	Draws             Counter = "draws"
	Errors            Counter = "errors"
)

// Recorder 計數器後端
type Recorder interface {
	Incr(ctx context.Context, c Counter) error
	Snapshot(ctx context.Context) (map[Counter]int64, error)
	Close() error
}

// Memory 行程內計數器
type Memory struct {
	counters map[Counter]int64
	mu       sync.Mutex
}

// NewMemory 創建行程內計數器
func NewMemory() *Memory {
	return &Memory{counters: make(map[Counter]int64)}
}

func (m *Memory) Incr(_ context.Context, c Counter) error {
	m.mu.Lock()
	m.counters[c]++
	m.mu.Unlock()
	return nil
}

func (m *Memory) Snapshot(_ context.Context) (map[Counter]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[Counter]int64, len(m.counters))
	for c, v := range m.counters {
		out[c] = v
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
