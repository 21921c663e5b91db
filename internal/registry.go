package internal

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"
)

// RoomStore 房間倉庫，協調者只依賴這個介面
type RoomStore interface {
	// Create 以新產生的 ID 建立空房間
	Create() (*Room, error)
	// Ensure 取得房間，不存在時原子地建立（created 表示本次新建）
	Ensure(roomID string) (room *Room, created bool)
	// Get 查詢房間，不存在是正常結果
	Get(roomID string) (*Room, bool)
	// DeleteIfEmpty 房間無人時移除，回傳是否移除
	DeleteIfEmpty(roomID string) bool
}

const (
	roomIDLength   = 6
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	createAttempts = 8
)

// Registry 房間註冊表
type Registry struct {
	rooms  map[string]*Room // roomID -> Room
	policy PendingPolicy
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewRegistry 創建房間註冊表
func NewRegistry(logger *slog.Logger, policy PendingPolicy) *Registry {
	if !policy.Valid() {
		policy = PendingClearOnPair
	}
	return &Registry{
		rooms:  make(map[string]*Room),
		policy: policy,
		logger: logger,
	}
}

// Create 創建房間
//
// 6 碼房間 ID 的空間約 21 億，碰撞時重新產生。
func (reg *Registry) Create() (*Room, error) {
	for range createAttempts {
		roomID, err := generateRoomID()
		if err != nil {
			return nil, fmt.Errorf("產生房間 ID 失敗: %w", err)
		}

		reg.mu.Lock()
		if _, exists := reg.rooms[roomID]; exists {
			reg.mu.Unlock()
			continue
		}
		room := NewRoom(roomID, reg.policy)
		reg.rooms[roomID] = room
		reg.mu.Unlock()

		reg.logger.Info("房間已創建", "room_id", roomID)
		return room, nil
	}
	return nil, fmt.Errorf("房間 ID 連續碰撞 %d 次", createAttempts)
}

// Ensure 取得或建立房間
func (reg *Registry) Ensure(roomID string) (*Room, bool) {
	reg.mu.RLock()
	room, exists := reg.rooms[roomID]
	reg.mu.RUnlock()
	if exists {
		return room, false
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()

	// 雙重檢查：取得寫鎖前可能已被其他 goroutine 建立
	if room, exists := reg.rooms[roomID]; exists {
		return room, false
	}
	room = NewRoom(roomID, reg.policy)
	reg.rooms[roomID] = room

	reg.logger.Info("房間已創建", "room_id", roomID, "on_join", true)
	return room, true
}

// Get 獲取房間
func (reg *Registry) Get(roomID string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, exists := reg.rooms[roomID]
	return room, exists
}

// DeleteIfEmpty 移除空房間
//
// 每次有玩家離開後都必須呼叫，否則空房間會一直留在記憶體中。
func (reg *Registry) DeleteIfEmpty(roomID string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	room, exists := reg.rooms[roomID]
	if !exists {
		return false
	}
	if !room.closeIfEmpty() {
		return false
	}

	delete(reg.rooms, roomID)
	reg.logger.Info("房間已移除", "room_id", roomID)
	return true
}

// Cleanup 移除閒置超過 ttl 的空房間，回傳被移除的房間 ID
//
// CREATE_ROOM 建立後從未有人加入的房間只能靠這裡回收。
func (reg *Registry) Cleanup(ttl time.Duration) []string {
	now := time.Now()

	reg.mu.RLock()
	var candidates []string
	for roomID, room := range reg.rooms {
		if room.IsExpired(ttl, now) {
			candidates = append(candidates, roomID)
		}
	}
	reg.mu.RUnlock()

	removed := make([]string, 0, len(candidates))
	for _, roomID := range candidates {
		// 掃描與移除之間可能有人加入，DeleteIfEmpty 會再檢查一次
		if reg.DeleteIfEmpty(roomID) {
			removed = append(removed, roomID)
		}
	}
	return removed
}

// ListRooms 列出房間（依建立時間排序，分頁）
func (reg *Registry) ListRooms(phase Phase, page, limit int) ([]RoomState, int) {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].ID < rooms[j].ID
		}
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})

	var filtered []RoomState
	for _, room := range rooms {
		state := room.State()
		if phase != "" && state.Phase != phase {
			continue
		}
		filtered = append(filtered, state)
	}

	total := len(filtered)

	// 分頁
	start := (page - 1) * limit
	end := start + limit
	if start >= total {
		return []RoomState{}, total
	}
	if end > total {
		end = total
	}

	return filtered[start:end], total
}

// Len 房間數量
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// Stats 獲取統計資訊
func (reg *Registry) Stats() map[string]any {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		rooms = append(rooms, room)
	}
	reg.mu.RUnlock()

	phaseCount := make(map[Phase]int)
	totalPlayers := 0
	for _, room := range rooms {
		state := room.State()
		phaseCount[state.Phase]++
		totalPlayers += state.PlayerCount
	}

	return map[string]any{
		"total_rooms":   len(rooms),
		"total_players": totalPlayers,
		"by_phase":      phaseCount,
	}
}

// generateRoomID 生成簡短的房間 ID（如 "K3X9QA"）
func generateRoomID() (string, error) {
	var sb strings.Builder
	sb.Grow(roomIDLength)
	base := big.NewInt(int64(len(roomIDAlphabet)))
	for range roomIDLength {
		n, err := rand.Int(rand.Reader, base)
		if err != nil {
			return "", err
		}
		sb.WriteByte(roomIDAlphabet[n.Int64()])
	}
	return sb.String(), nil
}
