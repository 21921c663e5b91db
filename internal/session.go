package internal

import (
	"sync"

	"github.com/google/uuid"
)

// Session 每條連線一個，clientID 在連線存活期間不變
type Session struct {
	ClientID string
	RoomID   string // 空字串表示未加入房間
}

// SessionTable 連線 → 會話
//
// 以連線本身為鍵：連線是唯一在整個生命週期內都保證唯一且存活的值。
type SessionTable struct {
	sessions map[Conn]*Session
	mu       sync.RWMutex
}

// NewSessionTable 創建會話表
func NewSessionTable() *SessionTable {
	return &SessionTable{
		sessions: make(map[Conn]*Session),
	}
}

// Create 為新連線建立會話並產生 clientID
func (t *SessionTable) Create(conn Conn) string {
	clientID := uuid.NewString()

	t.mu.Lock()
	t.sessions[conn] = &Session{ClientID: clientID}
	t.mu.Unlock()

	return clientID
}

// Attach 更新會話所在房間（空字串表示離開）
func (t *SessionTable) Attach(conn Conn, roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, exists := t.sessions[conn]
	if !exists {
		return false
	}
	s.RoomID = roomID
	return true
}

// Lookup 查詢會話（回傳副本）
func (t *SessionTable) Lookup(conn Conn) (Session, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, exists := t.sessions[conn]
	if !exists {
		return Session{}, false
	}
	return *s, true
}

// Remove 刪除會話
func (t *SessionTable) Remove(conn Conn) (Session, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, exists := t.sessions[conn]
	if !exists {
		return Session{}, false
	}
	delete(t.sessions, conn)
	return *s, true
}

// Len 會話數量
func (t *SessionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
