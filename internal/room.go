package internal

import (
	"sync"
	"time"
)

// 系統設計問題：
//   兩位玩家同時出拳，如何保證每局每人只算一次、結果只判定一次？
//
// 核心挑戰：
//   1. 容量控制：房間最多 2 人，併發加入時也不能超過
//   2. 一局一次：同一局內重複出拳必須拒絕（不可改拳、不可重複計數）
//   3. 事件順序：同一房間的事件（CHOICE_RECEIVED → ROUND_RESULT → ROOM_UPDATE）不能交錯
//   4. 斷線清理：任何時刻斷線都走與離開相同的路徑
//
// 設計方案：
//   ✅ 顯式階段（Phase）- 由玩家數與待結算出拳數推導
//   ✅ opMu - 串行化「狀態轉換 + 事件投遞」
//   ✅ mu - 保護狀態本身，供查詢與回收使用
//   ✅ closed 標記 - 回收後的房間拒絕加入，呼叫端重新取得

// MaxPlayers 每個房間的人數上限
const MaxPlayers = 2

// Phase 房間階段
//
//	empty → waiting → ready → awaiting_second
//	          ↑         ↑__________↓ (結算)
//	          └── 有人離開 ───────────┘
type Phase string

const (
	PhaseEmpty          Phase = "empty"           // 無人（不可被定址，等待回收）
	PhaseWaiting        Phase = "waiting"         // 1 人，等待對手
	PhaseReady          Phase = "ready"           // 2 人，尚無人出拳
	PhaseAwaitingSecond Phase = "awaiting_second" // 2 人，已有 1 人出拳
)

// PendingPolicy 對手離開後，留下玩家已出的拳如何處理
type PendingPolicy string

const (
	// PendingKeep 保留，下一位對手出拳時直接結算
	PendingKeep PendingPolicy = "keep"
	// PendingClearOnPair 保留到重新湊滿 2 人時才清除
	PendingClearOnPair PendingPolicy = "clear-on-pair"
	// PendingClearOnLeave 人數低於 2 時立即清除
	PendingClearOnLeave PendingPolicy = "clear-on-leave"
)

// Valid 是否為已知策略
func (p PendingPolicy) Valid() bool {
	switch p {
	case PendingKeep, PendingClearOnPair, PendingClearOnLeave:
		return true
	}
	return false
}

// Player 房間內的玩家
type Player struct {
	ID       string    `json:"clientId"`
	JoinedAt time.Time `json:"joinedAt"`
	conn     Conn
}

// Transition 一次狀態轉換的結果
//
// Events 依序投遞給 Members（轉換後仍在房間內的成員）。
type Transition struct {
	Phase   Phase
	Events  []Event
	Members []Conn
	Result  *RoundResult // 只有結算時才有值
}

// Room 猜拳房間
//
// 系統設計考量：
//
//  1. 雙層鎖：
//     - opMu：協調者在一次操作期間持有，轉換與投遞不會與同房間的其他操作交錯
//     - mu：保護 players / pending，查詢（HTTP API）與回收只需要 mu
//     - 鎖順序：opMu → Registry.mu → mu，mu 內不再取其他鎖
//
//  2. 加入順序：
//     players 使用 slice，保留加入順序，結算時先加入者固定為 A 方
//
//  3. 資源回收：
//     空房間由 Registry 回收；回收時標記 closed，避免已取得引用的呼叫端把玩家加進孤兒房間
type Room struct {
	ID        string
	CreatedAt time.Time

	policy PendingPolicy

	opMu       sync.Mutex
	mu         sync.RWMutex
	players    []*Player
	pending    map[string]Move
	closed     bool
	lastActive time.Time
}

// NewRoom 創建空房間
func NewRoom(id string, policy PendingPolicy) *Room {
	if !policy.Valid() {
		policy = PendingClearOnPair
	}
	now := time.Now()
	return &Room{
		ID:         id,
		CreatedAt:  now,
		policy:     policy,
		pending:    make(map[string]Move),
		lastActive: now,
	}
}

// Do 在持有操作鎖的情況下執行 fn
func (r *Room) Do(fn func()) {
	r.opMu.Lock()
	defer r.opMu.Unlock()
	fn()
}

// Join 加入玩家
//
// 已在房間內的玩家再次加入視為冪等，不產生事件。
// 湊滿 2 人時會額外產生 READY 事件。
func (r *Room) Join(clientID string, conn Conn) (Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Transition{}, errRoomClosed
	}

	if r.indexOf(clientID) >= 0 {
		return Transition{Phase: r.phase(), Members: r.members()}, nil
	}

	// 容量檢查
	if len(r.players) >= MaxPlayers {
		return Transition{}, ErrRoomFull
	}

	r.players = append(r.players, &Player{
		ID:       clientID,
		JoinedAt: time.Now(),
		conn:     conn,
	})
	r.lastActive = time.Now()

	// 重新湊滿 2 人：依策略丟棄上一位對手離開前留下的出拳
	if len(r.players) == MaxPlayers && r.policy == PendingClearOnPair {
		clear(r.pending)
	}

	events := []Event{{Type: TypeRoomUpdate, Payload: r.state()}}
	if len(r.players) == MaxPlayers {
		events = append(events, Event{
			Type:    TypeReady,
			Payload: MessagePayload{Message: readyMessage},
		})
	}

	return Transition{
		Phase:   r.phase(),
		Events:  events,
		Members: r.members(),
	}, nil
}

// Leave 移除玩家
//
// 剩下的成員會收到 ROOM_UPDATE 與 OPPONENT_LEFT。
// 不在房間內的玩家回傳 ok=false。
func (r *Room) Leave(clientID string) (Transition, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(clientID)
	if i < 0 {
		return Transition{Phase: r.phase()}, false
	}

	r.players = append(r.players[:i], r.players[i+1:]...)
	delete(r.pending, clientID)
	r.lastActive = time.Now()

	if len(r.players) < MaxPlayers && r.policy == PendingClearOnLeave {
		clear(r.pending)
	}

	tr := Transition{Phase: r.phase(), Members: r.members()}
	if len(r.players) > 0 {
		tr.Events = []Event{
			{Type: TypeRoomUpdate, Payload: r.state()},
			{Type: TypeOpponentLeft, Payload: MessagePayload{Message: opponentLeftMessage}},
		}
	}
	return tr, true
}

// Submit 記錄出拳，第二位玩家出拳時立即結算
//
// 驗證順序：人數 → 出拳合法性 → 本局是否已出拳。
// 任何驗證失敗都不改動房間狀態。
func (r *Room) Submit(clientID string, choice string) (Transition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return Transition{}, ErrRoomNotFound
	}
	if len(r.players) != MaxPlayers {
		return Transition{}, ErrNeedTwoPlayers
	}
	if r.indexOf(clientID) < 0 {
		return Transition{}, ErrNotInRoom
	}

	move, ok := ParseMove(choice)
	if !ok {
		return Transition{}, ErrInvalidChoice
	}

	if _, played := r.pending[clientID]; played {
		return Transition{}, ErrAlreadyPlayed
	}

	r.pending[clientID] = move
	r.lastActive = time.Now()

	tr := Transition{
		Members: r.members(),
		Events: []Event{{
			Type:    TypeChoiceReceived,
			Payload: ChoiceReceivedPayload{ChoicesCount: len(r.pending)},
		}},
	}

	if len(r.pending) == MaxPlayers {
		result := r.resolve()
		clear(r.pending)
		tr.Result = &result
		tr.Events = append(tr.Events,
			Event{Type: TypeRoundResult, Payload: result},
			Event{Type: TypeRoomUpdate, Payload: r.state()},
		)
	}

	tr.Phase = r.phase()
	return tr, nil
}

// resolve 以加入順序（先加入者為 A）結算（需要持有鎖）
func (r *Room) resolve() RoundResult {
	a, b := r.players[0].ID, r.players[1].ID
	moveA, moveB := r.pending[a], r.pending[b]

	result := RoundResult{
		Choices: map[string]Move{a: moveA, b: moveB},
	}

	switch Resolve(moveA, moveB) {
	case AWins:
		result.WinnerID = &a
	case BWins:
		result.WinnerID = &b
	default:
		result.Draw = true
	}
	return result
}

// State 獲取房間快照
func (r *Room) State() RoomState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state()
}

// Phase 獲取目前階段
func (r *Room) Phase() Phase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase()
}

// Members 獲取目前所有成員的連線
func (r *Room) Members() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.members()
}

// HasPlayer 玩家是否在房間內
func (r *Room) HasPlayer(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(clientID) >= 0
}

// GetPlayerCount 獲取玩家數量
func (r *Room) GetPlayerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.players)
}

// IsExpired 空房間閒置超過 ttl 視為過期；有人的房間永不過期
func (r *Room) IsExpired(ttl time.Duration, now time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return true
	}
	return len(r.players) == 0 && now.Sub(r.lastActive) > ttl
}

// closeIfEmpty 無人時標記為已關閉（由 Registry 在持有自身鎖時呼叫）
func (r *Room) closeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.players) > 0 {
		return false
	}
	r.closed = true
	return true
}

func (r *Room) state() RoomState {
	ids := make([]string, len(r.players))
	for i, p := range r.players {
		ids[i] = p.ID
	}
	return RoomState{
		RoomID:       r.ID,
		PlayerCount:  len(r.players),
		Players:      ids,
		ChoicesCount: len(r.pending),
		Phase:        r.phase(),
	}
}

func (r *Room) phase() Phase {
	switch {
	case r.closed || len(r.players) == 0:
		return PhaseEmpty
	case len(r.players) == 1:
		return PhaseWaiting
	case len(r.pending) == 0:
		return PhaseReady
	default:
		return PhaseAwaitingSecond
	}
}

func (r *Room) members() []Conn {
	conns := make([]Conn, 0, len(r.players))
	for _, p := range r.players {
		if p.conn != nil {
			conns = append(conns, p.conn)
		}
	}
	return conns
}

func (r *Room) indexOf(clientID string) int {
	for i, p := range r.players {
		if p.ID == clientID {
			return i
		}
	}
	return -1
}
