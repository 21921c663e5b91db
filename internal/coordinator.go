package internal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/koopa0/system-design/rps-rooms/internal/events"
	"github.com/koopa0/system-design/rps-rooms/internal/stats"
)

// 系統設計問題：
//   一則訊息進來，如何在不阻塞、不互相干擾的前提下推進房間狀態？
//
// 處理流程：
//   連線 → 會話（SessionTable）→ 驗證 → 房間轉換（Room）→ 廣播（Broadcaster）
//
// 併發模型：
//   - 同一條連線的訊息由 readPump 依序處理
//   - 同一個房間的操作由 Room.Do 串行化，轉換與投遞在同一個臨界區
//   - 不同房間完全並行，只共用 RoomStore（本身併發安全）
//   - 「等待對手」只是房間狀態，不會有任何呼叫阻塞等待另一條連線
//
// 錯誤分類：
//   - 協定錯誤（格式錯誤、未知類型）與驗證錯誤：ERROR 只回給發起者，不改動狀態
//   - 競態（房間或會話在查詢後消失）：視為 not found，回 ERROR 或直接忽略，絕不 panic

// joinAttempts 房間在加入前被回收時的重試次數
const joinAttempts = 3

// RoomStore 的回收介面
type roomSweeper interface {
	Cleanup(ttl time.Duration) []string
}

// RoomLifecycleEvent 房間建立 / 移除事件
type RoomLifecycleEvent struct {
	RoomID string    `json:"roomId"`
	Reason string    `json:"reason,omitempty"`
	At     time.Time `json:"at"`
}

// RoundResolvedEvent 對局結算事件
type RoundResolvedEvent struct {
	RoomID string      `json:"roomId"`
	Result RoundResult `json:"result"`
	At     time.Time   `json:"at"`
}

// Coordinator 房間協調者
type Coordinator struct {
	rooms     RoomStore
	sessions  *SessionTable
	notifier  Broadcaster
	recorder  stats.Recorder
	publisher events.Publisher
	logger    *slog.Logger
}

// CoordinatorOption 協調者選項
type CoordinatorOption func(*Coordinator)

// WithBroadcaster 替換事件扇出實作
func WithBroadcaster(b Broadcaster) CoordinatorOption {
	return func(c *Coordinator) { c.notifier = b }
}

// WithRecorder 設定計數器後端
func WithRecorder(r stats.Recorder) CoordinatorOption {
	return func(c *Coordinator) { c.recorder = r }
}

// WithPublisher 設定領域事件發佈者
func WithPublisher(p events.Publisher) CoordinatorOption {
	return func(c *Coordinator) { c.publisher = p }
}

// NewCoordinator 創建協調者
func NewCoordinator(rooms RoomStore, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		rooms:     rooms,
		sessions:  NewSessionTable(),
		notifier:  NewNotifier(logger),
		recorder:  stats.NewMemory(),
		publisher: events.Nop{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect 新連線：建立會話並送出 WELCOME
func (c *Coordinator) Connect(ctx context.Context, conn Conn) string {
	clientID := c.sessions.Create(conn)
	c.notifier.Send(conn, Event{Type: TypeWelcome, Payload: WelcomePayload{ClientID: clientID}})
	c.incr(ctx, stats.ConnectionsOpened)

	c.logger.Debug("連線建立", "client_id", clientID)
	return clientID
}

// Disconnect 連線中斷：與主動離開走同一條清理路徑
func (c *Coordinator) Disconnect(ctx context.Context, conn Conn) {
	sess, ok := c.sessions.Lookup(conn)
	if !ok {
		return
	}

	c.leave(ctx, conn, sess)
	c.sessions.Remove(conn)
	c.incr(ctx, stats.ConnectionsClosed)

	c.logger.Debug("連線中斷", "client_id", sess.ClientID, "room_id", sess.RoomID)
}

// HandleMessage 解析並分派一則客戶端訊息
func (c *Coordinator) HandleMessage(ctx context.Context, conn Conn, data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reject(ctx, conn, ErrMalformedMessage)
		return
	}

	// 會話已被移除（斷線清理與最後一則訊息競爭），直接忽略
	if _, ok := c.sessions.Lookup(conn); !ok {
		return
	}

	var err error
	switch msg.Type {
	case TypeCreateRoom:
		_, err = c.CreateRoom(ctx, conn)
	case TypeJoinRoom:
		var p joinPayload
		decodePayload(msg.Payload, &p)
		err = c.JoinRoom(ctx, conn, p.RoomID)
	case TypeLeaveRoom:
		c.LeaveRoom(ctx, conn)
	case TypePlay:
		var p playPayload
		decodePayload(msg.Payload, &p)
		err = c.Play(ctx, conn, p.Choice)
	default:
		err = &UnknownTypeError{Type: msg.Type}
	}

	// ROOM_FULL 有專屬的訊息類型，已在 JoinRoom 內回覆
	if err != nil && !errors.Is(err, ErrRoomFull) {
		c.reject(ctx, conn, err)
	}
}

// CreateRoom 建立空房間並回覆 ROOM_CREATED，建立者不會自動加入
func (c *Coordinator) CreateRoom(ctx context.Context, conn Conn) (string, error) {
	room, err := c.rooms.Create()
	if err != nil {
		c.logger.Error("創建房間失敗", "error", err)
		return "", err
	}

	c.notifier.Send(conn, Event{Type: TypeRoomCreated, Payload: RoomRefPayload{RoomID: room.ID}})
	c.roomCreated(ctx, room.ID)

	return room.ID, nil
}

// JoinRoom 加入房間
//
// 流程：
//  1. 已在同一房間：冪等，回覆 JOINED 與目前狀態
//  2. 目標已滿：回覆 ROOM_FULL，原本的房間保持不變
//  3. 已在其他房間：先完整離開（與 LEAVE_ROOM 相同的清理）
//  4. 加入：JOINED 給加入者，ROOM_UPDATE 給全房，湊滿 2 人再加 READY
func (c *Coordinator) JoinRoom(ctx context.Context, conn Conn, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return ErrRoomIDRequired
	}

	sess, ok := c.sessions.Lookup(conn)
	if !ok {
		return nil
	}

	if sess.RoomID == roomID {
		if room, ok := c.rooms.Get(roomID); ok && room.HasPlayer(sess.ClientID) {
			room.Do(func() {
				c.notifier.Send(conn, joinedEvent(roomID, sess.ClientID))
				c.notifier.Send(conn, Event{Type: TypeRoomUpdate, Payload: room.State()})
			})
			return nil
		}
	}

	// 人數已滿時不做任何狀態改動
	if room, ok := c.rooms.Get(roomID); ok && room.GetPlayerCount() >= MaxPlayers {
		return c.roomFull(ctx, conn, roomID)
	}

	if sess.RoomID != "" {
		c.leave(ctx, conn, sess)
	}

	for range joinAttempts {
		room, created := c.rooms.Ensure(roomID)
		if created {
			c.roomCreated(ctx, roomID)
		}

		var err error
		room.Do(func() {
			var tr Transition
			tr, err = room.Join(sess.ClientID, conn)
			if err != nil {
				return
			}
			c.sessions.Attach(conn, roomID)
			c.notifier.Send(conn, joinedEvent(roomID, sess.ClientID))
			c.notifier.Broadcast(tr.Members, tr.Events...)
		})

		switch {
		case errors.Is(err, errRoomClosed):
			continue
		case errors.Is(err, ErrRoomFull):
			// 預先檢查後才被搶先湊滿，此時已離開原房間
			return c.roomFull(ctx, conn, roomID)
		case err != nil:
			return err
		}

		c.incr(ctx, stats.Joins)
		c.logger.Info("玩家加入房間", "room_id", roomID, "client_id", sess.ClientID)
		return nil
	}

	return ErrRoomNotFound
}

// LeaveRoom 離開房間，無論原本是否在房間內都回覆 LEFT
func (c *Coordinator) LeaveRoom(ctx context.Context, conn Conn) {
	sess, ok := c.sessions.Lookup(conn)
	if !ok {
		return
	}
	c.leave(ctx, conn, sess)
	c.notifier.Send(conn, Event{Type: TypeLeft, Payload: LeftPayload{}})
}

// Play 出拳
//
// 驗證順序：未加入房間 → 房間不存在 → 人數不足 → 出拳不合法 → 本局已出拳。
// 第二位玩家出拳時立即結算並廣播 ROUND_RESULT，接著清空並廣播 ROOM_UPDATE。
func (c *Coordinator) Play(ctx context.Context, conn Conn, choice string) error {
	sess, ok := c.sessions.Lookup(conn)
	if !ok || sess.RoomID == "" {
		return ErrNotInRoom
	}

	room, ok := c.rooms.Get(sess.RoomID)
	if !ok {
		return ErrRoomNotFound
	}

	var (
		tr  Transition
		err error
	)
	room.Do(func() {
		tr, err = room.Submit(sess.ClientID, choice)
		if err != nil {
			return
		}
		c.notifier.Broadcast(tr.Members, tr.Events...)
	})
	if err != nil {
		return err
	}

	c.incr(ctx, stats.Moves)

	if tr.Result != nil {
		c.incr(ctx, stats.RoundsResolved)
		if tr.Result.Draw {
			c.incr(ctx, stats.Draws)
		}
		c.publish(ctx, events.SubjectRoundResolved, RoundResolvedEvent{
			RoomID: room.ID,
			Result: *tr.Result,
			At:     time.Now(),
		})
		c.logger.Info("對局結算", "room_id", room.ID, "draw", tr.Result.Draw)
	}
	return nil
}

// Run 定期回收閒置的空房間，直到 ctx 結束
func (c *Coordinator) Run(ctx context.Context, ttl, interval time.Duration) error {
	if ttl <= 0 || interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Sweep(ctx, ttl)
		case <-ctx.Done():
			return nil
		}
	}
}

// Sweep 回收閒置超過 ttl 的空房間，回傳回收數量
func (c *Coordinator) Sweep(ctx context.Context, ttl time.Duration) int {
	sweeper, ok := c.rooms.(roomSweeper)
	if !ok {
		return 0
	}

	removed := sweeper.Cleanup(ttl)
	for _, roomID := range removed {
		c.roomDeleted(ctx, roomID, "expired")
	}
	if len(removed) > 0 {
		c.logger.Info("房間已過期清理", "count", len(removed))
	}
	return len(removed)
}

// SessionCount 目前連線數
func (c *Coordinator) SessionCount() int {
	return c.sessions.Len()
}

// Counters 計數器快照
func (c *Coordinator) Counters(ctx context.Context) (map[stats.Counter]int64, error) {
	return c.recorder.Snapshot(ctx)
}

// leave 從會話所在的房間移除，並在房間變空時回收
func (c *Coordinator) leave(ctx context.Context, conn Conn, sess Session) {
	if sess.RoomID == "" {
		return
	}
	c.sessions.Attach(conn, "")

	room, ok := c.rooms.Get(sess.RoomID)
	if !ok {
		return
	}

	room.Do(func() {
		tr, ok := room.Leave(sess.ClientID)
		if !ok {
			return
		}
		c.notifier.Broadcast(tr.Members, tr.Events...)
	})

	c.logger.Info("玩家離開房間", "room_id", sess.RoomID, "client_id", sess.ClientID)

	if c.rooms.DeleteIfEmpty(sess.RoomID) {
		c.roomDeleted(ctx, sess.RoomID, "empty")
	}
}

func (c *Coordinator) roomFull(ctx context.Context, conn Conn, roomID string) error {
	c.notifier.Send(conn, Event{Type: TypeRoomFull, Payload: RoomRefPayload{RoomID: roomID}})
	c.incr(ctx, stats.JoinsRejected)
	return ErrRoomFull
}

func (c *Coordinator) roomCreated(ctx context.Context, roomID string) {
	c.incr(ctx, stats.RoomsCreated)
	c.publish(ctx, events.SubjectRoomCreated, RoomLifecycleEvent{RoomID: roomID, At: time.Now()})
}

func (c *Coordinator) roomDeleted(ctx context.Context, roomID, reason string) {
	c.incr(ctx, stats.RoomsDeleted)
	c.publish(ctx, events.SubjectRoomDeleted, RoomLifecycleEvent{RoomID: roomID, Reason: reason, At: time.Now()})
}

func (c *Coordinator) reject(ctx context.Context, conn Conn, err error) {
	c.notifier.Send(conn, errorEvent(err))
	c.incr(ctx, stats.Errors)
	c.logger.Debug("請求被拒絕", "error", err)
}

func (c *Coordinator) incr(ctx context.Context, counter stats.Counter) {
	if err := c.recorder.Incr(ctx, counter); err != nil {
		c.logger.Warn("計數器寫入失敗", "counter", counter, "error", err)
	}
}

func (c *Coordinator) publish(ctx context.Context, subject string, v any) {
	if err := c.publisher.Publish(ctx, subject, v); err != nil {
		c.logger.Warn("事件發佈失敗", "subject", subject, "error", err)
	}
}

func joinedEvent(roomID, clientID string) Event {
	return Event{Type: TypeJoined, Payload: JoinedPayload{RoomID: roomID, ClientID: clientID}}
}

// decodePayload 寬鬆解析 payload：格式不符時保留零值，交給後續驗證回報
func decodePayload(raw json.RawMessage, v any) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, v)
}
