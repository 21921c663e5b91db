package internal

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// 系統設計問題：
//   如何讓協調者只看到「送出訊息」與「斷線通知」兩個原語？
//
// 設計方案：
//   ✅ 每條連線兩個 goroutine：readPump 依序處理訊息，writePump 獨佔寫入
//   ✅ 緩衝 channel - Send 永不阻塞，滿了就略過（慢客戶端不拖累整個房間）
//   ✅ Ping/Pong 心跳 - 檢測死連接（54s/60s）
//   ✅ readPump 結束即斷線 - 一律呼叫 Coordinator.Disconnect

const (
	// 寫入逾時
	writeWait = 10 * time.Second

	// 等待 Pong 的時間
	pongWait = 60 * time.Second

	// Ping 間隔，必須小於 pongWait
	pingPeriod = (pongWait * 9) / 10

	// 每條連線的送出緩衝
	sendBufferSize = 256

	// DefaultMaxMessageSize 單則訊息上限（位元組）
	DefaultMaxMessageSize = 4096
)

var (
	errConnectionClosed = errors.New("connection closed")
	errSendBufferFull   = errors.New("send buffer full")
)

// HubOptions WebSocket Hub 選項
type HubOptions struct {
	// AllowedOrigins 允許的 Origin，空值表示不檢查
	AllowedOrigins []string
	// MaxMessageSize 單則訊息上限，<= 0 使用預設值
	MaxMessageSize int64
}

// WebSocketHub WebSocket 連接中心
//
// 只負責連線的生命週期；房間成員關係完全由 Coordinator 管理。
type WebSocketHub struct {
	coordinator    *Coordinator
	logger         *slog.Logger
	upgrader       websocket.Upgrader
	maxMessageSize int64
	connections    map[*Connection]struct{}
	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
}

// Connection WebSocket 連接，實作 Conn
type Connection struct {
	ClientID string
	Conn     *websocket.Conn
	LastPing time.Time

	hub    *WebSocketHub
	send   chan []byte
	mu     sync.Mutex
	closed bool
}

// NewWebSocketHub 創建 WebSocket Hub
func NewWebSocketHub(coordinator *Coordinator, logger *slog.Logger, opts HubOptions) *WebSocketHub {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}

	allowed := make(map[string]struct{}, len(opts.AllowedOrigins))
	for _, origin := range opts.AllowedOrigins {
		allowed[origin] = struct{}{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketHub{
		coordinator: coordinator,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					// 非瀏覽器客戶端
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		maxMessageSize: opts.MaxMessageSize,
		connections:    make(map[*Connection]struct{}),
		ctx:            ctx,
		cancel:         cancel,
	}
}

// ServeWS 處理 WebSocket 連接
func (hub *WebSocketHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	if hub.ctx.Err() != nil {
		http.Error(w, "服務器關閉中", http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		Conn:     conn,
		LastPing: time.Now(),
		hub:      hub,
		send:     make(chan []byte, sendBufferSize),
	}

	hub.register(connection)

	// WELCOME 先進入緩衝，writePump 啟動後送出
	connection.ClientID = hub.coordinator.Connect(hub.ctx, connection)

	go connection.writePump()
	go connection.readPump()

	hub.logger.Info("WebSocket 連接建立",
		"client_id", connection.ClientID,
		"remote_addr", r.RemoteAddr)
}

// register 註冊連接
func (hub *WebSocketHub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.connections[conn] = struct{}{}
}

// unregister 取消註冊連接並關閉送出通道
func (hub *WebSocketHub) unregister(conn *Connection) {
	hub.mu.Lock()
	delete(hub.connections, conn)
	hub.mu.Unlock()

	conn.closeSend()
}

// Stop 停止 WebSocket Hub
//
// 關閉所有連線；各自的 readPump 結束時會走正常的斷線清理。
func (hub *WebSocketHub) Stop() {
	hub.cancel()

	hub.mu.Lock()
	conns := make([]*Connection, 0, len(hub.connections))
	for conn := range hub.connections {
		conns = append(conns, conn)
	}
	hub.mu.Unlock()

	for _, conn := range conns {
		conn.closeSend()
		conn.Conn.Close()
	}

	hub.logger.Info("WebSocket Hub 已停止", "connections", len(conns))
}

// GetConnectionCount 獲取連接數
func (hub *WebSocketHub) GetConnectionCount() int {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	return len(hub.connections)
}

// Send 非阻塞送出；連線已關閉或緩衝區滿時回傳錯誤
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnectionClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// closeSend 關閉送出通道（可重複呼叫）
func (c *Connection) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump 讀取客戶端消息
//
// 60 秒內沒有收到任何訊息（包括 Pong）就視為斷線。
// 結束時一律執行斷線清理，與主動 LEAVE_ROOM 相同。
func (c *Connection) readPump() {
	defer func() {
		// 斷線清理不能因為 Hub 關閉而中斷
		c.hub.coordinator.Disconnect(context.WithoutCancel(c.hub.ctx), c)
		c.hub.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}

	c.Conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"client_id", c.ClientID)
			}
			return
		}

		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			c.hub.coordinator.HandleMessage(c.hub.ctx, c, message)
		}
	}
}

// writePump 寫入消息到客戶端
//
// 唯一的寫入者；每 54 秒送出 Ping。
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// 通道已關閉，嘗試送出關閉訊息（連接可能已關閉，忽略錯誤）
				_ = c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
