package internal

import (
	"encoding/json"
	"log/slog"
)

// Conn 協調者眼中的連線：只需要能送出訊息
//
// Send 不可阻塞；連線已不可寫（關閉、緩衝區滿）時回傳錯誤。
type Conn interface {
	Send(data []byte) error
}

// Broadcaster 事件扇出
//
// 沒有確認、沒有背壓；需要投遞保證時替換實作即可，協調者不需修改。
type Broadcaster interface {
	// Send 送給單一連線
	Send(conn Conn, event Event)
	// Broadcast 依序把每個事件送給所有成員
	Broadcast(members []Conn, events ...Event)
}

// Notifier 預設的 Broadcaster：JSON 編碼後逐一送出，失敗的成員直接略過
type Notifier struct {
	logger *slog.Logger
}

// NewNotifier 創建 Notifier
func NewNotifier(logger *slog.Logger) *Notifier {
	return &Notifier{logger: logger}
}

// Send 送給單一連線
func (n *Notifier) Send(conn Conn, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("序列化事件失敗", "type", event.Type, "error", err)
		return
	}
	if err := conn.Send(data); err != nil {
		n.logger.Debug("連線不可寫，略過", "type", event.Type, "error", err)
	}
}

// Broadcast 廣播到房間成員
func (n *Notifier) Broadcast(members []Conn, events ...Event) {
	if len(members) == 0 {
		return
	}
	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			n.logger.Error("序列化事件失敗", "type", event.Type, "error", err)
			continue
		}
		for _, conn := range members {
			if err := conn.Send(data); err != nil {
				n.logger.Debug("連線不可寫，略過", "type", event.Type, "error", err)
			}
		}
	}
}
