// Package events 對外發佈房間與對局的領域事件。
//
// Subject 命名：rps.{aggregate}.{event}
//
//	rps.rooms.created
//	rps.rooms.deleted
//	rps.rounds.resolved
//
// 發佈是 fire-and-forget：失敗只記錄日誌，不影響遊戲流程。
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

const (
	SubjectRoomCreated   = "rps.rooms.created"
	SubjectRoomDeleted   = "rps.rooms.deleted"
	SubjectRoundResolved = "rps.rounds.resolved"
)

// Publisher 事件發佈者
type Publisher interface {
	Publish(ctx context.Context, subject string, v any) error
	Close() error
}

// Nop 不發佈任何事件
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() error                               { return nil }

// NATS 以 core NATS 發佈（不需要 JetStream，訂閱端自行決定是否持久化）
type NATS struct {
	conn *nats.Conn
}

// ConnectNATS 連接 NATS
func ConnectNATS(url string) (*NATS, error) {
	conn, err := nats.Connect(
		url,
		nats.Name("rps-rooms"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connect nats %s", url)
	}
	return &NATS{conn: conn}, nil
}

// NewNATS 以既有連線創建
func NewNATS(conn *nats.Conn) *NATS {
	return &NATS{conn: conn}
}

func (n *NATS) Publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}
	if err := n.conn.Publish(subject, data); err != nil {
		return errors.Wrapf(err, "publish %s", subject)
	}
	return nil
}

// Close 送出緩衝中的訊息後關閉
func (n *NATS) Close() error {
	return n.conn.Drain()
}
