package events_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/koopa0/system-design/rps-rooms/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	var p events.Publisher = events.Nop{}
	assert.NoError(t, p.Publish(context.Background(), events.SubjectRoomCreated, map[string]string{"roomId": "R1"}))
	assert.NoError(t, p.Close())
}

// TestNATS 需要設定 NATS_URL 指向可用的 NATS 服務器
func TestNATS(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	subscription, err := sub.ChanSubscribe("rps.rounds.>", msgs)
	require.NoError(t, err)
	defer subscription.Unsubscribe()
	require.NoError(t, sub.Flush())

	publisher, err := events.ConnectNATS(url)
	require.NoError(t, err)
	defer publisher.Close()

	payload := map[string]any{"roomId": "R1", "draw": true}
	require.NoError(t, publisher.Publish(context.Background(), events.SubjectRoundResolved, payload))

	select {
	case msg := <-msgs:
		assert.Equal(t, events.SubjectRoundResolved, msg.Subject)
		var got map[string]any
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, "R1", got["roomId"])
		assert.Equal(t, true, got["draw"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}

	// 已取消的 context 不發佈
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, publisher.Publish(ctx, events.SubjectRoomCreated, payload))
}

func TestConnectNATS_Unreachable(t *testing.T) {
	_, err := events.ConnectNATS("nats://127.0.0.1:1")
	assert.Error(t, err)
}
