package internal_test

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koopa0/system-design/rps-rooms/internal"
	"github.com/stretchr/testify/assert"
)

// TestStress_ManyRooms 大量房間同時對局
func TestStress_ManyRooms(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	c, reg := newTestCoordinator(t)

	const (
		numRooms = 200
		rounds   = 20
	)

	var (
		wg       sync.WaitGroup
		resolved int32
	)

	start := time.Now()

	for i := 0; i < numRooms; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			roomID := fmt.Sprintf("stress_%d", i)
			a, _ := connect(t, c)
			b, _ := connect(t, c)
			send(t, c, a, internal.TypeJoinRoom, map[string]string{"roomId": roomID})
			send(t, c, b, internal.TypeJoinRoom, map[string]string{"roomId": roomID})

			moves := []string{"rock", "paper", "scissors"}
			for r := 0; r < rounds; r++ {
				var pair sync.WaitGroup
				for _, conn := range []*fakeConn{a, b} {
					pair.Add(1)
					go func(conn *fakeConn) {
						defer pair.Done()
						send(t, c, conn, internal.TypePlay, map[string]string{"choice": moves[rand.Intn(len(moves))]})
					}(conn)
				}
				pair.Wait()
			}

			for _, typ := range a.types(t) {
				if typ == internal.TypeRoundResult {
					atomic.AddInt32(&resolved, 1)
				}
			}

			c.Disconnect(context.Background(), a)
			c.Disconnect(context.Background(), b)
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	assert.Equal(t, int32(numRooms*rounds), resolved)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, c.SessionCount())

	t.Logf("%d rooms x %d rounds in %v", numRooms, rounds, elapsed)
}

// TestStress_JoinLeaveChurn 反覆加入離開後不會留下空房間或超員
func TestStress_JoinLeaveChurn(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	c, reg := newTestCoordinator(t)

	const (
		numClients = 100
		numRooms   = 5
		iterations = 50
	)

	var (
		wg         sync.WaitGroup
		overfilled int32
	)

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, _ := connect(t, c)
			defer c.Disconnect(context.Background(), conn)

			for j := 0; j < iterations; j++ {
				roomID := fmt.Sprintf("churn_%d", rand.Intn(numRooms))
				send(t, c, conn, internal.TypeJoinRoom, map[string]string{"roomId": roomID})
				if room, ok := reg.Get(roomID); ok && room.GetPlayerCount() > internal.MaxPlayers {
					atomic.AddInt32(&overfilled, 1)
				}
				if rand.Intn(2) == 0 {
					send(t, c, conn, internal.TypeLeaveRoom, nil)
				}
			}
		}()
	}

	wg.Wait()

	assert.Zero(t, overfilled)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, c.SessionCount())
}
