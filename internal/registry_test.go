package internal_test

import (
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/koopa0/system-design/rps-rooms/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRegistry_Create 測試產生房間 ID
func TestRegistry_Create(t *testing.T) {
	reg := internal.NewRegistry(testLogger(), internal.PendingClearOnPair)
	pattern := regexp.MustCompile(`^[A-Z0-9]{6}$`)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		room, err := reg.Create()
		require.NoError(t, err)
		assert.Regexp(t, pattern, room.ID)
		assert.False(t, seen[room.ID], "duplicate room id %s", room.ID)
		seen[room.ID] = true

		// 建立者不會自動加入
		assert.Equal(t, 0, room.GetPlayerCount())
	}
	assert.Equal(t, 200, reg.Len())
}

// TestRegistry_Ensure 不存在時建立，存在時回傳同一個房間
func TestRegistry_Ensure(t *testing.T) {
	reg := internal.NewRegistry(testLogger(), internal.PendingClearOnPair)

	_, ok := reg.Get("lobby")
	assert.False(t, ok)

	first, created := reg.Ensure("lobby")
	assert.True(t, created)
	second, created := reg.Ensure("lobby")
	assert.False(t, created)
	assert.Same(t, first, second)

	got, ok := reg.Get("lobby")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Equal(t, 1, reg.Len())
}

// TestRegistry_ConcurrentEnsure 併發 Ensure 只會建立一個房間
func TestRegistry_ConcurrentEnsure(t *testing.T) {
	reg := internal.NewRegistry(testLogger(), internal.PendingClearOnPair)

	var wg sync.WaitGroup
	rooms := make([]*internal.Room, 100)
	for i := range rooms {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rooms[i], _ = reg.Ensure("shared")
		}(i)
	}
	wg.Wait()

	for _, room := range rooms {
		assert.Same(t, rooms[0], room)
	}
	assert.Equal(t, 1, reg.Len())
}

// TestRegistry_DeleteIfEmpty 只移除無人的房間
func TestRegistry_DeleteIfEmpty(t *testing.T) {
	reg := internal.NewRegistry(testLogger(), internal.PendingClearOnPair)

	room, _ := reg.Ensure("R1")
	_, err := room.Join("a", &fakeConn{})
	require.NoError(t, err)

	assert.False(t, reg.DeleteIfEmpty("R1"))
	assert.False(t, reg.DeleteIfEmpty("missing"))

	_, ok := room.Leave("a")
	require.True(t, ok)
	assert.True(t, reg.DeleteIfEmpty("R1"))

	_, ok = reg.Get("R1")
	assert.False(t, ok)

	// 已回收的房間拒絕加入與出拳
	_, err = room.Join("b", &fakeConn{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, internal.ErrRoomFull)
	_, err = room.Submit("a", "rock")
	assert.ErrorIs(t, err, internal.ErrRoomNotFound)

	// 同一個 ID 會重新建立新的房間
	fresh, _ := reg.Ensure("R1")
	assert.NotSame(t, room, fresh)
	_, err = fresh.Join("b", &fakeConn{})
	assert.NoError(t, err)
}

// TestRegistry_Cleanup 只回收閒置的空房間
func TestRegistry_Cleanup(t *testing.T) {
	reg := internal.NewRegistry(testLogger(), internal.PendingClearOnPair)

	empty, err := reg.Create()
	require.NoError(t, err)

	occupied, _ := reg.Ensure("busy")
	_, err = occupied.Join("a", &fakeConn{})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	assert.Empty(t, reg.Cleanup(time.Hour))

	removed := reg.Cleanup(10 * time.Millisecond)
	assert.Equal(t, []string{empty.ID}, removed)

	_, ok := reg.Get(empty.ID)
	assert.False(t, ok)
	_, ok = reg.Get("busy")
	assert.True(t, ok)
}

// TestRegistry_ListRooms 測試列出與篩選房間
func TestRegistry_ListRooms(t *testing.T) {
	reg := internal.NewRegistry(testLogger(), internal.PendingClearOnPair)

	for i := 0; i < 5; i++ {
		room, _ := reg.Ensure(fmt.Sprintf("R%d", i))
		_, err := room.Join("a", &fakeConn{})
		require.NoError(t, err)
		if i < 2 {
			_, err = room.Join("b", &fakeConn{})
			require.NoError(t, err)
		}
	}

	tests := []struct {
		name      string
		phase     internal.Phase
		page      int
		limit     int
		wantCount int
		wantTotal int
	}{
		{"all rooms", "", 1, 20, 5, 5},
		{"waiting only", internal.PhaseWaiting, 1, 20, 3, 3},
		{"ready only", internal.PhaseReady, 1, 20, 2, 2},
		{"first page", "", 1, 2, 2, 5},
		{"last page", "", 3, 2, 1, 5},
		{"past the end", "", 4, 2, 0, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rooms, total := reg.ListRooms(tt.phase, tt.page, tt.limit)
			assert.Len(t, rooms, tt.wantCount)
			assert.Equal(t, tt.wantTotal, total)
			for _, room := range rooms {
				if tt.phase != "" {
					assert.Equal(t, tt.phase, room.Phase)
				}
			}
		})
	}
}

// TestRegistry_Stats 測試統計
func TestRegistry_Stats(t *testing.T) {
	reg := internal.NewRegistry(testLogger(), internal.PendingClearOnPair)

	r1, _ := reg.Ensure("R1")
	_, err := r1.Join("a", &fakeConn{})
	require.NoError(t, err)
	_, err = r1.Join("b", &fakeConn{})
	require.NoError(t, err)

	r2, _ := reg.Ensure("R2")
	_, err = r2.Join("c", &fakeConn{})
	require.NoError(t, err)

	stats := reg.Stats()
	assert.Equal(t, 2, stats["total_rooms"])
	assert.Equal(t, 3, stats["total_players"])

	byPhase, ok := stats["by_phase"].(map[internal.Phase]int)
	require.True(t, ok)
	assert.Equal(t, 1, byPhase[internal.PhaseReady])
	assert.Equal(t, 1, byPhase[internal.PhaseWaiting])
}
