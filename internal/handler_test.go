package internal_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/system-design/rps-rooms/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRouter 創建帶有兩個房間的路由：R1 已滿、R2 一人等待
func newTestRouter(t *testing.T) (http.Handler, *internal.Coordinator) {
	t.Helper()
	coordinator, registry := newTestCoordinator(t)
	setupPair(t, coordinator, "R1")
	solo, _ := connect(t, coordinator)
	joinRoom(t, coordinator, solo, "R2")

	handler := internal.NewHandler(registry, coordinator, testLogger())
	return handler.Routes(), coordinator
}

func doRequest(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

// TestHandler_ListRooms 測試列出房間
func TestHandler_ListRooms(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantCount  int
		wantTotal  float64
	}{
		{"all rooms", "", http.StatusOK, 2, 2},
		{"filter waiting", "?phase=waiting", http.StatusOK, 1, 1},
		{"filter ready", "?phase=ready", http.StatusOK, 1, 1},
		{"filter awaiting second", "?phase=awaiting_second", http.StatusOK, 0, 0},
		{"pagination", "?page=2&limit=1", http.StatusOK, 1, 2},
		{"invalid limit falls back to default", "?limit=1000", http.StatusOK, 2, 2},
		{"invalid phase", "?phase=playing", http.StatusBadRequest, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := doRequest(t, router, "/api/v1/rooms"+tt.query)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, "無效的房間階段", resp["error"])
				return
			}

			rooms, ok := resp["rooms"].([]any)
			require.True(t, ok)
			assert.Len(t, rooms, tt.wantCount)
			assert.Equal(t, tt.wantTotal, resp["total"])
		})
	}
}

// TestHandler_GetRoomDetail 測試房間詳情
func TestHandler_GetRoomDetail(t *testing.T) {
	router, _ := newTestRouter(t)

	w, resp := doRequest(t, router, "/api/v1/rooms/R1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "R1", resp["roomId"])
	assert.Equal(t, float64(2), resp["playerCount"])
	assert.Equal(t, float64(0), resp["choicesCount"])
	assert.Equal(t, "ready", resp["phase"])
	assert.Len(t, resp["players"], 2)

	w, resp = doRequest(t, router, "/api/v1/rooms/NOPE")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "房間不存在: NOPE", resp["error"])
}

// TestHandler_Health 測試健康檢查
func TestHandler_Health(t *testing.T) {
	router, _ := newTestRouter(t)

	w, resp := doRequest(t, router, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", resp["status"])
	assert.NotNil(t, resp["time"])
}

// TestHandler_Stats 測試統計 API
func TestHandler_Stats(t *testing.T) {
	router, coordinator := newTestRouter(t)
	require.Equal(t, 3, coordinator.SessionCount())

	w, resp := doRequest(t, router, "/stats")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), resp["total_rooms"])
	assert.Equal(t, float64(3), resp["total_players"])
	assert.Equal(t, float64(3), resp["sessions"])

	byPhase, ok := resp["by_phase"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), byPhase["ready"])
	assert.Equal(t, float64(1), byPhase["waiting"])

	counters, ok := resp["counters"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), counters["joins"])
	assert.Equal(t, float64(3), counters["connections_opened"])

	_, err := coordinator.Counters(context.Background())
	assert.NoError(t, err)
}

// TestHandler_MethodNotAllowed 遊戲操作不開放 HTTP
func TestHandler_MethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rooms", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
