// Package internal 提供即時雙人猜拳的配對與對局服務。
//
// 客戶端透過一條持久的 WebSocket 連線建立或加入房間、出拳，
// 服務器在雙方都出拳後立即判定勝負並廣播結果。
//
// 房間管理
//
// 提供完整的房間生命週期管理：
//   - CREATE_ROOM 產生 6 碼房間 ID（建立者不會自動加入）
//   - JOIN_ROOM 加入任意 ID，不存在時自動建立
//   - 每個房間最多 2 人，最後一人離開時立即移除
//   - 從未有人加入的空房間由定期清理回收
//
// # 對局流程
//
//	JOIN_ROOM ×2  → ROOM_UPDATE, READY
//	PLAY (第一位) → CHOICE_RECEIVED
//	PLAY (第二位) → CHOICE_RECEIVED, ROUND_RESULT, ROOM_UPDATE
//
// 同一局內每位玩家只能出拳一次；結算後清空，馬上可以開始下一局。
//
// 併發安全設計
//
//   - 同一條連線的訊息依序處理（readPump）
//   - 同一個房間的轉換與投遞由房間的操作鎖串行化
//   - 不同房間完全並行，只共用 Registry
//   - 廣播不等待確認，慢客戶端的訊息直接略過
//
// 架構設計
//
//   - WebSocket 層：連線生命週期、心跳、讀寫 pump
//   - Coordinator 層：會話、訊息分派、驗證、房間流程
//   - Room 層：顯式階段（empty / waiting / ready / awaiting_second）與狀態轉換
//   - Registry 層：房間儲存與回收
//   - Handler 層：唯讀的 HTTP 查詢介面
//
// 使用範例
//
//	registry := internal.NewRegistry(logger, internal.PendingClearOnPair)
//	coordinator := internal.NewCoordinator(registry, logger)
//	hub := internal.NewWebSocketHub(coordinator, logger, internal.HubOptions{})
//	handler := internal.NewHandler(registry, coordinator, logger)
//
//	mux := http.NewServeMux()
//	mux.Handle("/", handler.Routes())
//	mux.HandleFunc("GET /ws", hub.ServeWS)
//
// 客戶端：
//
//	{"type":"JOIN_ROOM","payload":{"roomId":"K3X9QA"}}
//	{"type":"PLAY","payload":{"choice":"rock"}}
package internal
