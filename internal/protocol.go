package internal

import "encoding/json"

// 訊息類型（客戶端 → 服務器）
const (
	TypeCreateRoom = "CREATE_ROOM"
	TypeJoinRoom   = "JOIN_ROOM"
	TypeLeaveRoom  = "LEAVE_ROOM"
	TypePlay       = "PLAY"
)

// 訊息類型（服務器 → 客戶端）
const (
	TypeWelcome        = "WELCOME"
	TypeRoomCreated    = "ROOM_CREATED"
	TypeJoined         = "JOINED"
	TypeRoomFull       = "ROOM_FULL"
	TypeLeft           = "LEFT"
	TypeRoomUpdate     = "ROOM_UPDATE"
	TypeReady          = "READY"
	TypeChoiceReceived = "CHOICE_RECEIVED"
	TypeOpponentLeft   = "OPPONENT_LEFT"
	TypeRoundResult    = "ROUND_RESULT"
	TypeError          = "ERROR"
)

const (
	readyMessage        = "2 players ready. Make your choice!"
	opponentLeftMessage = "Your opponent left the room."
)

// Event 送出的訊息信封 { type, payload }
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// inbound 收到的訊息信封，payload 延後解析
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	RoomID string `json:"roomId"`
}

type playPayload struct {
	Choice string `json:"choice"`
}

// WelcomePayload 連線建立
type WelcomePayload struct {
	ClientID string `json:"clientId"`
}

// RoomRefPayload ROOM_CREATED / ROOM_FULL
type RoomRefPayload struct {
	RoomID string `json:"roomId"`
}

// JoinedPayload 加入成功（只發給加入者）
type JoinedPayload struct {
	RoomID   string `json:"roomId"`
	ClientID string `json:"clientId"`
}

// RoomState 房間快照，同時作為 ROOM_UPDATE 的 payload
type RoomState struct {
	RoomID       string   `json:"roomId"`
	PlayerCount  int      `json:"playerCount"`
	Players      []string `json:"players"`
	ChoicesCount int      `json:"choicesCount"`
	Phase        Phase    `json:"phase"`
}

// MessagePayload READY / OPPONENT_LEFT
type MessagePayload struct {
	Message string `json:"message"`
}

// ChoiceReceivedPayload 有玩家出拳
type ChoiceReceivedPayload struct {
	ChoicesCount int `json:"choicesCount"`
}

// RoundResult 一局的結果，只在廣播時產生，不保存
type RoundResult struct {
	Choices  map[string]Move `json:"choices"`
	WinnerID *string         `json:"winnerId"`
	Draw     bool            `json:"draw"`
}

// ErrorPayload 驗證失敗
type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// LeftPayload 離開房間（空物件）
type LeftPayload struct{}

func errorEvent(err error) Event {
	return Event{
		Type: TypeError,
		Payload: ErrorPayload{
			Message: err.Error(),
			Code:    ErrorCode(err),
		},
	}
}
