package internal

import (
	"errors"
	"fmt"
)

// 驗證錯誤（只回報給發起的連線，不改動房間狀態）
var (
	ErrMalformedMessage = errors.New("invalid message")
	ErrRoomIDRequired   = errors.New("roomId required")
	ErrRoomFull         = errors.New("room full")
	ErrNotInRoom        = errors.New("not in a room")
	ErrRoomNotFound     = errors.New("room not found")
	ErrNeedTwoPlayers   = errors.New("need two players")
	ErrInvalidChoice    = errors.New("invalid choice")
	ErrAlreadyPlayed    = errors.New("already played this round")

	// errRoomClosed 房間在取得後、加鎖前被回收，呼叫端應重新取得
	errRoomClosed = errors.New("room closed")
)

// UnknownTypeError 無法辨識的訊息類型
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type: %s", e.Type)
}

// ErrorCode 將錯誤對應到穩定的機器可讀代碼
func ErrorCode(err error) string {
	var unknown *UnknownTypeError
	switch {
	case errors.As(err, &unknown):
		return "UNKNOWN_TYPE"
	case errors.Is(err, ErrMalformedMessage):
		return "MALFORMED_MESSAGE"
	case errors.Is(err, ErrRoomIDRequired):
		return "ROOM_ID_REQUIRED"
	case errors.Is(err, ErrRoomFull):
		return "ROOM_FULL"
	case errors.Is(err, ErrNotInRoom):
		return "NOT_IN_ROOM"
	case errors.Is(err, ErrRoomNotFound):
		return "ROOM_NOT_FOUND"
	case errors.Is(err, ErrNeedTwoPlayers):
		return "NEED_TWO_PLAYERS"
	case errors.Is(err, ErrInvalidChoice):
		return "INVALID_CHOICE"
	case errors.Is(err, ErrAlreadyPlayed):
		return "ALREADY_PLAYED"
	default:
		return "INTERNAL"
	}
}
