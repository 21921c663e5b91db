package internal

// Move 玩家出拳
type Move string

const (
	Rock     Move = "rock"
	Paper    Move = "paper"
	Scissors Move = "scissors"
)

// Outcome 一局的勝負（以 A、B 兩方的角度表示）
type Outcome int

const (
	Draw Outcome = iota
	AWins
	BWins
)

func (o Outcome) String() string {
	switch o {
	case AWins:
		return "a"
	case BWins:
		return "b"
	default:
		return "draw"
	}
}

// beats 記錄每一種出拳能打敗的對象
var beats = map[Move]Move{
	Rock:     Scissors,
	Scissors: Paper,
	Paper:    Rock,
}

// ParseMove 解析玩家輸入，只接受 rock / paper / scissors 三種值
func ParseMove(s string) (Move, bool) {
	m := Move(s)
	if _, ok := beats[m]; !ok {
		return "", false
	}
	return m, true
}

// Valid 是否為合法出拳
func (m Move) Valid() bool {
	_, ok := beats[m]
	return ok
}

// Resolve 判定勝負
//
// 純函數，對 3×3 的輸入空間完整定義。
// 前置條件：a、b 都必須是合法出拳（由呼叫端先以 ParseMove 驗證）。
func Resolve(a, b Move) Outcome {
	switch {
	case a == b:
		return Draw
	case beats[a] == b:
		return AWins
	default:
		return BWins
	}
}
