package models

import "time"

// Direction — что стратегия хочет от движка.
type Direction string

const (
	DirFlat  Direction = "FLAT"
	DirLong  Direction = "LONG"
	DirShort Direction = "SHORT"
	DirExit  Direction = "EXIT"
)

// Signal — свежий ответ стратегии на текущий тик. Не персистится.
type Signal struct {
	At        time.Time
	Direction Direction
	Reason    string
}
