package models

import "time"

// PositionInfo — часть снапшота про открытую позицию.
type PositionInfo struct {
	Symbol       string    `json:"symbol"`
	Side         PosSide   `json:"side"`
	Qty          float64   `json:"qty"`
	EntryPx      float64   `json:"entry_px"`
	EntryTime    time.Time `json:"entry_time"`
	LastPx       float64   `json:"last_px,omitempty"`
	UnrealizedPL float64   `json:"unrealized_pl,omitempty"`
}

// StatusSnapshot — единственная форма статуса бота.
// Раньше в каждом скрипте статус собирали кто во что горазд (строка/словарь),
// теперь форма одна и проверяется компилятором.
type StatusSnapshot struct {
	BotID         string        `json:"bot_id"`
	State         BotState      `json:"state"`
	Position      *PositionInfo `json:"position,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
	Equity        float64       `json:"equity"`
	RealizedToday float64       `json:"realized_today"`
	UpdatedAt     time.Time     `json:"updated_at"`
}
