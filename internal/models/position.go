package models

import "time"

// PosSide — направление позиции.
type PosSide string

const (
	PosLong  PosSide = "LONG"
	PosShort PosSide = "SHORT"
)

// Position существует только пока BotState != FLAT.
// Мутируется только по событиям fill/cancel, правда всегда у брокера.
type Position struct {
	Symbol    string
	Side      PosSide
	Qty       float64
	EntryPx   float64
	EntryTime time.Time

	// активные защитные ордера (пусто, если ещё не выставлены)
	StopOrderID   string
	TargetOrderID string
}

// Protected — оба защитных ордера выставлены.
func (p *Position) Protected() bool {
	return p != nil && p.StopOrderID != "" && p.TargetOrderID != ""
}

// CloseSide — сторона ордера, закрывающего позицию.
func (p *Position) CloseSide() OrderSide {
	if p.Side == PosLong {
		return OrderSell
	}
	return OrderBuy
}
