package risk

import (
	"errors"
	"math"
	"sync"

	"live_bots/internal/models"
)

// ErrDegenerateStop — дистанция до стопа нулевая, сайзинг по риску невозможен.
// Вызывающий обязан среагировать явно (fallback на фикс-процент), а не молчать.
var ErrDegenerateStop = errors.New("degenerate stop distance")

// Decision — ответ дневного circuit breaker.
type Decision int

const (
	Allow Decision = iota
	Halt
)

// Governor превращает сигнал в ограниченный размер позиции и держит
// дневной счётчик реализованного PnL для circuit breaker.
// Лимиты иммутабельны на весь запуск.
type Governor struct {
	limits models.RiskLimits

	mu            sync.Mutex
	realizedToday float64
}

func New(limits models.RiskLimits) *Governor {
	return &Governor{limits: limits}
}

func (g *Governor) Limits() models.RiskLimits { return g.limits }

// Size — размер позиции по денежному риску:
//
//	riskAmount   = equity * RiskPerTradePct
//	rawQty       = riskAmount / |entry - stop|
//	cap          = equity * MaxPositionPct / entry
//	qty          = min(rawQty, cap)
//
// Ноль дистанции до стопа — ErrDegenerateStop.
func (g *Governor) Size(equity, entryPx, stopPx float64) (float64, error) {
	if equity <= 0 {
		return 0, errors.New("equity <= 0")
	}
	if entryPx <= 0 {
		return 0, errors.New("entryPx <= 0")
	}

	stopDist := math.Abs(entryPx - stopPx)
	if stopDist <= 0 {
		return 0, ErrDegenerateStop
	}

	riskAmount := equity * g.limits.RiskPerTradePct
	rawQty := riskAmount / stopDist

	cap := equity * g.limits.MaxPositionPct / entryPx
	if rawQty > cap {
		rawQty = cap
	}
	if rawQty <= 0 || math.IsNaN(rawQty) || math.IsInf(rawQty, 0) {
		return 0, errors.New("qty invalid after sizing")
	}

	return rawQty, nil
}

// FallbackSize — фикс-процент от депозита на случай вырожденного стопа.
// Политика: 5% equity в нотионале, с предупреждением на вызывающей стороне.
func (g *Governor) FallbackSize(equity, entryPx float64) float64 {
	if equity <= 0 || entryPx <= 0 {
		return 0
	}
	pct := 0.05
	if g.limits.MaxPositionPct > 0 && pct > g.limits.MaxPositionPct {
		pct = g.limits.MaxPositionPct
	}
	return equity * pct / entryPx
}

// CheckDailyLoss — дневной circuit breaker.
// PnL считается по закрытым сделкам, порог — MaxDailyLossPct от equity.
func (g *Governor) CheckDailyLoss(equity float64) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	if equity <= 0 {
		return Halt
	}
	if g.realizedToday <= -equity*g.limits.MaxDailyLossPct {
		return Halt
	}
	return Allow
}

// RecordTrade — учёт закрытой сделки в дневном PnL.
func (g *Governor) RecordTrade(pnl float64) {
	g.mu.Lock()
	g.realizedToday += pnl
	g.mu.Unlock()
}

func (g *Governor) RealizedToday() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.realizedToday
}

// ResetDaily — граница торгового дня приходит снаружи (команда оператора
// или полуночный тикер), сам governor календарь не считает.
func (g *Governor) ResetDaily() {
	g.mu.Lock()
	g.realizedToday = 0
	g.mu.Unlock()
}
