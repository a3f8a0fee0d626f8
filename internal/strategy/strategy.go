package strategy

import (
	"fmt"

	"live_bots/internal/models"
)

// Evaluator — чистая функция над историей закрытых свечей.
// Никакого состояния между тиками: одна и та же история даёт один
// и тот же сигнал, иначе восстановление после рестарта расходится.
type Evaluator interface {
	Name() string
	// Warmup — минимум свечей, ниже которого стратегия молчит.
	Warmup() int
	Evaluate(bars []models.Bar) models.Signal
}

// New — фабрика стратегий по имени из конфига.
func New(name string) (Evaluator, error) {
	switch name {
	case "squeeze":
		return NewSqueeze(20, 2.0), nil
	case "scalpz":
		return NewScalpZ(50, 14, 3), nil
	case "breakout":
		return NewBreakout(20), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func flat(bars []models.Bar, reason string) models.Signal {
	sig := models.Signal{Direction: models.DirFlat, Reason: reason}
	if len(bars) > 0 {
		sig.At = bars[len(bars)-1].Start
	}
	return sig
}
