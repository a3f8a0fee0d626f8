package strategy

import (
	"fmt"

	"live_bots/internal/models"
)

// Breakout — пробой канала Дончиана: закрытие выше максимума последних
// lookback свечей (не считая текущей) — лонг, ниже минимума — шорт.
type Breakout struct {
	lookback int
}

func NewBreakout(lookback int) *Breakout {
	return &Breakout{lookback: lookback}
}

func (b *Breakout) Name() string { return "breakout" }

func (b *Breakout) Warmup() int { return b.lookback + 1 }

func (b *Breakout) Evaluate(bars []models.Bar) models.Signal {
	if len(bars) < b.Warmup() {
		return flat(bars, "warmup")
	}

	last := len(bars) - 1
	hh := bars[last-b.lookback].High
	ll := bars[last-b.lookback].Low
	for i := last - b.lookback; i < last; i++ {
		if bars[i].High > hh {
			hh = bars[i].High
		}
		if bars[i].Low < ll {
			ll = bars[i].Low
		}
	}

	px := bars[last].Close
	switch {
	case px > hh:
		return models.Signal{
			At:        bars[last].Start,
			Direction: models.DirLong,
			Reason:    fmt.Sprintf("close %.2f broke %d-bar high %.2f", px, b.lookback, hh),
		}
	case px < ll:
		return models.Signal{
			At:        bars[last].Start,
			Direction: models.DirShort,
			Reason:    fmt.Sprintf("close %.2f broke %d-bar low %.2f", px, b.lookback, ll),
		}
	default:
		return flat(bars, "inside channel")
	}
}
