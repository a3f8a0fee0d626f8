package strategy

import (
	"fmt"

	"live_bots/internal/models"
)

// ScalpZ — откат в тренде: EMA-фильтр направления плюс стохастик
// на перепроданность/перекупленность. Выходы отдаёт защитной паре
// и max-hold, сигнала EXIT у стратегии нет.
type ScalpZ struct {
	emaPeriod int
	kPeriod   int
	smooth    int
}

func NewScalpZ(emaPeriod, kPeriod, smooth int) *ScalpZ {
	return &ScalpZ{emaPeriod: emaPeriod, kPeriod: kPeriod, smooth: smooth}
}

func (s *ScalpZ) Name() string { return "scalpz" }

func (s *ScalpZ) Warmup() int {
	w := s.emaPeriod + 1
	if st := s.kPeriod + s.smooth; st > w {
		w = st
	}
	return w
}

func (s *ScalpZ) Evaluate(bars []models.Bar) models.Signal {
	if len(bars) < s.Warmup() {
		return flat(bars, "warmup")
	}

	n := len(bars)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
		closes[i] = b.Close
	}

	trend := ema(closes, s.emaPeriod)
	k := stochK(highs, lows, closes, s.kPeriod, s.smooth)
	px := closes[n-1]

	switch {
	case px > trend && k < 20:
		return models.Signal{
			At:        bars[n-1].Start,
			Direction: models.DirLong,
			Reason:    fmt.Sprintf("uptrend pullback: close %.2f > ema %.2f, %%K=%.1f", px, trend, k),
		}
	case px < trend && k > 80:
		return models.Signal{
			At:        bars[n-1].Start,
			Direction: models.DirShort,
			Reason:    fmt.Sprintf("downtrend rally: close %.2f < ema %.2f, %%K=%.1f", px, trend, k),
		}
	default:
		return flat(bars, "no setup")
	}
}
