package strategy

import (
	"fmt"

	"live_bots/internal/models"
)

// Squeeze — пробой полос Боллинжера.
// Вход: закрытие выше верхней полосы — лонг, ниже нижней — шорт.
// Выход: закрытие пересекло среднюю полосу против позиции.
type Squeeze struct {
	period int
	mult   float64
}

func NewSqueeze(period int, mult float64) *Squeeze {
	return &Squeeze{period: period, mult: mult}
}

func (s *Squeeze) Name() string { return "squeeze" }

// +1 — для детекции пересечения средней нужна предыдущая свеча
func (s *Squeeze) Warmup() int { return s.period + 1 }

func (s *Squeeze) Evaluate(bars []models.Bar) models.Signal {
	if len(bars) < s.Warmup() {
		return flat(bars, "warmup")
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	last := len(closes) - 1
	mid := sma(closes, last, s.period)
	sd := stddev(closes, last, s.period)
	upper := mid + s.mult*sd
	lower := mid - s.mult*sd

	prevMid := sma(closes, last-1, s.period)
	px := closes[last]
	prevPx := closes[last-1]

	switch {
	case px > upper:
		return models.Signal{
			At:        bars[last].Start,
			Direction: models.DirLong,
			Reason:    fmt.Sprintf("close %.2f > upper band %.2f", px, upper),
		}
	case px < lower:
		return models.Signal{
			At:        bars[last].Start,
			Direction: models.DirShort,
			Reason:    fmt.Sprintf("close %.2f < lower band %.2f", px, lower),
		}
	case (prevPx-prevMid)*(px-mid) < 0:
		// цена пересекла среднюю полосу — импульс выдохся
		return models.Signal{
			At:        bars[last].Start,
			Direction: models.DirExit,
			Reason:    fmt.Sprintf("close %.2f crossed mid band %.2f", px, mid),
		}
	default:
		return flat(bars, "inside bands")
	}
}
