package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live_bots/internal/models"
)

func mkBars(closes ...float64) []models.Bar {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		bars[i] = models.Bar{
			Start:  start.Add(time.Duration(i) * 15 * time.Minute),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 100,
		}
	}
	return bars
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func TestFactory(t *testing.T) {
	for _, name := range []string{"squeeze", "scalpz", "breakout"} {
		ev, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, ev.Name())
		assert.Greater(t, ev.Warmup(), 0)
	}

	_, err := New("martingale")
	require.Error(t, err)
}

func TestSqueezeWarmup(t *testing.T) {
	s := NewSqueeze(20, 2.0)
	sig := s.Evaluate(mkBars(repeat(100, 10)...))
	assert.Equal(t, models.DirFlat, sig.Direction)
	assert.Equal(t, "warmup", sig.Reason)
}

func TestSqueezeBreakoutLong(t *testing.T) {
	s := NewSqueeze(20, 2.0)
	closes := append(repeat(100, 24), 110)
	sig := s.Evaluate(mkBars(closes...))
	assert.Equal(t, models.DirLong, sig.Direction)
}

func TestSqueezeBreakoutShort(t *testing.T) {
	s := NewSqueeze(20, 2.0)
	closes := append(repeat(100, 24), 90)
	sig := s.Evaluate(mkBars(closes...))
	assert.Equal(t, models.DirShort, sig.Direction)
}

func TestSqueezeExitOnMidCross(t *testing.T) {
	s := NewSqueeze(20, 2.0)
	// предыдущая свеча выше средней полосы, текущая — ниже
	closes := append(repeat(100, 23), 104, 99)
	sig := s.Evaluate(mkBars(closes...))
	assert.Equal(t, models.DirExit, sig.Direction)
}

func TestSqueezeQuietMarketIsFlat(t *testing.T) {
	s := NewSqueeze(20, 2.0)
	sig := s.Evaluate(mkBars(repeat(100, 30)...))
	assert.Equal(t, models.DirFlat, sig.Direction)
}

func TestScalpZPullbackLong(t *testing.T) {
	s := NewScalpZ(50, 14, 3)

	// восходящий тренд, плато, затем откат к минимумам окна стохастика
	var closes []float64
	for i := 0; i < 45; i++ {
		closes = append(closes, 100+float64(i))
	}
	closes = append(closes, repeat(145, 10)...)
	closes = append(closes, 143, 141, 139, 137, 135)

	sig := s.Evaluate(mkBars(closes...))
	assert.Equal(t, models.DirLong, sig.Direction)
}

func TestScalpZRallyShort(t *testing.T) {
	s := NewScalpZ(50, 14, 3)

	var closes []float64
	for i := 0; i < 45; i++ {
		closes = append(closes, 200-float64(i))
	}
	closes = append(closes, repeat(155, 10)...)
	closes = append(closes, 157, 159, 161, 163, 165)

	sig := s.Evaluate(mkBars(closes...))
	assert.Equal(t, models.DirShort, sig.Direction)
}

func TestScalpZNoSetupIsFlat(t *testing.T) {
	s := NewScalpZ(50, 14, 3)
	sig := s.Evaluate(mkBars(repeat(100, 60)...))
	assert.Equal(t, models.DirFlat, sig.Direction)
}

func TestBreakoutChannel(t *testing.T) {
	b := NewBreakout(20)

	base := repeat(100, 20) // high=101, low=99

	long := b.Evaluate(mkBars(append(base, 106)...))
	assert.Equal(t, models.DirLong, long.Direction)

	short := b.Evaluate(mkBars(append(base, 94)...))
	assert.Equal(t, models.DirShort, short.Direction)

	inside := b.Evaluate(mkBars(append(base, 100.5)...))
	assert.Equal(t, models.DirFlat, inside.Direction)
}

func TestEvaluateDeterministic(t *testing.T) {
	bars := mkBars(append(repeat(100, 24), 110)...)

	for _, name := range []string{"squeeze", "scalpz", "breakout"} {
		ev, err := New(name)
		require.NoError(t, err)

		first := ev.Evaluate(bars)
		second := ev.Evaluate(bars)
		assert.Equal(t, first, second, name)
	}
}
