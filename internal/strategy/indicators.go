package strategy

import "math"

// sma по последним period значениям (до idx включительно).
func sma(vals []float64, idx, period int) float64 {
	sum := 0.0
	for i := idx - period + 1; i <= idx; i++ {
		sum += vals[i]
	}
	return sum / float64(period)
}

// stddev по последним period значениям (до idx включительно).
func stddev(vals []float64, idx, period int) float64 {
	mean := sma(vals, idx, period)
	sum := 0.0
	for i := idx - period + 1; i <= idx; i++ {
		d := vals[i] - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(period))
}

// ema последнего значения серии; сидируется SMA первых period точек.
func ema(vals []float64, period int) float64 {
	k := 2.0 / float64(period+1)
	e := sma(vals, period-1, period)
	for i := period; i < len(vals); i++ {
		e = vals[i]*k + e*(1-k)
	}
	return e
}

// stochK — сглаженный %K (SMA за smooth) стохастика по kPeriod.
func stochK(highs, lows, closes []float64, kPeriod, smooth int) float64 {
	n := len(closes)
	raw := make([]float64, 0, smooth)
	for i := n - smooth; i < n; i++ {
		hh := highs[i]
		ll := lows[i]
		for j := i - kPeriod + 1; j <= i; j++ {
			hh = math.Max(hh, highs[j])
			ll = math.Min(ll, lows[j])
		}
		if hh == ll {
			raw = append(raw, 50)
			continue
		}
		raw = append(raw, 100*(closes[i]-ll)/(hh-ll))
	}
	sum := 0.0
	for _, v := range raw {
		sum += v
	}
	return sum / float64(len(raw))
}
