package indicators

import "math"

// SMA is the simple moving average of the last n values.
func SMA(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		sum += vals[i]
	}
	return sum / float64(n)
}

// EMASeries returns the exponential moving average for every bar from index n-1 on,
// seeded with the SMA of the first n values.
func EMASeries(vals []float64, n int) []float64 {
	if len(vals) < n || n <= 0 {
		return nil
	}
	k := 2.0 / float64(n+1)
	out := make([]float64, 0, len(vals)-n+1)
	prev := SMA(vals[:n], n)
	out = append(out, prev)
	for i := n; i < len(vals); i++ {
		prev = vals[i]*k + prev*(1-k)
		out = append(out, prev)
	}
	return out
}

// EMA is the last value of EMASeries.
func EMA(vals []float64, n int) float64 {
	s := EMASeries(vals, n)
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

// RSI over the last period deltas.
func RSI(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		if gain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

// MACD returns the macd line, its signal line and the histogram on the last bar.
func MACD(closes []float64, fast, slow, signal int) (line, sig, hist float64) {
	nan := math.NaN()
	if fast <= 0 || slow <= fast || signal <= 0 || len(closes) < slow+signal-1 {
		return nan, nan, nan
	}
	fastS := EMASeries(closes, fast)
	slowS := EMASeries(closes, slow)
	// align both series on the bars where the slow EMA exists
	offset := slow - fast
	macd := make([]float64, len(slowS))
	for i := range slowS {
		macd[i] = fastS[i+offset] - slowS[i]
	}
	sigS := EMASeries(macd, signal)
	if len(sigS) == 0 {
		return nan, nan, nan
	}
	line = macd[len(macd)-1]
	sig = sigS[len(sigS)-1]
	return line, sig, line - sig
}

// StdDev is the population standard deviation of the last n values.
func StdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := SMA(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

// Bollinger returns the middle, upper and lower bands.
func Bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = SMA(closes, n)
	sd := StdDev(closes, n)
	up = mid + k*sd
	low = mid - k*sd
	return
}

// ATR is the average true range over period bars.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	if period <= 0 || len(closes) < period+1 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		sum += math.Max(tr1, math.Max(tr2, tr3))
	}
	return sum / float64(period)
}

// Stochastic returns %K on the last bar and %D, the SMA of the last d %K values.
func Stochastic(highs, lows, closes []float64, k, d int) (pk, pd float64) {
	nan := math.NaN()
	if k <= 0 || d <= 0 || len(closes) < k+d-1 || len(highs) != len(closes) || len(lows) != len(closes) {
		return nan, nan
	}
	ks := make([]float64, 0, d)
	for end := len(closes) - d + 1; end <= len(closes); end++ {
		hh, ll := highs[end-k], lows[end-k]
		for i := end - k; i < end; i++ {
			hh = math.Max(hh, highs[i])
			ll = math.Min(ll, lows[i])
		}
		v := 50.0
		if hh > ll {
			v = (closes[end-1] - ll) / (hh - ll) * 100
		}
		ks = append(ks, v)
	}
	return ks[len(ks)-1], SMA(ks, d)
}
