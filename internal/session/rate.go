package session

// rateWindow counts packets over a sliding one-second window of stream time.
type rateWindow struct {
	limit int
	times []float64
}

func newRateWindow(limit int) *rateWindow {
	return &rateWindow{limit: limit, times: make([]float64, 0, limit+1)}
}

// allow records a packet at now and reports whether the window is still
// within the limit.
func (w *rateWindow) allow(now float64) bool {
	cut := 0
	for cut < len(w.times) && w.times[cut] <= now-1 {
		cut++
	}
	if cut > 0 {
		w.times = append(w.times[:0], w.times[cut:]...)
	}
	w.times = append(w.times, now)
	return w.limit <= 0 || len(w.times) <= w.limit
}

func (w *rateWindow) count() int {
	return len(w.times)
}
