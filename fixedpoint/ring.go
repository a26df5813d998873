package fixedpoint

// pair is one (iterate, residual) snapshot in the mixing history.
type pair struct {
	y []float64
	r []float64
}

// ring is a fixed-capacity history of (iterate, residual) pairs with
// oldest-first eviction. The mixing updates are pure functions over the
// ordered contents; the ring itself never aliases caller slices.
type ring struct {
	cap   int
	pairs []pair
}

func newRing(capacity int) *ring {
	return &ring{cap: capacity}
}

// push appends a copy of (y, r), evicting the oldest pair at capacity.
func (h *ring) push(y, r []float64) {
	p := pair{
		y: append([]float64(nil), y...),
		r: append([]float64(nil), r...),
	}
	if len(h.pairs) == h.cap {
		copy(h.pairs, h.pairs[1:])
		h.pairs[len(h.pairs)-1] = p
		return
	}
	h.pairs = append(h.pairs, p)
}

// snapshot returns the history ordered oldest to newest. The returned
// slice shares storage with the ring; mixers must treat it as read-only.
func (h *ring) snapshot() []pair { return h.pairs }

func (h *ring) len() int { return len(h.pairs) }
