package vote

// histogram counts values while remembering the order in which each distinct
// value was first added.
type histogram[T comparable] struct {
	order  []T
	counts map[T]int
}

func newHistogram[T comparable]() *histogram[T] {
	return &histogram[T]{counts: make(map[T]int)}
}

func (h *histogram[T]) add(v T) {
	if _, ok := h.counts[v]; !ok {
		h.order = append(h.order, v)
	}
	h.counts[v]++
}

// winner returns the value with the highest count. On a tie the value seen
// first keeps precedence.
func (h *histogram[T]) winner() (T, bool) {
	var best T
	bestCount := 0
	for _, v := range h.order {
		if c := h.counts[v]; c > bestCount {
			best, bestCount = v, c
		}
	}
	return best, bestCount > 0
}
