package searcher

// Candidate is a scored row.
type Candidate struct {
	Row   uint32
	Score float32
}

// better reports whether a ranks before b.
func better(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Row < b.Row
}

// topK keeps the k best candidates. The root is the worst kept candidate, so
// a newcomer only has to beat the root.
type topK struct {
	k     int
	items []Candidate
}

func (h *topK) reset(k int) {
	h.k = k
	h.items = h.items[:0]
}

// offer adds c if it ranks among the best k seen so far.
func (h *topK) offer(c Candidate) {
	if len(h.items) < h.k {
		h.items = append(h.items, c)
		h.siftUp(len(h.items) - 1)
		return
	}
	if !better(c, h.items[0]) {
		return
	}
	h.items[0] = c
	h.siftDown(0)
}

// worse orders the heap: the worst candidate at the root.
func (h *topK) worse(i, j int) bool {
	return better(h.items[j], h.items[i])
}

func (h *topK) siftUp(i int) {
	for i > 0 {
		p := (i - 1) / 2
		if !h.worse(i, p) {
			return
		}
		h.items[i], h.items[p] = h.items[p], h.items[i]
		i = p
	}
}

func (h *topK) siftDown(i int) {
	n := len(h.items)
	for {
		l := 2*i + 1
		if l >= n {
			return
		}
		worst := l
		if r := l + 1; r < n && h.worse(r, l) {
			worst = r
		}
		if !h.worse(worst, i) {
			return
		}
		h.items[i], h.items[worst] = h.items[worst], h.items[i]
		i = worst
	}
}
