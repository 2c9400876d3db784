package mux

// deadlineHeap orders pending entries by expiration deadline so the
// actor goroutine can re-arm a single timer at the nearest one (§4.4),
// instead of running one timer per outstanding probe.
type deadlineHeap []*pendingEntry

func (h deadlineHeap) Len() int { return len(h) }

// Less orders by deadline, ties broken by session_id (§5) so equal
// deadlines still produce a deterministic sweep order, matching
// malbeclabs-doublezero/client/doublezerod/internal/liveness/scheduler.go's
// eventHeap tie-break on its seq field.
func (h deadlineHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].sessionID < h[j].sessionID
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *deadlineHeap) Push(x any) {
	entry := x.(*pendingEntry)
	entry.index = len(*h)
	*h = append(*h, entry)
}

func (h *deadlineHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return entry
}
