package events

// eventHeap is a container/heap priority queue of *ScheduledEvent ordered
// by nextDeadline, ties broken by ascending event id — matching the
// ordering guarantee in §4.7/§5: across events, invocation order is by
// deadline, ties broken by event-id ascending.
type eventHeap []*ScheduledEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if !h[i].nextDeadline.Equal(h[j].nextDeadline) {
		return h[i].nextDeadline.Before(h[j].nextDeadline)
	}
	return h[i].ID < h[j].ID
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *eventHeap) Push(x any) {
	ev := x.(*ScheduledEvent)
	ev.heapIndex = len(*h)
	*h = append(*h, ev)
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	ev.heapIndex = -1
	*h = old[:n-1]
	return ev
}
