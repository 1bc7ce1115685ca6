package axob

// HoldingSlot is the single-element buffer for a market order or a
// cross-spread limit order awaiting its matching execution (§3, §4.2,
// Design Note §9). At most one order may occupy it at a time.
type HoldingSlot struct {
	order *Order
}

func (h *HoldingSlot) Empty() bool { return h.order == nil }

func (h *HoldingSlot) Peek() *Order { return h.order }

func (h *HoldingSlot) Set(o *Order) { h.order = o }

func (h *HoldingSlot) Clear() { h.order = nil }
