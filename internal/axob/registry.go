package axob

// OrderIndex maps SeqNum to its live Order (§3).
type OrderIndex struct {
	m map[uint32]*Order
}

func NewOrderIndex() *OrderIndex {
	return &OrderIndex{m: make(map[uint32]*Order)}
}

func (r *OrderIndex) Get(seq uint32) (*Order, bool) {
	o, ok := r.m[seq]
	return o, ok
}

func (r *OrderIndex) Put(o *Order) { r.m[o.SeqNum] = o }

func (r *OrderIndex) Remove(seq uint32) { delete(r.m, seq) }

func (r *OrderIndex) Len() int { return len(r.m) }

// IllegalIndex holds orders rejected by ChiNext envelope rules but
// still cancelable by SeqNum (§3, §4.3).
type IllegalIndex struct {
	m map[uint32]*Order
}

func NewIllegalIndex() *IllegalIndex {
	return &IllegalIndex{m: make(map[uint32]*Order)}
}

func (r *IllegalIndex) Get(seq uint32) (*Order, bool) {
	o, ok := r.m[seq]
	return o, ok
}

func (r *IllegalIndex) Put(o *Order) { r.m[o.SeqNum] = o }

func (r *IllegalIndex) Remove(seq uint32) { delete(r.m, seq) }
