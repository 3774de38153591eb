package netlink

import (
	"sync"
	"time"
)

// pendingRequest is the engine side state of a request between admission and
// its terminal transition.
type pendingRequest struct {
	seq     uint32
	family  uint16
	command uint8

	// buf holds the outbound message until the request reaches a terminal
	// state. Only the goroutine holding the engine's I/O lock touches it
	// after the request has been queued.
	buf *Buffer

	// written is the number of bytes of buf already on the wire.
	written int

	// frames accumulates multi-part fragments in arrival order.
	frames [][]byte

	timeout time.Duration
	timer   *time.Timer
	start   time.Time

	// resolve translates the reply (or turns the error into a result) and
	// returns the closure running the caller's callback.
	resolve func(frames [][]byte, err error) func()
}

// pendingTable correlates sequence numbers with in-flight requests. remove is
// the only way a request leaves the table, so whoever removes it owns its
// terminal transition.
type pendingTable struct {
	sync.Mutex
	m map[uint32]*pendingRequest
}

func newPendingTable(capacity int) *pendingTable {
	if capacity < 0 {
		capacity = 0
	}
	return &pendingTable{m: make(map[uint32]*pendingRequest, capacity)}
}

// register adds r and arms its timer, which calls expire with r's sequence
// number. The timer is set while the table is locked so that anybody finding
// r in the table also sees its timer.
func (t *pendingTable) register(r *pendingRequest, expire func(seq uint32)) error {
	t.Lock()
	defer t.Unlock()

	if _, ok := t.m[r.seq]; ok {
		return admissionError(ErrDuplicateSeq)
	}
	t.m[r.seq] = r

	seq := r.seq
	r.timer = time.AfterFunc(r.timeout, func() { expire(seq) })
	return nil
}

func (t *pendingTable) get(seq uint32) (*pendingRequest, bool) {
	t.Lock()
	defer t.Unlock()

	r, ok := t.m[seq]
	return r, ok
}

func (t *pendingTable) remove(seq uint32) (*pendingRequest, bool) {
	t.Lock()
	defer t.Unlock()

	r, ok := t.m[seq]
	if ok {
		delete(t.m, seq)
	}
	return r, ok
}

// drain empties the table and returns everything that was in flight.
func (t *pendingTable) drain() []*pendingRequest {
	t.Lock()
	defer t.Unlock()

	rs := make([]*pendingRequest, 0, len(t.m))
	for seq, r := range t.m {
		rs = append(rs, r)
		delete(t.m, seq)
	}
	return rs
}

func (t *pendingTable) len() int {
	t.Lock()
	defer t.Unlock()
	return len(t.m)
}
