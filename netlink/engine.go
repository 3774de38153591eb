package netlink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mdlayher/netlink"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/vrouter/nlengine/types"
)

// Notification is a message the kernel sent on its own accord, usually to a
// multicast group the socket joined.
type Notification struct {
	Type   uint16
	Flags  netlink.HeaderFlags
	PortID uint32

	// Payload is everything after the wire header. It's a copy the handler
	// may keep.
	Payload []byte
}

// NotificationHandler receives notifications through the engine's
// dispatcher.
type NotificationHandler func(Notification)

type Option func(*Engine)

// WithDispatcher replaces the dispatcher built from the configuration.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

func WithNotificationHandler(h NotificationHandler) Option {
	return func(e *Engine) { e.onNotify = h }
}

// WithRegisterer registers the engine's collectors on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.registerer = reg }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine multiplexes requests over a single netlink socket and demultiplexes
// replies and notifications coming back.
//
// Socket I/O, reply handling, timeouts and Close are serialized by ioMu.
// Send may be called from any goroutine: it only touches the pending table,
// the guards, the pool and the write queue.
type Engine struct {
	conf   Config
	sock   Socket
	logger *slog.Logger

	pool          *BufferPool
	table         *pendingTable
	pendingGuard  *Guard
	notifyGuard   *Guard
	seq           atomic.Uint32
	queue         chan *pendingRequest
	wake          chan struct{}
	closed        atomic.Bool
	closeOnce     sync.Once
	done          chan struct{}
	dispatcher    Dispatcher
	ownDispatcher *QueueDispatcher
	onNotify      NotificationHandler

	ioMu    sync.Mutex
	stalled *pendingRequest
	rx      []byte
	rxLen   int
	rxSkip  int
	batch   []func()

	counters   counters
	metrics    *metrics
	registerer prometheus.Registerer
}

// New builds an engine driving sock. A nil conf means DefaultConfig.
func New(sock Socket, conf *Config, opts ...Option) (*Engine, error) {
	if sock == nil {
		return nil, errors.New("nil socket")
	}

	c := DefaultConfig
	if conf != nil {
		c = *conf
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}

	e := &Engine{
		conf:         c,
		sock:         sock,
		pool:         NewBufferPool(c.BufferPoolSize, c.BufferSize, c.PoisonBuffers),
		table:        newPendingTable(c.MaxPendingRequests),
		pendingGuard: NewGuard("pending-requests", c.MaxPendingRequests),
		notifyGuard:  NewGuard("pending-notifications", c.MaxPendingNotifications),
		queue:        make(chan *pendingRequest, c.WriteQueueSize),
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
		rx:           make([]byte, c.ReadBufferSize),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		if c.Log {
			e.logger = slog.Default().With("t", "netlink")
		} else {
			e.logger = slog.New(slog.DiscardHandler)
		}
	}

	if e.dispatcher == nil {
		if c.DispatchWorkers > 0 {
			e.ownDispatcher = NewQueueDispatcher(c.DispatchWorkers)
			e.dispatcher = e.ownDispatcher
		} else {
			e.dispatcher = NewInlineDispatcher()
		}
	}

	e.metrics = newMetrics(e)
	if e.registerer != nil {
		if err := e.metrics.register(e.registerer, e.logger); err != nil {
			return nil, fmt.Errorf("error registering the metrics: %w", err)
		}
	}

	e.logger.Debug("engine ready", "portID", sock.PortID(), "pool", c.BufferPoolSize, "maxPending", c.MaxPendingRequests)

	return e, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() Config {
	return e.conf
}

// nextSeq hands out sequence numbers starting at 1. Zero is never used as
// that's what notifications carry.
func (e *Engine) nextSeq() uint32 {
	for {
		if s := e.seq.Add(1); s != 0 {
			return s
		}
	}
}

func (e *Engine) admit() error {
	if e.closed.Load() {
		return admissionError(ErrClosed)
	}
	if !e.pendingGuard.Allowed() {
		return admissionError(ErrTooManyPending)
	}
	return nil
}

// NewMessage checks admission and borrows a buffer for a generic netlink
// message. Nothing is borrowed when the engine would reject the request
// anyway.
func (e *Engine) NewMessage() (*Builder, error) {
	return e.newMessage(true)
}

// NewRawMessage is NewMessage for families without the generic header.
func (e *Engine) NewRawMessage() (*Builder, error) {
	return e.newMessage(false)
}

func (e *Engine) newMessage(genl bool) (*Builder, error) {
	if err := e.admit(); err != nil {
		e.counters.rejected.Add(1)
		return nil, err
	}
	buf, err := e.pool.Take()
	if err != nil {
		e.counters.rejected.Add(1)
		return nil, err
	}
	return NewBuilder(buf, genl), nil
}

// submit runs admission for a request and queues it. Any rejection is
// reported through reject before submit returns and leaves no trace: the
// message's buffer goes back to the pool and no token is held.
func (e *Engine) submit(cmd Command, flags netlink.HeaderFlags, msg *Message, timeout time.Duration,
	resolve func([][]byte, error) func(), reject func(error)) {

	rejectWith := func(err error) {
		e.counters.rejected.Add(1)
		e.logger.Debug("request rejected", "family", cmd.FamilyID(), "cmd", cmd.CommandID(), "err", err)
		reject(err)
	}

	buf := msg.take()

	if err := e.admit(); err != nil {
		if buf != nil {
			buf.Release()
		}
		rejectWith(err)
		return
	}
	if !e.pendingGuard.TokenInIfAllowed() {
		if buf != nil {
			buf.Release()
		}
		rejectWith(admissionError(ErrTooManyPending))
		return
	}

	genl := msg == nil || msg.genl
	if buf == nil {
		b, err := e.pool.Take()
		if err != nil {
			e.pendingGuard.TokenOut()
			rejectWith(err)
			return
		}
		buf = b
		buf.n = HeaderLen + GenlHeaderLen
		raw := buf.raw()
		for i := 0; i < buf.n; i++ {
			raw[i] = 0
		}
		nativeEndian.PutUint32(raw[0:4], uint32(buf.n))
	}

	if timeout <= 0 {
		timeout = e.conf.Timeout()
	}

	r := &pendingRequest{
		seq:     e.nextSeq(),
		family:  cmd.FamilyID(),
		command: cmd.CommandID(),
		buf:     buf,
		timeout: timeout,
		start:   time.Now(),
		resolve: resolve,
	}

	raw := buf.raw()
	nativeEndian.PutUint16(raw[4:6], cmd.FamilyID())
	nativeEndian.PutUint16(raw[6:8], uint16(flags|FlagRequest))
	nativeEndian.PutUint32(raw[8:12], r.seq)
	nativeEndian.PutUint32(raw[12:16], e.sock.PortID())
	if genl {
		raw[16] = cmd.CommandID()
		raw[17] = cmd.Version()
	}

	if err := e.table.register(r, e.expire); err != nil {
		e.pendingGuard.TokenOut()
		buf.Release()
		rejectWith(err)
		return
	}

	// Close may have drained the table between admit and register.
	if e.closed.Load() {
		if e.abort(r.seq) {
			rejectWith(admissionError(ErrClosed))
		}
		return
	}

	e.logger.Log(context.Background(), types.LevelTrace, "request queued", "seq", r.seq, "family", r.family, "cmd", r.command)

	if e.conf.BypassSendQueue && e.writeNow(r) {
		return
	}

	select {
	case e.queue <- r:
		select {
		case e.wake <- struct{}{}:
		default:
		}
	default:
		if e.abort(r.seq) {
			rejectWith(admissionError(ErrQueueFull))
		}
	}
}

// abort undoes the admission of a request that never made it onto the write
// queue. It reports false if a timeout got to it first.
func (e *Engine) abort(seq uint32) bool {
	r, ok := e.table.remove(seq)
	if !ok {
		return false
	}
	r.timer.Stop()
	r.buf.Release()
	r.buf = nil
	e.pendingGuard.TokenOut()
	return true
}

// writeNow writes r straight away when nothing is queued ahead of it. It
// returns false if r has to go through the queue instead.
func (e *Engine) writeNow(r *pendingRequest) bool {
	e.ioMu.Lock()
	if e.stalled != nil || len(e.queue) > 0 {
		e.unlock()
		return false
	}

	stalled := false
	if cur, ok := e.table.get(r.seq); ok && cur == r {
		done, err := e.writeRequest(r)
		switch {
		case err != nil:
			e.failWrite(r, err)
		case !done:
			e.stalled = r
			stalled = true
		}
	}
	e.unlock()

	if stalled {
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}
	return true
}

// finish drives r to its terminal state. r must already be out of the table
// and the caller must hold ioMu.
func (e *Engine) finish(r *pendingRequest, frames [][]byte, err error) {
	r.timer.Stop()
	r.buf.Release()
	r.buf = nil
	e.pendingGuard.TokenOut()

	e.metrics.Latency.Observe(time.Since(r.start).Seconds())

	switch {
	case err == nil:
		e.counters.completed.Add(1)
	case errors.Is(err, ErrTimeout):
		e.counters.expired.Add(1)
	default:
		e.counters.failed.Add(1)
	}

	e.batch = append(e.batch, r.resolve(frames, err))
}

// unlock releases ioMu and hands the callbacks collected while holding it
// over to the dispatcher as one batch.
func (e *Engine) unlock() {
	batch := e.batch
	e.batch = nil
	e.ioMu.Unlock()

	if len(batch) > 0 {
		e.dispatcher.Dispatch(batch)
	}
}

func (e *Engine) failWrite(r *pendingRequest, err error) {
	e.logger.Warn("couldn't write request", "seq", r.seq, "err", err)
	if cur, ok := e.table.remove(r.seq); ok {
		e.finish(cur, nil, transportError(err))
	}
}

// expire is run by the request's timer.
func (e *Engine) expire(seq uint32) {
	e.ioMu.Lock()
	if r, ok := e.table.remove(seq); ok {
		e.logger.Debug("request timed out", "seq", seq, "timeout", r.timeout)
		e.finish(r, nil, timeoutError(r.timeout))
	}
	e.unlock()
}

// HandleWriteEvent drains up to MaxBatchIOOps requests from the write queue
// onto the socket. It stops early when the socket isn't ready.
func (e *Engine) HandleWriteEvent() {
	e.ioMu.Lock()
	e.writeBatch()
	e.unlock()
}

func (e *Engine) writeBatch() {
	for i := 0; i < e.conf.MaxBatchIOOps; i++ {
		r := e.stalled
		if r != nil {
			e.stalled = nil
		} else {
			select {
			case r = <-e.queue:
			default:
				return
			}
		}

		// Requests that timed out while queued are gone from the table
		// and their buffer is back in the pool.
		if cur, ok := e.table.get(r.seq); !ok || cur != r {
			continue
		}

		done, err := e.writeRequest(r)
		if err != nil {
			e.failWrite(r, err)
			continue
		}
		if !done {
			e.stalled = r
			return
		}
	}
}

// writeRequest writes whatever is left of r. done is false when the socket
// took less than that.
func (e *Engine) writeRequest(r *pendingRequest) (done bool, err error) {
	b := r.buf.Bytes()[r.written:]
	n, err := e.sock.Write(b)
	if err != nil {
		return false, err
	}
	r.written += n
	if r.written < len(r.buf.Bytes()) {
		return false, nil
	}

	e.counters.sent.Add(1)
	e.logger.Log(context.Background(), types.LevelTrace, "request sent", "seq", r.seq, "len", r.written)
	return true, nil
}

// hasBacklog reports whether requests are waiting to be written.
func (e *Engine) hasBacklog() bool {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()
	return e.stalled != nil || len(e.queue) > 0
}

// HandleReadEvent performs up to MaxBatchIOOps reads, handling every complete
// frame. Frames split across reads are reassembled. Callbacks produced along
// the way run once the batch is over.
func (e *Engine) HandleReadEvent() error {
	e.ioMu.Lock()
	err := e.readBatch()
	e.unlock()
	return err
}

func (e *Engine) readBatch() error {
	for i := 0; i < e.conf.MaxBatchIOOps; i++ {
		n, err := e.sock.Read(e.rx[e.rxLen:])
		if err != nil {
			return transportError(err)
		}
		if n == 0 {
			return nil
		}
		e.rxLen += n

		// Padding of the last frame of the previous read.
		if e.rxSkip > 0 {
			skip := min(e.rxSkip, e.rxLen)
			e.rxLen = copy(e.rx, e.rx[skip:e.rxLen])
			e.rxSkip -= skip
		}

		consumed := e.parse(e.rx[:e.rxLen])
		if consumed > e.rxLen {
			e.rxSkip = consumed - e.rxLen
			consumed = e.rxLen
		}
		e.rxLen = copy(e.rx, e.rx[consumed:e.rxLen])
	}
	return nil
}

// parse handles every complete frame in b and returns how many bytes it
// consumed. Whatever is left is the beginning of a frame still to come. The
// count goes past the end of b when the padding of the last frame is still
// to be read.
func (e *Engine) parse(b []byte) int {
	off := 0
	for len(b)-off >= HeaderLen {
		l := int(nativeEndian.Uint32(b[off : off+4]))
		if l < HeaderLen || l > len(e.rx) {
			e.counters.malformed.Add(1)
			e.logger.Warn("abandoning read buffer after a frame with a bogus length", "len", l, "dropped", len(b)-off)
			return len(b)
		}
		if off+l > len(b) {
			break
		}

		e.counters.received.Add(1)
		e.handleFrame(b[off : off+l])

		off += alignLen(l)
	}
	return off
}

func (e *Engine) handleFrame(frame []byte) {
	typ := netlink.HeaderType(nativeEndian.Uint16(frame[4:6]))
	flags := netlink.HeaderFlags(nativeEndian.Uint16(frame[6:8]))
	seq := nativeEndian.Uint32(frame[8:12])

	switch typ {
	case TypeNoop:
		return
	case TypeOverrun:
		e.counters.malformed.Add(1)
		e.logger.Warn("kernel reported an overrun", "seq", seq)
		return
	}

	if seq == 0 && flags&FlagMulti == 0 {
		e.notify(uint16(typ), flags, frame)
		return
	}

	r, ok := e.table.get(seq)
	if !ok {
		e.counters.unknownSeq.Add(1)
		e.logger.Warn("dropping reply for unknown sequence number", "seq", seq, "type", typ)
		return
	}

	payload := frame[HeaderLen:]

	switch typ {
	case TypeError:
		if len(payload) < 4 {
			e.counters.malformed.Add(1)
			e.logger.Warn("skipping truncated error frame", "seq", seq, "len", len(frame))
			return
		}
		code := int32(nativeEndian.Uint32(payload[0:4]))
		if code == 0 {
			e.complete(seq, r.frames, nil)
			return
		}
		e.complete(seq, nil, protocolError(code, extAckMessage(flags, payload)))

	case TypeDone:
		if len(payload) >= 4 {
			if code := int32(nativeEndian.Uint32(payload[0:4])); code < 0 {
				e.complete(seq, nil, protocolError(code, ""))
				return
			}
		}
		e.complete(seq, r.frames, nil)

	default:
		if flags&FlagMulti != 0 {
			// The read buffer is reused, hence the copy.
			r.frames = append(r.frames, bytes.Clone(payload))
			return
		}
		e.complete(seq, append(r.frames, payload), nil)
	}
}

func (e *Engine) complete(seq uint32, frames [][]byte, err error) {
	r, ok := e.table.remove(seq)
	if !ok {
		return
	}
	if err != nil {
		e.logger.Debug("request failed", "seq", seq, "err", err)
	}
	e.finish(r, frames, err)
}

// extAckMessage extracts the kernel's error message from the extended ACK
// attributes trailing an error frame, if any.
func extAckMessage(flags netlink.HeaderFlags, payload []byte) string {
	if flags&flagAckTLVs == 0 {
		return ""
	}

	// struct nlmsgerr: the error code and the offending request's header,
	// followed by its payload unless the kernel capped it.
	off := 4 + HeaderLen
	if len(payload) < off {
		return ""
	}
	if flags&flagCapped == 0 {
		off = 4 + alignLen(int(nativeEndian.Uint32(payload[4:8])))
	}
	if off > len(payload) {
		return ""
	}

	msg, _, err := Get(Attrs(payload[off:]), Attr[string](extAckAttrMsg))
	if err != nil {
		return ""
	}
	return msg
}

func (e *Engine) notify(typ uint16, flags netlink.HeaderFlags, frame []byte) {
	if e.onNotify == nil {
		e.counters.notificationsDropped.Add(1)
		e.logger.Debug("dropping notification: no handler", "type", typ)
		return
	}

	// Notifications yield to requests: a flood of them mustn't starve the
	// replies callers are waiting for.
	if !e.pendingGuard.Allowed() || !e.notifyGuard.TokenInIfAllowed() {
		e.counters.notificationsDropped.Add(1)
		e.logger.Debug("dropping notification: throttled", "type", typ,
			"pending", e.pendingGuard.Count(), "notifications", e.notifyGuard.Count())
		return
	}

	e.counters.notifications.Add(1)
	n := Notification{
		Type:    typ,
		Flags:   flags,
		PortID:  nativeEndian.Uint32(frame[12:16]),
		Payload: bytes.Clone(frame[HeaderLen:]),
	}
	h := e.onNotify
	e.batch = append(e.batch, func() {
		defer e.notifyGuard.TokenOut()
		h(n)
	})
}

// Run drives the engine from the socket's readiness notifications until ctx
// is done or the engine is closed.
func (e *Engine) Run(ctx context.Context) error {
	ps, ok := e.sock.(PollableSocket)
	if !ok {
		return fmt.Errorf("socket %T can't report readiness", e.sock)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-e.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.readLoop(ctx, ps) })
	g.Go(func() error { return e.writeLoop(ctx, ps) })

	err := g.Wait()
	if errors.Is(err, context.Canceled) || e.closed.Load() {
		return nil
	}
	return err
}

func (e *Engine) readLoop(ctx context.Context, ps PollableSocket) error {
	for {
		if err := ps.WaitReadable(ctx); err != nil {
			if ctx.Err() != nil || e.closed.Load() {
				return nil
			}
			return fmt.Errorf("waiting for the socket to become readable: %w", err)
		}

		if err := e.HandleReadEvent(); err != nil {
			if e.closed.Load() {
				return nil
			}
			e.logger.Warn("error reading from socket", "err", err)
		}
	}
}

func (e *Engine) writeLoop(ctx context.Context, ps PollableSocket) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-e.wake:
		}

		for e.hasBacklog() {
			e.HandleWriteEvent()
			if !e.stalledWrite() {
				continue
			}
			if err := ps.WaitWritable(ctx); err != nil {
				if ctx.Err() != nil || e.closed.Load() {
					return nil
				}
				return fmt.Errorf("waiting for the socket to become writable: %w", err)
			}
		}
	}
}

func (e *Engine) stalledWrite() bool {
	e.ioMu.Lock()
	defer e.ioMu.Unlock()
	return e.stalled != nil
}

// Close stops accepting requests and fails every request still in flight.
// The socket is closed as well if it's an io.Closer.
func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)

		e.ioMu.Lock()
		rs := e.table.drain()
		for _, r := range rs {
			e.finish(r, nil, transportError(ErrClosed))
		}
		e.stalled = nil
		for len(e.queue) > 0 {
			<-e.queue
		}
		e.unlock()

		if e.ownDispatcher != nil {
			e.ownDispatcher.Close()
		}

		e.logger.Debug("engine closed", "failed", len(rs))

		if c, ok := e.sock.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

// Stats returns a snapshot of the engine's state and counters.
func (e *Engine) Stats() types.Stats {
	return types.Stats{
		PortID:               e.sock.PortID(),
		Pending:              e.table.len(),
		PendingNotifications: e.notifyGuard.Count(),
		QueuedWrites:         len(e.queue),
		BuffersAvailable:     e.pool.Available(),
		BuffersTotal:         e.pool.Cap(),

		Sent:      e.counters.sent.Load(),
		Completed: e.counters.completed.Load(),
		Failed:    e.counters.failed.Load(),
		Expired:   e.counters.expired.Load(),
		Rejected:  e.counters.rejected.Load(),

		Received:             e.counters.received.Load(),
		Notifications:        e.counters.notifications.Load(),
		NotificationsDropped: e.counters.notificationsDropped.Load(),
		UnknownSeq:           e.counters.unknownSeq.Load(),
		Malformed:            e.counters.malformed.Load(),
	}
}
