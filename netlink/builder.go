package netlink

import "math"

// Builder assembles a single message into a borrowed buffer. It reserves room
// for the wire header (and the generic netlink header if asked to) so that
// the engine can fill those in once a sequence number has been assigned.
//
// Errors are sticky: after the first failure every further call is a no-op
// and Build reports the original error.
type Builder struct {
	buf   *Buffer
	genl  bool
	err   error
	built bool
}

// NewBuilder wraps buf, which the builder now owns.
func NewBuilder(buf *Buffer, genl bool) *Builder {
	b := &Builder{buf: buf, genl: genl}

	hdr := HeaderLen
	if genl {
		hdr += GenlHeaderLen
	}
	if buf.Cap() < hdr {
		b.err = encodingError(ErrBufferFull, "buffer of %d bytes can't hold a header", buf.Cap())
		return b
	}

	raw := buf.raw()
	for i := 0; i < hdr; i++ {
		raw[i] = 0
	}
	buf.n = hdr

	return b
}

// Err returns the first error the builder ran into.
func (b *Builder) Err() error {
	return b.err
}

// Len returns the number of bytes written so far, headers included.
func (b *Builder) Len() int {
	if b.buf == nil {
		return 0
	}
	return b.buf.n
}

// reserve grows the message by n bytes (padded) and returns the region.
func (b *Builder) reserve(n int) []byte {
	if b.built {
		b.err = encodingError(ErrBuilderDone, "can't append to a built message")
		return nil
	}
	if b.err != nil {
		return nil
	}

	raw := b.buf.raw()
	start := b.buf.n
	end := start + alignLen(n)
	if end > len(raw) {
		b.err = encodingError(ErrBufferFull, "need %d bytes but only %d remain", alignLen(n), len(raw)-start)
		return nil
	}

	region := raw[start:end]
	for i := n; i < len(region); i++ {
		region[i] = 0
	}
	b.buf.n = end

	return region[:n]
}

// Raw appends p verbatim (padded to the attribute alignment). It is meant for
// fixed family headers such as struct ovs_header.
func (b *Builder) Raw(p []byte) *Builder {
	if dst := b.reserve(len(p)); dst != nil {
		copy(dst, p)
	}
	return b
}

// Nest writes a nested attribute whose children are the attributes appended
// by fn.
func (b *Builder) Nest(key AttrKey[Attrs], fn func(*Builder)) *Builder {
	hdr := b.reserve(AttrHeaderLen)
	if hdr == nil {
		return b
	}
	start := b.buf.n

	fn(b)
	if b.err != nil {
		return b
	}

	l := b.buf.n - start
	if AttrHeaderLen+l > math.MaxUint16 {
		b.err = encodingError(ErrAttrLength, "nested attribute %d holds %d bytes, more than fits in its length field", key.ID, l)
		return b
	}
	putAttrHeader(hdr, key.ID|attrFlagNested, l)
	return b
}

// Put appends a typed attribute to b. Flag attributes set to false are
// omitted altogether.
func Put[T AttrValue](b *Builder, key AttrKey[T], v T) error {
	if flag, ok := any(v).(bool); ok && !flag {
		return b.err
	}

	l := encodedLen(v)
	if b.err == nil && !b.built && AttrHeaderLen+l > math.MaxUint16 {
		b.err = encodingError(ErrAttrLength, "attribute %d has %d bytes of payload, more than fits in its length field", key.ID, l)
		return b.err
	}
	dst := b.reserve(AttrHeaderLen + l)
	if dst == nil {
		return b.err
	}

	putAttrHeader(dst, key.ID, l)
	encodeValue(dst[AttrHeaderLen:], v)
	return nil
}

// Build back-patches the length field and hands the buffer over to the
// returned message. The builder can't be used afterwards.
func (b *Builder) Build() (*Message, error) {
	if b.built {
		return nil, encodingError(ErrBuilderDone, "message already built")
	}
	if b.err != nil {
		b.abandon()
		return nil, b.err
	}

	b.built = true
	raw := b.buf.raw()
	nativeEndian.PutUint32(raw[0:4], uint32(b.buf.n))

	m := &Message{buf: b.buf, genl: b.genl}
	b.buf = nil
	return m, nil
}

// Release gives the buffer back when the message won't be built after all.
// It is a no-op once Build has been called.
func (b *Builder) Release() {
	b.abandon()
}

// abandon gives the buffer back after a failed build.
func (b *Builder) abandon() {
	b.built = true
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

// Message is a fully built wire message waiting to be sent. Sending moves the
// buffer into the engine; a message that is never sent must be released.
type Message struct {
	buf  *Buffer
	genl bool
}

// Bytes exposes the encoded message, headers included.
func (m *Message) Bytes() []byte {
	if m == nil || m.buf == nil {
		return nil
	}
	return m.buf.Bytes()
}

// Attrs returns the attribute section of the message, after the headers and
// skipping hdrLen bytes of family specific header.
func (m *Message) Attrs(hdrLen int) Attrs {
	b := m.Bytes()
	off := HeaderLen + alignLen(hdrLen)
	if m.genl {
		off += GenlHeaderLen
	}
	if off > len(b) {
		return nil
	}
	return Attrs(b[off:])
}

// Release returns the buffer of a message that won't be sent.
func (m *Message) Release() {
	if buf := m.take(); buf != nil {
		buf.Release()
	}
}

func (m *Message) take() *Buffer {
	if m == nil {
		return nil
	}
	buf := m.buf
	m.buf = nil
	return buf
}
