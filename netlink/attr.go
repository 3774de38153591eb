package netlink

import (
	"bytes"
	"errors"

	"github.com/josharian/native"
)

var nativeEndian = native.Endian

// AttrValue lists the Go types an attribute payload can be decoded into.
// Booleans map to flag attributes (present or absent, no payload), strings
// are NUL-terminated on the wire and Attrs holds a nested attribute stream.
type AttrValue interface {
	uint8 | uint16 | uint32 | uint64 | int32 | int64 | bool | string | []byte | Attrs
}

// AttrKey binds an attribute type number to the Go type of its payload.
type AttrKey[T AttrValue] struct {
	ID uint16
}

// Attr declares a typed attribute key.
func Attr[T AttrValue](id uint16) AttrKey[T] {
	return AttrKey[T]{ID: id}
}

// Attrs is a sequence of netlink attributes, as found in a message body or in
// the payload of a nested attribute.
type Attrs []byte

// Each walks the attributes in order. It fails with ErrTruncated as soon as
// an attribute header claims more bytes than there are left, without ever
// reading past the end of a.
func (a Attrs) Each(fn func(typ uint16, payload Attrs) error) error {
	for len(a) > 0 {
		if len(a) < AttrHeaderLen {
			return encodingError(ErrTruncated, "%d trailing bytes can't hold an attribute header", len(a))
		}

		l := int(nativeEndian.Uint16(a[0:2]))
		typ := nativeEndian.Uint16(a[2:4]) & attrTypeMask
		if l < AttrHeaderLen || l > len(a) {
			return encodingError(ErrTruncated, "attribute %d declares %d bytes but %d remain", typ, l, len(a))
		}

		if err := fn(typ, a[AttrHeaderLen:l:l]); err != nil {
			return err
		}

		// The padding of the last attribute may be omitted.
		next := alignLen(l)
		if next > len(a) {
			next = len(a)
		}
		a = a[next:]
	}
	return nil
}

var errStop = errors.New("stop")

func (a Attrs) find(id uint16) (Attrs, bool, error) {
	var (
		found   Attrs
		present bool
	)
	err := a.Each(func(typ uint16, payload Attrs) error {
		if typ != id {
			return nil
		}
		found, present = payload, true
		return errStop
	})
	if err != nil && err != errStop {
		return nil, false, err
	}
	return found, present, nil
}

// List returns the payload of every attribute nested within the attribute
// identified by key. This is how the kernel encodes arrays such as the list
// of multicast groups of a family.
func (a Attrs) List(key AttrKey[Attrs]) ([]Attrs, error) {
	nested, ok, err := Get(a, key)
	if err != nil || !ok {
		return nil, err
	}

	entries := []Attrs{}
	err = nested.Each(func(_ uint16, payload Attrs) error {
		entries = append(entries, payload)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Get looks key up in a and decodes its payload. A missing attribute is not
// an error: ok is simply false.
func Get[T AttrValue](a Attrs, key AttrKey[T]) (v T, ok bool, err error) {
	payload, ok, err := a.find(key.ID)
	if err != nil || !ok {
		return v, false, err
	}
	v, err = decodeValue[T](key.ID, payload)
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

func decodeValue[T AttrValue](id uint16, p Attrs) (T, error) {
	var v T

	checkLen := func(want int) error {
		if len(p) != want {
			return encodingError(ErrAttrLength, "attribute %d is %d bytes long; want %d", id, len(p), want)
		}
		return nil
	}

	switch dst := any(&v).(type) {
	case *uint8:
		if err := checkLen(1); err != nil {
			return v, err
		}
		*dst = p[0]
	case *uint16:
		if err := checkLen(2); err != nil {
			return v, err
		}
		*dst = nativeEndian.Uint16(p)
	case *uint32:
		if err := checkLen(4); err != nil {
			return v, err
		}
		*dst = nativeEndian.Uint32(p)
	case *uint64:
		if err := checkLen(8); err != nil {
			return v, err
		}
		*dst = nativeEndian.Uint64(p)
	case *int32:
		if err := checkLen(4); err != nil {
			return v, err
		}
		*dst = int32(nativeEndian.Uint32(p))
	case *int64:
		if err := checkLen(8); err != nil {
			return v, err
		}
		*dst = int64(nativeEndian.Uint64(p))
	case *bool:
		*dst = true
	case *string:
		if i := bytes.IndexByte(p, 0); i >= 0 {
			p = p[:i]
		}
		*dst = string(p)
	case *[]byte:
		*dst = bytes.Clone(p)
	case *Attrs:
		*dst = p
	}

	return v, nil
}

// encodedLen returns the payload length of v, excluding the attribute header
// and padding.
func encodedLen[T AttrValue](v T) int {
	switch x := any(v).(type) {
	case uint8:
		return 1
	case uint16:
		return 2
	case uint32, int32:
		return 4
	case uint64, int64:
		return 8
	case bool:
		return 0
	case string:
		return len(x) + 1
	case []byte:
		return len(x)
	case Attrs:
		return len(x)
	}
	return 0
}

func encodeValue[T AttrValue](dst []byte, v T) {
	switch x := any(v).(type) {
	case uint8:
		dst[0] = x
	case uint16:
		nativeEndian.PutUint16(dst, x)
	case uint32:
		nativeEndian.PutUint32(dst, x)
	case uint64:
		nativeEndian.PutUint64(dst, x)
	case int32:
		nativeEndian.PutUint32(dst, uint32(x))
	case int64:
		nativeEndian.PutUint64(dst, uint64(x))
	case string:
		copy(dst, x)
		dst[len(x)] = 0
	case []byte:
		copy(dst, x)
	case Attrs:
		copy(dst, x)
	}
}

// putAttrHeader writes an nlattr header at dst[0:4].
func putAttrHeader(dst []byte, typ uint16, payloadLen int) {
	nativeEndian.PutUint16(dst[0:2], uint16(AttrHeaderLen+payloadLen))
	nativeEndian.PutUint16(dst[2:4], typ)
}
