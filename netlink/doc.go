// Package netlink implements an asynchronous request/reply engine for
// netlink sockets.
//
// An Engine owns one socket. Callers build messages with a Builder borrowed
// from the engine's bounded buffer pool, then submit them with NewRequest:
//
//	b, err := e.NewMessage()
//	if err != nil {
//		return err
//	}
//	netlink.Put(b, familyName, "my_family")
//	msg, err := b.Build()
//	if err != nil {
//		return err
//	}
//	netlink.NewRequest[uint16](e, getFamily).
//		WithPayload(msg).
//		WithCallback(cb, translate).
//		Send()
//
// Every request resolves exactly once to a value, a protocol error, a
// transport error or a timeout. Requests the engine can't take on (too many
// in flight, pool exhausted, queue full, engine closed) are rejected
// synchronously through the same callback.
//
// The engine is driven either by Run, which waits on the socket's readiness,
// or by calling HandleReadEvent and HandleWriteEvent from an existing event
// loop.
package netlink
