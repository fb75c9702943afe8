// Package handle hides the state of public types behind a shared,
// reference-counted pointer.
//
// A public type embeds one [Handle] over its unexported implementation
// struct and forwards every method to it:
//
//	type Channel struct {
//	    h handle.Handle[channelImpl]
//	}
//
//	func (c *Channel) Label() string { return c.h.Access().label }
//
// Callers never see or allocate channelImpl. Ownership moves with
// [Handle.MoveTo], which leaves the source empty, and is shared only
// explicitly through [Handle.ShareTo]. When the last holder calls
// [Handle.Release] and the implementation implements io.Closer, it is
// closed.
//
// Handles must not be copied: go vet reports copies, and a copied handle
// would bypass the reference count.
package handle
