// Package lifetime binds callbacks to the liveness of the object that
// owns them.
//
// Network goroutines often hold handlers that call methods on objects the
// application may close at any moment. A [Token] is the object's liveness
// record: [Token.Acquire] succeeds only while the owner is alive and
// keeps it alive until the returned release func is called, and
// [Token.End] revokes it. Teardown registered with [Token.OnRelease] runs
// once the token has ended and every in-flight call has finished.
//
// The Bind helpers wrap a method value so that calling it after the owner
// ended is a silent no-op returning the zero value:
//
//	type Conn struct {
//	    token *lifetime.Token
//	}
//
//	func (c *Conn) Token() *lifetime.Token { return c.token }
//
//	func (c *Conn) handleMessage(data []byte) { ... }
//
//	slot.Set(lifetime.Bind(c, c.handleMessage))
//	c.token.End() // later invocations of the slot do nothing
package lifetime
