// Package noise secures a message transport with a Noise Protocol Framework
// handshake and raises the session's events through callback slots.
//
// The handshake uses the flynn/noise library with Curve25519 key exchange,
// ChaCha20-Poly1305 encryption and SHA256 hashing.
//
// # Pattern Selection Guide
//
//	Pattern │ When to Use                               │ Messages
//	────────┼───────────────────────────────────────────┼─────────
//	IK      │ Initiator knows responder's public key    │ 2
//	XX      │ Neither party knows the other's key       │ 3
//
// Both sides must be configured with the same pattern.
//
// # Sessions
//
// A [Session] drives the handshake over any [Transport], typically a data
// channel, and is fed inbound bytes through [Session.HandleIncoming]:
//
//	sess, err := noise.NewSession(noise.TransportFunc(channel.Send), noise.Config{
//	    Role:      noise.Initiator,
//	    Pattern:   noise.PatternXX,
//	    StaticKey: keys,
//	})
//	channel.OnMessage(lifetime.Bind(sess, func(msg peer.Message) {
//	    sess.HandleIncoming(msg.Data)
//	}))
//	sess.OnEstablished(func(remoteKey []byte) { ... })
//	sess.OnMessage(func(plaintext []byte) { ... })
//	err = sess.Start()
//
// OnEstablished and OnError replay the last event missed before a handler
// was registered, so a handshake that completes before the application
// subscribes is still reported. OnMessage does not replay.
//
// # Thread Safety
//
// All Session methods are safe for concurrent use. Transport.Send must not
// deliver synchronously into the session that called it.
package noise
