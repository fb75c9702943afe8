// Package rtcsync holds the process-wide configuration for the rtcsync
// packages: option defaults, YAML loading and logging setup.
//
// The concurrency primitives live in subpackages:
//
//   - callback: single-handler event slots, with optional replay of the
//     latest event raised before a handler was set
//   - lifetime: liveness tokens and binders that turn late events for a
//     closed object into no-ops
//   - scope: run-once cleanup guards and LIFO cleanup groups
//   - handle: shared, movable ownership of hidden state
//
// Package peer builds WebRTC connections and data channels on top of
// them, and package noise secures a message stream with a Noise
// handshake.
//
// # Getting Started
//
//	options, err := rtcsync.LoadOptions("rtcloop.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := rtcsync.ConfigureLogging(options.LogLevel); err != nil {
//	    log.Fatal(err)
//	}
//
//	conn, err := peer.New(options.PeerConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
package rtcsync
