// Package peer exposes WebRTC peer connections and data channels through
// stable public types whose events are delivered with callback slots.
//
// pion/webrtc raises events on its own goroutines. Each [Connection] and
// [Channel] forwards those events into slots bound to the object's
// lifetime, so handlers registered late still see one-shot events and
// nothing fires after Close:
//
//	conn, err := peer.New(peer.Config{IncludeLoopback: true})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	ch, err := conn.CreateDataChannel("chat", nil)
//	if err != nil {
//	    return err
//	}
//	ch.OnMessage(func(msg peer.Message) {
//	    fmt.Printf("%s\n", msg.Data)
//	})
//	ch.OnOpen(func() { ch.SendText("hello") })
//
// # Replay policy
//
// One-shot and state events replay the latest event missed before a
// handler was set: Channel.OnOpen, Channel.OnClosed, Channel.OnError,
// Connection.OnStateChange and Connection.OnGatheringStateChange.
// Events that carry distinct data each time are not replayed:
// Channel.OnMessage, Channel.OnBufferedAmountLow,
// Connection.OnLocalCandidate and Connection.OnDataChannel. An inbound
// data channel that arrives with no OnDataChannel handler set is closed.
//
// # Signalling
//
// Signalling is left to the caller. CreateOffer and CreateAnswer wait for
// ICE gathering to finish (vanilla ICE), so a single offer/answer round
// trip is enough. Trickle ICE is available through OnLocalCandidate and
// AddRemoteCandidate. [Negotiate] runs the round trip between two
// connections in the same process.
package peer
