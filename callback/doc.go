// Package callback provides synchronized callback slots for event delivery
// between network goroutines and application code.
//
// A [Slot] holds at most one handler for a named event. Transport
// goroutines call [Slot.Invoke] whenever their state machine produces the
// event, while the application may call [Slot.Set] at any time from any
// goroutine, including from inside the handler itself:
//
//	var onMessage callback.Slot[[]byte]
//
//	onMessage.Set(func(data []byte) {
//	    fmt.Printf("received %d bytes\n", len(data))
//	})
//
//	// on the network goroutine
//	onMessage.Invoke(payload)
//
// # Replay
//
// A [ReplayingSlot] remembers the most recent invocation that found no
// handler installed and delivers it once, synchronously, when a handler is
// later set. This closes the race where an event such as "channel open"
// fires before the application registered for it:
//
//	var onOpen callback.ReplayingSlot[struct{}]
//
//	onOpen.Invoke(struct{}{}) // no handler yet, buffered
//	onOpen.Set(func(struct{}) { // runs immediately with the buffered event
//	    log.Println("open")
//	})
//
// Only the latest miss is kept. Events that must be delivered every time
// (messages, candidates) belong in a plain [Slot].
//
// # Locking
//
// Handlers are never called with the slot lock held, so a handler may
// set, clear or invoke the slot it was called from. [Slot.MoveFrom] and
// [Slot.CopyFrom] lock both slots in a fixed global order, which keeps two
// goroutines assigning slots to each other from deadlocking.
package callback
