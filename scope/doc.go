// Package scope provides single-owner cleanup guards.
//
// A [Guard] runs one action exactly once when its scope exits, however
// the scope exits:
//
//	pc, err := webrtc.NewPeerConnection(config)
//	if err != nil {
//	    return err
//	}
//	guard := scope.New(func() { pc.Close() })
//	defer guard.Run()
//
//	if err := negotiate(pc); err != nil {
//	    return err // pc closed
//	}
//	guard.Dismiss() // success, pc handed to the caller
//	return nil
//
// A [Group] stacks several error-returning cleanups and runs them in
// reverse order, aggregating failures with go-multierror.
//
// Guards and groups must not be copied; go vet reports copies.
package scope
