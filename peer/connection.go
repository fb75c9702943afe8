package peer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rtcsync/callback"
	"github.com/opd-ai/rtcsync/handle"
	"github.com/opd-ai/rtcsync/lifetime"
	"github.com/opd-ai/rtcsync/scope"
)

// GatheringState is the progress of local ICE candidate gathering.
type GatheringState int

const (
	GatheringNew GatheringState = iota
	GatheringInProgress
	GatheringComplete
)

func (s GatheringState) String() string {
	switch s {
	case GatheringNew:
		return "new"
	case GatheringInProgress:
		return "gathering"
	case GatheringComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Connection is a WebRTC peer connection carrying data channels.
type Connection struct {
	id    string
	token *lifetime.Token
	h     handle.Handle[connectionImpl]

	// closeErr is written by the token finalizer before Done closes.
	closeErr error
}

type connectionImpl struct {
	id  string
	pc  *webrtc.PeerConnection
	cfg Config

	// cleanup closes owned channels, then the peer connection.
	cleanup scope.Group

	onStateChange          callback.ReplayingSlot[webrtc.PeerConnectionState]
	onGatheringStateChange callback.ReplayingSlot[GatheringState]
	onLocalCandidate       callback.Slot[webrtc.ICECandidateInit]
	onDataChannel          callback.Slot[*Channel]
}

// New creates a peer connection.
func New(cfg Config) (*Connection, error) {
	pc, err := cfg.api().NewPeerConnection(cfg.configuration())
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	c := &Connection{
		id:    uuid.NewString(),
		token: lifetime.NewToken(),
	}
	impl := &connectionImpl{id: c.id, pc: pc, cfg: cfg}
	impl.cleanup.Add(pc.Close)
	c.h.Init(impl)
	c.token.OnRelease(func() { c.closeErr = c.h.Release() })

	pc.OnConnectionStateChange(lifetime.Bind(c, impl.handleStateChange))
	pc.OnICECandidate(lifetime.Bind(c, impl.handleCandidate))
	pc.OnDataChannel(lifetime.Bind(c, impl.handleDataChannel))

	logrus.WithFields(logrus.Fields{
		"function":    "New",
		"connection":  c.id,
		"ice_servers": len(cfg.ICEServers),
	}).Debug("Peer connection created")
	return c, nil
}

func (impl *connectionImpl) handleStateChange(state webrtc.PeerConnectionState) {
	logrus.WithFields(logrus.Fields{
		"function":   "handleStateChange",
		"connection": impl.id,
		"state":      state.String(),
	}).Info("Peer connection state changed")
	impl.onStateChange.Invoke(state)
}

// handleCandidate receives local candidates; nil marks the end of
// gathering.
func (impl *connectionImpl) handleCandidate(candidate *webrtc.ICECandidate) {
	if candidate == nil {
		impl.onGatheringStateChange.Invoke(GatheringComplete)
		return
	}
	impl.onLocalCandidate.Invoke(candidate.ToJSON())
}

func (impl *connectionImpl) handleDataChannel(dc *webrtc.DataChannel) {
	ch := impl.own(newChannel(dc))

	if !impl.onDataChannel.Invoke(ch) {
		logrus.WithFields(logrus.Fields{
			"function":   "handleDataChannel",
			"connection": impl.id,
			"label":      dc.Label(),
		}).Warn("No data channel handler set, closing inbound channel")
		ch.Close()
	}
}

// own closes ch with the connection unless ch is closed first.
func (impl *connectionImpl) own(ch *Channel) *Channel {
	remove := impl.cleanup.Push(ch.Close)
	ch.token.OnRelease(remove)
	return ch
}

// Close implements io.Closer for the handle's last release.
func (impl *connectionImpl) Close() error {
	err := impl.cleanup.Close()
	impl.onStateChange.Reset()
	impl.onGatheringStateChange.Reset()
	impl.onLocalCandidate.Reset()
	impl.onDataChannel.Reset()
	return err
}

func (c *Connection) impl() (*connectionImpl, error) {
	if !c.token.Alive() {
		return nil, ErrClosed
	}
	impl, err := c.h.Get()
	if err != nil {
		return nil, ErrClosed
	}
	return impl, nil
}

// ID returns a process-unique identifier for log correlation.
func (c *Connection) ID() string {
	return c.id
}

// Token implements lifetime.Observable. It ends when the connection closes.
func (c *Connection) Token() *lifetime.Token {
	return c.token
}

// ConnectionState returns the current state, or closed after Close.
func (c *Connection) ConnectionState() webrtc.PeerConnectionState {
	impl, err := c.impl()
	if err != nil {
		return webrtc.PeerConnectionStateClosed
	}
	return impl.pc.ConnectionState()
}

// OnStateChange sets the connection state handler. The latest state
// reached before a handler was set is replayed.
func (c *Connection) OnStateChange(fn func(state webrtc.PeerConnectionState)) {
	if impl, err := c.impl(); err == nil {
		impl.onStateChange.Set(fn)
	}
}

// OnGatheringStateChange sets the candidate gathering handler. The latest
// state reached before a handler was set is replayed.
func (c *Connection) OnGatheringStateChange(fn func(state GatheringState)) {
	if impl, err := c.impl(); err == nil {
		impl.onGatheringStateChange.Set(fn)
	}
}

// OnLocalCandidate sets the handler for trickled local candidates.
func (c *Connection) OnLocalCandidate(fn func(candidate webrtc.ICECandidateInit)) {
	if impl, err := c.impl(); err == nil {
		impl.onLocalCandidate.Set(fn)
	}
}

// OnDataChannel sets the handler for channels opened by the remote peer.
// The handler owns the channel; inbound channels arriving with no handler
// set are closed.
func (c *Connection) OnDataChannel(fn func(ch *Channel)) {
	if impl, err := c.impl(); err == nil {
		impl.onDataChannel.Set(fn)
	}
}

// CreateDataChannel opens a channel to the peer. An empty label is
// replaced with a generated one. The channel is closed with the connection
// if the caller has not closed it first.
func (c *Connection) CreateDataChannel(label string, opts *ChannelOptions) (*Channel, error) {
	impl, err := c.impl()
	if err != nil {
		return nil, err
	}
	if label == "" {
		label = "channel-" + uuid.NewString()[:8]
	}

	dc, err := impl.pc.CreateDataChannel(label, opts.init())
	if err != nil {
		return nil, fmt.Errorf("creating data channel %q: %w", label, err)
	}
	ch := impl.own(newChannel(dc))

	logrus.WithFields(logrus.Fields{
		"function":   "CreateDataChannel",
		"connection": impl.id,
		"label":      label,
	}).Debug("Data channel created")
	return ch, nil
}

// CreateOffer creates an offer, applies it locally and returns it once
// candidate gathering has finished.
func (c *Connection) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	impl, err := c.impl()
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := impl.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("creating offer: %w", err)
	}
	return impl.applyLocal(ctx, offer)
}

// CreateAnswer answers the remote offer set with SetRemoteDescription,
// applies it locally and returns it once candidate gathering has finished.
func (c *Connection) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	impl, err := c.impl()
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := impl.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("creating answer: %w", err)
	}
	return impl.applyLocal(ctx, answer)
}

func (impl *connectionImpl) applyLocal(ctx context.Context, desc webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	gatherComplete := webrtc.GatheringCompletePromise(impl.pc)
	if err := impl.pc.SetLocalDescription(desc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("setting local %s: %w", desc.Type, err)
	}
	impl.onGatheringStateChange.Invoke(GatheringInProgress)

	timeout := impl.cfg.gatherTimeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-gatherComplete:
	case <-timer.C:
		return webrtc.SessionDescription{}, fmt.Errorf("ICE gathering timed out after %s", timeout)
	case <-ctx.Done():
		return webrtc.SessionDescription{}, ctx.Err()
	}

	local := impl.pc.LocalDescription()
	if local == nil {
		return webrtc.SessionDescription{}, fmt.Errorf("no local %s after gathering", desc.Type)
	}
	return *local, nil
}

// SetRemoteDescription applies the peer's offer or answer.
func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	impl, err := c.impl()
	if err != nil {
		return err
	}
	if err := impl.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("setting remote %s: %w", desc.Type, err)
	}
	return nil
}

// AddRemoteCandidate adds a trickled candidate from the peer.
func (c *Connection) AddRemoteCandidate(candidate webrtc.ICECandidateInit) error {
	impl, err := c.impl()
	if err != nil {
		return err
	}
	if err := impl.pc.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("adding remote candidate: %w", err)
	}
	return nil
}

// Close closes every channel still owned by the connection, then the
// connection itself. Handlers bound to the connection's token stop firing
// at once; teardown waits for a bound call that is still running, so Close
// may be called from inside a handler and then returns nil. Closing again
// returns the same result.
func (c *Connection) Close() error {
	c.token.End()
	err := releaseResult(c.token, &c.closeErr)

	logrus.WithFields(logrus.Fields{
		"function":   "Close",
		"connection": c.id,
	}).Debug("Peer connection closed")
	return err
}

// Negotiate runs an offer/answer exchange between two connections in the
// same process.
func Negotiate(ctx context.Context, offerer, answerer *Connection) error {
	offer, err := offerer.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("offerer: %w", err)
	}
	if err := answerer.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("answerer: %w", err)
	}
	answer, err := answerer.CreateAnswer(ctx)
	if err != nil {
		return fmt.Errorf("answerer: %w", err)
	}
	if err := offerer.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("offerer: %w", err)
	}
	return nil
}
