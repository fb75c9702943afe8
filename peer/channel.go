package peer

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rtcsync/callback"
	"github.com/opd-ai/rtcsync/handle"
	"github.com/opd-ai/rtcsync/lifetime"
	"github.com/opd-ai/rtcsync/limits"
	"github.com/opd-ai/rtcsync/scope"
)

// ErrClosed is returned by operations on a closed Channel or Connection.
var ErrClosed = errors.New("peer: closed")

// Message is one data channel message.
type Message struct {
	Data   []byte
	IsText bool
}

// Channel is a data channel. Its state lives behind a shared handle and
// its events are raised on pion goroutines.
type Channel struct {
	token *lifetime.Token
	h     handle.Handle[channelImpl]

	// closeErr is written by the token finalizer before Done closes.
	closeErr error
}

type channelImpl struct {
	dc    *webrtc.DataChannel
	label string

	// closeOnce closes the pion channel and raises OnClosed, whichever of
	// Close or the remote side gets there first.
	closeOnce *scope.Guard

	onOpen              callback.ReplayingSlot[struct{}]
	onClosed            callback.ReplayingSlot[struct{}]
	onError             callback.ReplayingSlot[error]
	onMessage           callback.Slot[Message]
	onBufferedAmountLow callback.Slot[struct{}]
}

// newChannel wraps dc and routes its events into the channel's slots.
func newChannel(dc *webrtc.DataChannel) *Channel {
	c := &Channel{token: lifetime.NewToken()}
	impl := &channelImpl{dc: dc, label: dc.Label()}
	impl.closeOnce = scope.New(impl.shutdown)
	c.h.Init(impl)
	c.token.OnRelease(func() { c.closeErr = c.h.Release() })

	// pion calls the open handler itself, also for a channel that is
	// already open when it is attached.
	dc.OnOpen(lifetime.Bind0(c, impl.handleOpen))
	dc.OnClose(lifetime.Bind0(c, impl.closeOnce.Run))
	dc.OnError(lifetime.Bind(c, impl.handleError))
	dc.OnMessage(lifetime.Bind(c, impl.handleMessage))
	dc.OnBufferedAmountLow(lifetime.Bind0(c, impl.handleBufferedAmountLow))
	return c
}

func (impl *channelImpl) handleOpen() {
	logrus.WithFields(logrus.Fields{
		"function": "handleOpen",
		"label":    impl.label,
	}).Debug("Data channel open")
	impl.onOpen.Invoke(struct{}{})
}

func (impl *channelImpl) handleError(err error) {
	logrus.WithFields(logrus.Fields{
		"function": "handleError",
		"label":    impl.label,
		"error":    err.Error(),
	}).Warn("Data channel error")
	impl.onError.Invoke(err)
}

func (impl *channelImpl) handleMessage(msg webrtc.DataChannelMessage) {
	if !impl.onMessage.Invoke(Message{Data: msg.Data, IsText: msg.IsString}) {
		logrus.WithFields(logrus.Fields{
			"function": "handleMessage",
			"label":    impl.label,
			"size":     len(msg.Data),
		}).Debug("No message handler set, dropping message")
	}
}

func (impl *channelImpl) handleBufferedAmountLow() {
	impl.onBufferedAmountLow.Invoke(struct{}{})
}

func (impl *channelImpl) shutdown() {
	if err := impl.dc.Close(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "shutdown",
			"label":    impl.label,
			"error":    err.Error(),
		}).Debug("Closing data channel failed")
	}
	logrus.WithFields(logrus.Fields{
		"function": "shutdown",
		"label":    impl.label,
	}).Info("Data channel closed")
	impl.onClosed.Invoke(struct{}{})
}

// Close implements io.Closer for the handle's last release.
func (impl *channelImpl) Close() error {
	impl.closeOnce.Run()
	impl.onOpen.Reset()
	impl.onClosed.Reset()
	impl.onError.Reset()
	impl.onMessage.Reset()
	impl.onBufferedAmountLow.Reset()
	return nil
}

func (c *Channel) impl() (*channelImpl, error) {
	if !c.token.Alive() {
		return nil, ErrClosed
	}
	impl, err := c.h.Get()
	if err != nil {
		return nil, ErrClosed
	}
	return impl, nil
}

// Token implements lifetime.Observable. It ends when the channel is closed
// locally.
func (c *Channel) Token() *lifetime.Token {
	return c.token
}

// Label returns the channel label, or "" after Close.
func (c *Channel) Label() string {
	impl, err := c.impl()
	if err != nil {
		return ""
	}
	return impl.label
}

// ID returns the SCTP stream id once it has been negotiated.
func (c *Channel) ID() (uint16, bool) {
	impl, err := c.impl()
	if err != nil {
		return 0, false
	}
	id := impl.dc.ID()
	if id == nil {
		return 0, false
	}
	return *id, true
}

// IsOpen reports whether the channel can carry messages.
func (c *Channel) IsOpen() bool {
	impl, err := c.impl()
	if err != nil {
		return false
	}
	return impl.dc.ReadyState() == webrtc.DataChannelStateOpen
}

// Send sends a binary message.
func (c *Channel) Send(data []byte) error {
	impl, err := c.impl()
	if err != nil {
		return err
	}
	if err := limits.ValidateChannelMessage(data); err != nil {
		return err
	}
	if err := impl.dc.Send(data); err != nil {
		return fmt.Errorf("sending on %s: %w", impl.label, err)
	}
	return nil
}

// SendText sends a text message.
func (c *Channel) SendText(text string) error {
	impl, err := c.impl()
	if err != nil {
		return err
	}
	if err := limits.ValidateChannelMessage([]byte(text)); err != nil {
		return err
	}
	if err := impl.dc.SendText(text); err != nil {
		return fmt.Errorf("sending text on %s: %w", impl.label, err)
	}
	return nil
}

// BufferedAmount returns the bytes queued but not yet sent.
func (c *Channel) BufferedAmount() uint64 {
	impl, err := c.impl()
	if err != nil {
		return 0
	}
	return impl.dc.BufferedAmount()
}

// SetBufferedAmountLowThreshold sets the level at which
// OnBufferedAmountLow fires.
func (c *Channel) SetBufferedAmountLowThreshold(threshold uint64) {
	if impl, err := c.impl(); err == nil {
		impl.dc.SetBufferedAmountLowThreshold(threshold)
	}
}

// OnOpen sets the handler for the channel opening. If the channel opened
// before a handler was set, fn is called before OnOpen returns.
func (c *Channel) OnOpen(fn func()) {
	if impl, err := c.impl(); err == nil {
		impl.onOpen.Set(adaptVoid(fn))
	}
}

// OnClosed sets the handler for the channel closing, locally or remotely.
func (c *Channel) OnClosed(fn func()) {
	if impl, err := c.impl(); err == nil {
		impl.onClosed.Set(adaptVoid(fn))
	}
}

// OnError sets the handler for channel errors. Only the latest error
// missed before a handler was set is replayed.
func (c *Channel) OnError(fn func(err error)) {
	if impl, err := c.impl(); err == nil {
		impl.onError.Set(fn)
	}
}

// OnMessage sets the message handler. Messages arriving with no handler
// set are dropped.
func (c *Channel) OnMessage(fn func(msg Message)) {
	if impl, err := c.impl(); err == nil {
		impl.onMessage.Set(fn)
	}
}

// OnBufferedAmountLow sets the handler for the send buffer draining below
// the threshold.
func (c *Channel) OnBufferedAmountLow(fn func()) {
	if impl, err := c.impl(); err == nil {
		impl.onBufferedAmountLow.Set(adaptVoid(fn))
	}
}

// Close closes the channel. OnClosed fires once and handlers bound to the
// channel's token stop firing. The channel state, registered handlers
// included, is released once no bound call is running, so Close may be
// called from inside a handler.
func (c *Channel) Close() error {
	if impl, err := c.impl(); err == nil {
		impl.closeOnce.Run()
	}
	c.token.End()
	return releaseResult(c.token, &c.closeErr)
}

// releaseResult returns the error from releasing an object's state, or
// nil when a bound call still holds the token and the release is pending.
func releaseResult(token *lifetime.Token, err *error) error {
	select {
	case <-token.Done():
		return *err
	default:
		return nil
	}
}

// adaptVoid turns a no-argument handler into a slot handler; nil stays nil
// so that setting it clears the slot.
func adaptVoid(fn func()) func(struct{}) {
	if fn == nil {
		return nil
	}
	return func(struct{}) { fn() }
}
