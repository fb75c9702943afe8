package noise

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/rtcsync/callback"
	"github.com/opd-ai/rtcsync/handle"
	"github.com/opd-ai/rtcsync/lifetime"
	"github.com/opd-ai/rtcsync/limits"
)

// ErrSessionClosed is returned by operations on a closed session.
var ErrSessionClosed = errors.New("session closed")

// Transport carries handshake and transport messages to the peer.
type Transport interface {
	Send(data []byte) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(data []byte) error

// Send implements Transport.
func (f TransportFunc) Send(data []byte) error {
	return f(data)
}

// Config configures a Session.
type Config struct {
	Role      HandshakeRole
	Pattern   Pattern
	StaticKey *KeyPair
	// PeerKey is the responder's static public key; required for an IK
	// initiator, ignored otherwise.
	PeerKey  []byte
	Prologue []byte
}

// Session is a Noise-secured message session over a Transport.
type Session struct {
	token *lifetime.Token
	h     handle.Handle[session]

	// closeErr is written by the token finalizer before Done closes.
	closeErr error
}

type session struct {
	transport Transport

	// sendMu orders ciphertexts on the wire; mu guards the handshake and
	// cipher state. sendMu is always taken first.
	sendMu sync.Mutex
	mu     sync.Mutex
	hs     *handshake
	closed bool

	onEstablished callback.ReplayingSlot[[]byte]
	onError       callback.ReplayingSlot[error]
	onMessage     callback.Slot[[]byte]
}

// NewSession creates a session that has not started its handshake yet.
func NewSession(t Transport, cfg Config) (*Session, error) {
	if t == nil {
		return nil, errors.New("transport is required")
	}
	hs, err := newHandshake(cfg)
	if err != nil {
		return nil, err
	}

	s := &Session{token: lifetime.NewToken()}
	s.h.Init(&session{
		transport: t,
		hs:        hs,
	})
	s.token.OnRelease(func() { s.closeErr = s.h.Release() })

	logrus.WithFields(logrus.Fields{
		"function": "NewSession",
		"role":     cfg.Role.String(),
		"pattern":  cfg.Pattern.String(),
	}).Debug("Noise session created")
	return s, nil
}

func (s *Session) impl() (*session, error) {
	if !s.token.Alive() {
		return nil, ErrSessionClosed
	}
	st, err := s.h.Get()
	if err != nil {
		return nil, ErrSessionClosed
	}
	return st, nil
}

// Token implements lifetime.Observable. It ends when the session closes.
func (s *Session) Token() *lifetime.Token {
	return s.token
}

// OnEstablished sets the handler called with the peer's static public key
// once the handshake completes. Setting a handler on a closed session does
// nothing.
func (s *Session) OnEstablished(fn func(remoteKey []byte)) {
	if st, err := s.impl(); err == nil {
		st.onEstablished.Set(fn)
	}
}

// OnMessage sets the handler for decrypted inbound messages.
func (s *Session) OnMessage(fn func(plaintext []byte)) {
	if st, err := s.impl(); err == nil {
		st.onMessage.Set(fn)
	}
}

// OnError sets the handler for handshake and decryption failures.
func (s *Session) OnError(fn func(err error)) {
	if st, err := s.impl(); err == nil {
		st.onError.Set(fn)
	}
}

// Start sends the initiator's first handshake message.
func (s *Session) Start() error {
	st, err := s.impl()
	if err != nil {
		return err
	}

	st.sendMu.Lock()
	defer st.sendMu.Unlock()

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return ErrSessionClosed
	}
	message, err := st.hs.first()
	st.mu.Unlock()
	if err != nil {
		return err
	}
	if err := st.transport.Send(message); err != nil {
		return fmt.Errorf("sending handshake message: %w", err)
	}
	return nil
}

// HandleIncoming feeds one message received from the transport. Failures
// are reported through OnError.
func (s *Session) HandleIncoming(data []byte) {
	st, err := s.impl()
	if err != nil {
		return
	}
	if err := st.process(data); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleIncoming",
			"size":     len(data),
			"error":    err.Error(),
		}).Warn("Failed to process noise message")
		st.onError.Invoke(err)
	}
}

func (st *session) process(data []byte) error {
	if err := limits.ValidateNoiseMessage(data); err != nil {
		return err
	}

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return ErrSessionClosed
	}
	if st.hs.complete {
		plaintext, err := st.hs.recv.Decrypt(nil, nil, data)
		st.mu.Unlock()
		if err != nil {
			return fmt.Errorf("decrypting message: %w", err)
		}
		st.onMessage.Invoke(plaintext)
		return nil
	}
	st.mu.Unlock()

	return st.advance(data)
}

// advance runs one handshake step and sends our reply.
func (st *session) advance(data []byte) error {
	st.sendMu.Lock()
	st.mu.Lock()
	reply, err := st.hs.read(data)
	complete := st.hs.complete
	var remote []byte
	if complete && err == nil {
		remote, err = st.hs.remoteStaticKey()
	}
	st.mu.Unlock()

	if err == nil && reply != nil {
		if sendErr := st.transport.Send(reply); sendErr != nil {
			err = fmt.Errorf("sending handshake message: %w", sendErr)
		}
	}
	st.sendMu.Unlock()

	if err != nil {
		return err
	}
	if complete {
		logrus.WithFields(logrus.Fields{
			"function": "advance",
			"role":     st.hs.role.String(),
			"pattern":  st.hs.pattern.String(),
		}).Info("Noise handshake complete")
		st.onEstablished.Invoke(remote)
	}
	return nil
}

// Send encrypts plaintext and sends it to the peer.
func (s *Session) Send(plaintext []byte) error {
	st, err := s.impl()
	if err != nil {
		return err
	}
	if err := limits.ValidateSealedPayload(plaintext); err != nil {
		return err
	}

	st.sendMu.Lock()
	defer st.sendMu.Unlock()

	st.mu.Lock()
	if st.closed {
		st.mu.Unlock()
		return ErrSessionClosed
	}
	if !st.hs.complete {
		st.mu.Unlock()
		return ErrHandshakeNotComplete
	}
	sealed, err := st.hs.send.Encrypt(nil, nil, plaintext)
	st.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encrypting message: %w", err)
	}

	return st.transport.Send(sealed)
}

// IsEstablished reports whether the handshake has completed.
func (s *Session) IsEstablished() bool {
	st, err := s.impl()
	if err != nil {
		return false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.hs.complete && !st.closed
}

// RemoteStaticKey returns the authenticated peer key.
func (s *Session) RemoteStaticKey() ([]byte, error) {
	st, err := s.impl()
	if err != nil {
		return nil, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.hs.remoteStaticKey()
}

// Close ends the session. Handlers bound to the session's token stop
// firing at once. Registered handlers are dropped when no bound call is
// still running; until then Close returns nil.
func (s *Session) Close() error {
	s.token.End()
	select {
	case <-s.token.Done():
		return s.closeErr
	default:
		return nil
	}
}

// Close implements io.Closer for the handle's last release.
func (st *session) Close() error {
	st.mu.Lock()
	st.closed = true
	st.mu.Unlock()

	st.onEstablished.Reset()
	st.onError.Reset()
	st.onMessage.Reset()
	return nil
}
