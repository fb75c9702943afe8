package noise

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"github.com/flynn/noise"
)

var (
	// ErrHandshakeNotComplete indicates handshake is still in progress
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates handshake is already complete
	ErrHandshakeComplete = errors.New("handshake already complete")
	// ErrNotInitiator indicates Start was called on a responder
	ErrNotInitiator = errors.New("only the initiator starts a handshake")
)

// HandshakeRole defines whether we're initiating or responding to handshake
type HandshakeRole uint8

const (
	// Initiator sends the first handshake message
	Initiator HandshakeRole = iota
	// Responder waits for the initiator's first message
	Responder
)

func (r HandshakeRole) String() string {
	if r == Initiator {
		return "initiator"
	}
	return "responder"
}

// Pattern selects the Noise handshake pattern.
type Pattern uint8

const (
	// PatternXX authenticates both sides without prior key knowledge.
	PatternXX Pattern = iota
	// PatternIK requires the initiator to know the responder's static key.
	PatternIK
)

func (p Pattern) String() string {
	if p == PatternIK {
		return "IK"
	}
	return "XX"
}

// ParsePattern parses "XX" or "IK", ignoring case.
func ParsePattern(s string) (Pattern, error) {
	switch strings.ToUpper(s) {
	case "XX", "":
		return PatternXX, nil
	case "IK":
		return PatternIK, nil
	default:
		return 0, fmt.Errorf("unknown handshake pattern %q", s)
	}
}

func (p Pattern) handshakePattern() (noise.HandshakePattern, error) {
	switch p {
	case PatternXX:
		return noise.HandshakeXX, nil
	case PatternIK:
		return noise.HandshakeIK, nil
	default:
		return noise.HandshakePattern{}, fmt.Errorf("unknown handshake pattern: %d", p)
	}
}

// handshake wraps the flynn/noise state machine. Patterns alternate
// writers, so after reading a message that does not complete the
// handshake it is always our turn to write.
type handshake struct {
	role     HandshakeRole
	pattern  Pattern
	state    *noise.HandshakeState
	send     *noise.CipherState
	recv     *noise.CipherState
	complete bool
}

func newHandshake(cfg Config) (*handshake, error) {
	hp, err := cfg.Pattern.handshakePattern()
	if err != nil {
		return nil, err
	}

	if cfg.StaticKey == nil {
		return nil, fmt.Errorf("%w: static key required", ErrInvalidKey)
	}

	if cfg.Pattern == PatternIK && cfg.Role == Initiator && len(cfg.PeerKey) != 32 {
		return nil, fmt.Errorf("IK initiator requires peer public key (32 bytes), got %d", len(cfg.PeerKey))
	}

	staticKey := noise.DHKey{
		Private: make([]byte, 32),
		Public:  make([]byte, 32),
	}
	copy(staticKey.Private, cfg.StaticKey.Private[:])
	copy(staticKey.Public, cfg.StaticKey.Public[:])

	config := noise.Config{
		CipherSuite:   noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256),
		Random:        rand.Reader,
		Pattern:       hp,
		Initiator:     cfg.Role == Initiator,
		Prologue:      cfg.Prologue,
		StaticKeypair: staticKey,
	}
	if len(cfg.PeerKey) > 0 {
		config.PeerStatic = append([]byte(nil), cfg.PeerKey...)
	}

	state, err := noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s handshake state: %w", cfg.Pattern, err)
	}

	return &handshake{role: cfg.Role, pattern: cfg.Pattern, state: state}, nil
}

// first produces the initiator's opening message.
func (h *handshake) first() ([]byte, error) {
	if h.role != Initiator {
		return nil, ErrNotInitiator
	}
	return h.write()
}

// read consumes a peer handshake message and returns our reply, if any.
func (h *handshake) read(message []byte) ([]byte, error) {
	if h.complete {
		return nil, ErrHandshakeComplete
	}

	_, cs1, cs2, err := h.state.ReadMessage(nil, message)
	if err != nil {
		return nil, fmt.Errorf("%s %s handshake read failed: %w", h.pattern, h.role, err)
	}
	if cs1 != nil {
		h.finish(cs1, cs2)
		return nil, nil
	}
	return h.write()
}

func (h *handshake) write() ([]byte, error) {
	message, cs1, cs2, err := h.state.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%s %s handshake write failed: %w", h.pattern, h.role, err)
	}
	if cs1 != nil {
		h.finish(cs1, cs2)
	}
	return message, nil
}

// finish stores the transport ciphers. cs1 encrypts initiator to
// responder traffic, cs2 the reverse.
func (h *handshake) finish(cs1, cs2 *noise.CipherState) {
	if h.role == Initiator {
		h.send, h.recv = cs1, cs2
	} else {
		h.send, h.recv = cs2, cs1
	}
	h.complete = true
}

func (h *handshake) remoteStaticKey() ([]byte, error) {
	if !h.complete {
		return nil, ErrHandshakeNotComplete
	}
	remote := h.state.PeerStatic()
	if len(remote) == 0 {
		return nil, fmt.Errorf("remote static key not available")
	}
	return append([]byte(nil), remote...), nil
}
