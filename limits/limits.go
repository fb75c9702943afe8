package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxChannelMessage is the largest payload for a single data channel send.
	MaxChannelMessage = 65536

	// MaxNoiseMessage is the Noise protocol limit for any single message.
	MaxNoiseMessage = 65535

	// NoiseOverhead is the authentication tag ChaCha20-Poly1305 appends.
	NoiseOverhead = 16

	// MaxSealedPayload is the plaintext that fits in one Noise transport message.
	MaxSealedPayload = MaxNoiseMessage - NoiseOverhead
)

var (
	ErrMessageEmpty    = errors.New("empty message")
	ErrMessageTooLarge = errors.New("message too large")
)

// ValidateMessageSize checks message against a caller-chosen limit.
func ValidateMessageSize(message []byte, maxSize int) error {
	return validate("message", message, maxSize)
}

// ValidateChannelMessage checks an outgoing data channel message.
func ValidateChannelMessage(message []byte) error {
	return validate("channel message", message, MaxChannelMessage)
}

// ValidateNoiseMessage checks a received Noise handshake or transport message.
func ValidateNoiseMessage(message []byte) error {
	return validate("noise message", message, MaxNoiseMessage)
}

// ValidateSealedPayload checks plaintext before it is sealed into a Noise
// transport message.
func ValidateSealedPayload(payload []byte) error {
	return validate("payload", payload, MaxSealedPayload)
}

func validate(kind string, data []byte, limit int) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if len(data) > limit {
		return fmt.Errorf("%w: %s size %d exceeds limit %d", ErrMessageTooLarge, kind, len(data), limit)
	}
	return nil
}
