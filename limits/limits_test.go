package limits

import (
	"errors"
	"testing"

	"golang.org/x/crypto/chacha20poly1305"
)

// TestNoiseOverheadMatchesChaChaPoly verifies that NoiseOverhead matches the
// tag size of the AEAD the noise package is configured with.
func TestNoiseOverheadMatchesChaChaPoly(t *testing.T) {
	if NoiseOverhead != chacha20poly1305.Overhead {
		t.Errorf("NoiseOverhead = %d, want %d (chacha20poly1305.Overhead)", NoiseOverhead, chacha20poly1305.Overhead)
	}
}

// TestActualSealOverhead seals payloads of several sizes and checks the
// ciphertext grows by exactly NoiseOverhead bytes.
func TestActualSealOverhead(t *testing.T) {
	aead, err := chacha20poly1305.New(make([]byte, chacha20poly1305.KeySize))
	if err != nil {
		t.Fatalf("Failed to create AEAD: %v", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSize)

	for _, size := range []int{1, 100, 4096, MaxSealedPayload} {
		sealed := aead.Seal(nil, nonce, make([]byte, size), nil)
		if len(sealed)-size != NoiseOverhead {
			t.Errorf("size %d: overhead = %d, want %d", size, len(sealed)-size, NoiseOverhead)
		}
		if len(sealed) > MaxNoiseMessage {
			t.Errorf("size %d: sealed length %d exceeds MaxNoiseMessage", size, len(sealed))
		}
	}
}

func TestValidateFunctions(t *testing.T) {
	tests := []struct {
		name     string
		validate func([]byte) error
		limit    int
	}{
		{"channel", ValidateChannelMessage, MaxChannelMessage},
		{"noise", ValidateNoiseMessage, MaxNoiseMessage},
		{"sealed", ValidateSealedPayload, MaxSealedPayload},
		{"custom", func(b []byte) error { return ValidateMessageSize(b, 10) }, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.validate(nil); !errors.Is(err, ErrMessageEmpty) {
				t.Errorf("nil message: got %v, want ErrMessageEmpty", err)
			}
			if err := tt.validate(make([]byte, tt.limit)); err != nil {
				t.Errorf("message at limit rejected: %v", err)
			}
			if err := tt.validate(make([]byte, tt.limit+1)); !errors.Is(err, ErrMessageTooLarge) {
				t.Errorf("oversized message: got %v, want ErrMessageTooLarge", err)
			}
		})
	}
}
