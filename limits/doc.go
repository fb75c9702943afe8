// Package limits provides centralized message size limits for data channels
// and the Noise secure session layered on top of them.
//
// # Message Size Hierarchy
//
//   - MaxChannelMessage (65536 bytes): the largest message sent in one data
//     channel write. This is the SCTP max-message-size peers assume when the
//     remote description does not advertise one, so staying under it keeps
//     every implementation interoperable.
//
//   - MaxNoiseMessage (65535 bytes): the Noise Protocol Framework limit for
//     a single handshake or transport message.
//
//   - MaxSealedPayload (65519 bytes): the plaintext that fits in one Noise
//     transport message after the ChaCha20-Poly1305 tag.
//
// # Validation Functions
//
//	if err := limits.ValidateChannelMessage(data); err != nil {
//	    // ErrMessageEmpty or ErrMessageTooLarge
//	}
//
// For custom limits use ValidateMessageSize.
package limits
