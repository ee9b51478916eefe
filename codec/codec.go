// Package codec implements the audio decoder stage: it turns one
// framed codec packet into a block of float samples, either via Opus
// (pion/opus) or a framed 24-bit PCM variant with a trailing CRC32.
package codec

import "errors"

// ErrLengthMismatch is returned when a decoded block's sample count
// does not match the configured frame size.
var ErrLengthMismatch = errors.New("codec: decoded length mismatch")

// ErrCRCFailed is returned by the PCM decoder when the trailing CRC32
// does not match the frame body.
var ErrCRCFailed = errors.New("codec: CRC validation failed")

// Decoder turns one codec packet (already reassembled by the framer)
// into a block of interleaved float samples. Both OpusDecoder and
// PCMDecoder implement it so the receiver wiring can hold either
// behind one field.
type Decoder interface {
	Decode(pkt []byte) (samples []float32, err error)
}
