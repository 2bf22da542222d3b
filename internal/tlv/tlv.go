// Package tlv implements the binary tag/length/value framing used by
// the Stratum V2 pool core: tag u16_le, length u32_le, payload of
// length bytes.
package tlv

import (
	"encoding/binary"

	"github.com/btcindex/txstratum/internal/apperr"
)

// HeaderSize is the fixed tag+length prefix every frame carries.
const HeaderSize = 2 + 4

// Encode frames payload under tag, returning header‖payload.
func Encode(tag uint16, payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint16(frame[0:2], tag)
	binary.LittleEndian.PutUint32(frame[2:6], uint32(len(payload)))
	copy(frame[HeaderSize:], payload)
	return frame
}

// Decode reads a single frame from the front of data, returning the
// tag, payload, and the number of bytes consumed. It fails with
// apperr.InsufficientData if fewer than HeaderSize header bytes are
// present or fewer than length payload bytes follow. Decoders are
// single-shot per frame: callers advance their buffer by the returned
// consumed count to read the next frame.
func Decode(data []byte) (tag uint16, payload []byte, consumed int, err error) {
	if len(data) < HeaderSize {
		return 0, nil, 0, apperr.InsufficientDataf("need %d header bytes, have %d", HeaderSize, len(data))
	}
	tag = binary.LittleEndian.Uint16(data[0:2])
	length := binary.LittleEndian.Uint32(data[2:6])

	if uint32(len(data)-HeaderSize) < length {
		return 0, nil, 0, apperr.InsufficientDataf("need %d payload bytes, have %d", length, len(data)-HeaderSize)
	}

	payload = append([]byte(nil), data[HeaderSize:HeaderSize+int(length)]...)
	return tag, payload, HeaderSize + int(length), nil
}
