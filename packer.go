package connector

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Framing constants.
const (
	// HeadLen is the size of the big-endian length header in bytes.
	HeadLen = 2
	// DefaultMaxMsgLen is the default maximum frame size, header included.
	DefaultMaxMsgLen = 4000
	// MaxMsgLenLimit is the largest frame a 2-byte header can describe.
	MaxMsgLenLimit = 1<<16 - 1
)

// Packer is the interface for message framing on the send path.
//
// Pack never fails loudly: a nil (empty) result means either there was
// nothing to send or the parts could not be framed. Callers must check the
// result length before queuing it.
type Packer interface {
	// Pack concatenates parts into one frame. In native mode the length
	// header is omitted, for use under an outer framing layer.
	Pack(parts [][]byte, native bool) []byte
}

// Unpacker is the interface for message demultiplexing on the receive path.
// An Unpacker is stateful and belongs to exactly one connector.
type Unpacker interface {
	// Unpack consumes the next chunk of the byte stream and returns every
	// payload that became complete. Chunks may split frames anywhere.
	Unpack(data []byte) ([][]byte, error)
	// Reset drops any partially received frame.
	Reset()
}

// LengthPacker frames messages with a 2-byte big-endian total length.
type LengthPacker struct {
	// MaxMsgLen bounds the frame size, header included. Zero means DefaultMaxMsgLen.
	MaxMsgLen int
}

// NewLengthPacker creates a packer bounded by maxMsgLen.
func NewLengthPacker(maxMsgLen int) *LengthPacker {
	return &LengthPacker{MaxMsgLen: maxMsgLen}
}

// MaxPayload returns the largest payload a framed message can carry.
func (p *LengthPacker) MaxPayload() int {
	return p.max() - HeadLen
}

func (p *LengthPacker) max() int {
	if p.MaxMsgLen <= 0 {
		return DefaultMaxMsgLen
	}
	return p.MaxMsgLen
}

// Pack implements Packer.
func (p *LengthPacker) Pack(parts [][]byte, native bool) []byte {
	start := HeadLen
	if native {
		start = 0
	}

	total, last := start, start
	for _, part := range parts {
		total += len(part)
		// wraparound and size bound are separate guards
		if total < last || part == nil || total > p.max() {
			return nil
		}
		last = total
	}

	if total <= start {
		return nil
	}

	frame := make([]byte, 0, total)
	if !native {
		frame = binary.BigEndian.AppendUint16(frame, uint16(total))
	}
	for _, part := range parts {
		frame = append(frame, part...)
	}

	return frame
}

// LengthUnpacker reassembles frames produced by LengthPacker from a
// fragmented byte stream.
type LengthUnpacker struct {
	maxMsgLen int
	buf       []byte
}

// NewLengthUnpacker creates an unpacker that rejects frames above maxMsgLen.
func NewLengthUnpacker(maxMsgLen int) *LengthUnpacker {
	if maxMsgLen <= 0 {
		maxMsgLen = DefaultMaxMsgLen
	}
	return &LengthUnpacker{maxMsgLen: maxMsgLen}
}

// Unpack implements Unpacker. The returned payloads do not alias the input.
func (u *LengthUnpacker) Unpack(data []byte) ([][]byte, error) {
	u.buf = append(u.buf, data...)

	var msgs [][]byte
	for len(u.buf) >= HeadLen {
		n := int(binary.BigEndian.Uint16(u.buf))
		if n <= HeadLen || n > u.maxMsgLen {
			u.buf = u.buf[:0]
			return msgs, errors.Wrapf(ErrUnpack, "bad length header %d", n)
		}
		if len(u.buf) < n {
			break
		}

		msg := make([]byte, n-HeadLen)
		copy(msg, u.buf[HeadLen:n])
		msgs = append(msgs, msg)
		u.buf = u.buf[n:]
	}

	// Compact so that a long-lived connection does not pin an old backing array.
	if len(u.buf) == 0 {
		u.buf = nil
	}

	return msgs, nil
}

// Buffered returns the number of bytes held for an incomplete frame.
func (u *LengthUnpacker) Buffered() int {
	return len(u.buf)
}

// Reset implements Unpacker.
func (u *LengthUnpacker) Reset() {
	u.buf = nil
}
