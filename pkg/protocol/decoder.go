package protocol

import (
	"errors"
)

// Allocation limits to prevent DoS attacks via malicious length prefixes.
const (
	// DefaultMaxAllocation is the default maximum allocation size (4MB).
	DefaultMaxAllocation = 4 * 1024 * 1024

	// MaxCollectionCount is the maximum number of items in a collection,
	// such as the recipient list of a send-message call.
	MaxCollectionCount = 100_000
)

// Common decoding errors.
var (
	ErrBufferTooShort     = errors.New("protocol: buffer too short")
	ErrInvalidLength      = errors.New("protocol: invalid length prefix")
	ErrAllocationTooLarge = errors.New("protocol: allocation size exceeds limit")
	ErrCollectionTooLarge = errors.New("protocol: collection count exceeds limit")
)

// Decoder is a binary decoder that reads from a byte buffer.
// Every read is bounds-checked; a read past the end of the buffer fails
// with ErrBufferTooShort and leaves the position unchanged.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder creates a new decoder from the given byte slice.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// EOF returns true if all bytes have been read.
func (d *Decoder) EOF() bool {
	return d.pos >= len(d.buf)
}

// Position returns the current read position.
func (d *Decoder) Position() int {
	return d.pos
}

// ReadByte reads a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	if d.pos >= len(d.buf) {
		return 0, ErrBufferTooShort
	}
	b := d.buf[d.pos]
	d.pos++
	return b, nil
}

// ReadBytes reads exactly n bytes and returns a copy of them.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrInvalidLength
	}
	if n > d.Remaining() {
		return nil, ErrBufferTooShort
	}
	if n > DefaultMaxAllocation {
		return nil, ErrAllocationTooLarge
	}
	b := make([]byte, n)
	copy(b, d.buf[d.pos:d.pos+n])
	d.pos += n
	return b, nil
}

// ReadBool reads a boolean (single byte). Any non-zero byte is true.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0x00, nil
}

// ReadUint32 reads a uint32 in little-endian byte order.
func (d *Decoder) ReadUint32() (uint32, error) {
	if d.pos+4 > len(d.buf) {
		return 0, ErrBufferTooShort
	}
	v := uint32(d.buf[d.pos]) | uint32(d.buf[d.pos+1])<<8 |
		uint32(d.buf[d.pos+2])<<16 | uint32(d.buf[d.pos+3])<<24
	d.pos += 4
	return v, nil
}

// ReadInt32 reads an int32 in little-endian byte order.
func (d *Decoder) ReadInt32() (int32, error) {
	v, err := d.ReadUint32()
	return int32(v), err
}

// ReadLenBytes reads u32-length-prefixed bytes.
// Returns a copy of the bytes (safe to retain).
func (d *Decoder) ReadLenBytes() ([]byte, error) {
	start := d.pos
	length, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	// Bounds check: length must fit in remaining buffer
	if uint64(length) > uint64(d.Remaining()) {
		d.pos = start
		return nil, ErrBufferTooShort
	}
	b, err := d.ReadBytes(int(length))
	if err != nil {
		d.pos = start
		return nil, err
	}
	return b, nil
}

// ReadLenString reads a u32-length-prefixed UTF-8 string.
func (d *Decoder) ReadLenString() (string, error) {
	b, err := d.ReadLenBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadRest returns a copy of every unread byte and moves to the end.
func (d *Decoder) ReadRest() []byte {
	rest := make([]byte, d.Remaining())
	copy(rest, d.buf[d.pos:])
	d.pos = len(d.buf)
	return rest
}
