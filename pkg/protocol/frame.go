package protocol

import (
	"errors"
	"fmt"
)

// Frame constants.
const (
	// OpcodeSize is the size of the opcode that starts every binary frame.
	OpcodeSize = 4

	// CallHeaderSize is the size of the opcode plus correlation id header.
	CallHeaderSize = 8
)

// Opcode identifies a binary frame. Opcodes below OpMessage belong to the
// application, which uses them for its own binary calls.
type Opcode uint32

const (
	OpMessage     Opcode = 0x00002000 // Remote → client application message
	OpSendMessage Opcode = 0x00002001 // Client → remote "send message" binary call
	OpCallResult  Opcode = 0x00004000 // Binary call succeeded
	OpCallError   Opcode = 0x00004040 // Binary call failed
)

// String returns the string representation of the opcode.
func (op Opcode) String() string {
	switch op {
	case OpMessage:
		return "Message"
	case OpSendMessage:
		return "SendMessage"
	case OpCallResult:
		return "CallResult"
	case OpCallError:
		return "CallError"
	default:
		return fmt.Sprintf("Opcode(0x%08x)", uint32(op))
	}
}

// HasID reports whether frames with this opcode carry a correlation id
// after the opcode. Only inbound application messages do not.
func (op Opcode) HasID() bool {
	return op != OpMessage
}

// IsResult reports whether the opcode is a binary call response.
func (op Opcode) IsResult() bool {
	return op == OpCallResult || op == OpCallError
}

// Frame errors.
var (
	ErrUnexpectedOpcode = errors.New("protocol: unexpected opcode")
)

// BinaryFrame is a binary message exchanged over the transport.
//
// Wire format (little-endian):
//
//	┌──────────────────┬──────────────────┬──────────────────────────┐
//	│ Opcode (u32)     │ Correlation (u32)│ Payload (remaining bytes)│
//	└──────────────────┴──────────────────┴──────────────────────────┘
//
// Frames with OpMessage omit the correlation id.
type BinaryFrame struct {
	Opcode  Opcode
	ID      uint32
	Payload []byte
}

// Encode encodes the frame to bytes including the header.
func (f *BinaryFrame) Encode() []byte {
	e := NewEncoderWithCap(CallHeaderSize + len(f.Payload))
	f.EncodeTo(e)
	return e.Bytes()
}

// EncodeTo encodes the frame using the provided encoder.
func (f *BinaryFrame) EncodeTo(e *Encoder) {
	e.WriteUint32(uint32(f.Opcode))
	if f.Opcode.HasID() {
		e.WriteUint32(f.ID)
	}
	e.WriteBytes(f.Payload)
}

// DecodeBinary decodes a binary frame. The payload is copied, so the
// input buffer may be reused by the caller.
func DecodeBinary(data []byte) (*BinaryFrame, error) {
	d := NewDecoder(data)
	op, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	f := &BinaryFrame{Opcode: Opcode(op)}
	if f.Opcode.HasID() {
		if f.ID, err = d.ReadUint32(); err != nil {
			return nil, err
		}
	}
	f.Payload = d.ReadRest()
	return f, nil
}

// NewCallFrame creates an outbound binary call frame.
func NewCallFrame(op Opcode, id uint32, payload []byte) *BinaryFrame {
	return &BinaryFrame{
		Opcode:  op,
		ID:      id,
		Payload: payload,
	}
}
