package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestBinaryFrameEncodeDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   BinaryFrame
		wantLen int
	}{
		{
			name:    "call_result",
			frame:   BinaryFrame{Opcode: OpCallResult, ID: 7, Payload: []byte("ok")},
			wantLen: CallHeaderSize + 2,
		},
		{
			name:    "call_error_empty",
			frame:   BinaryFrame{Opcode: OpCallError, ID: 1, Payload: []byte{}},
			wantLen: CallHeaderSize,
		},
		{
			name:    "send_message_call",
			frame:   BinaryFrame{Opcode: OpSendMessage, ID: 0xFFFFFFFF, Payload: []byte{1, 2, 3}},
			wantLen: CallHeaderSize + 3,
		},
		{
			name:    "application_opcode",
			frame:   BinaryFrame{Opcode: 0x00000010, ID: 42, Payload: []byte{0xAA}},
			wantLen: CallHeaderSize + 1,
		},
		{
			name:    "message_has_no_id",
			frame:   BinaryFrame{Opcode: OpMessage, Payload: []byte{0xFF, 0xFF, 0xFF, 0xFF, 'h', 'i'}},
			wantLen: OpcodeSize + 6,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			encoded := tc.frame.Encode()
			if len(encoded) != tc.wantLen {
				t.Errorf("Encode() length = %d, want %d", len(encoded), tc.wantLen)
			}

			decoded, err := DecodeBinary(encoded)
			if err != nil {
				t.Fatalf("DecodeBinary() error = %v", err)
			}
			if decoded.Opcode != tc.frame.Opcode {
				t.Errorf("Opcode = %v, want %v", decoded.Opcode, tc.frame.Opcode)
			}
			if decoded.ID != tc.frame.ID {
				t.Errorf("ID = %d, want %d", decoded.ID, tc.frame.ID)
			}
			if !bytes.Equal(decoded.Payload, tc.frame.Payload) {
				t.Errorf("Payload = %v, want %v", decoded.Payload, tc.frame.Payload)
			}
		})
	}
}

func TestBinaryFrameWireLayout(t *testing.T) {
	f := NewCallFrame(OpSendMessage, 3, []byte{0xAB})
	want := []byte{
		0x01, 0x20, 0x00, 0x00, // opcode 0x2001 LE
		0x03, 0x00, 0x00, 0x00, // id 3 LE
		0xAB,
	}
	if got := f.Encode(); !bytes.Equal(got, want) {
		t.Errorf("Encode() = % x, want % x", got, want)
	}
}

func TestDecodeBinaryTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"partial_opcode", []byte{0x00, 0x40}},
		{"result_without_id", []byte{0x00, 0x40, 0x00, 0x00, 0x01}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeBinary(tc.data)
			if !errors.Is(err, ErrBufferTooShort) {
				t.Errorf("DecodeBinary() error = %v, want ErrBufferTooShort", err)
			}
		})
	}
}

func TestOpcodeString(t *testing.T) {
	if OpCallResult.String() != "CallResult" {
		t.Errorf("OpCallResult.String() = %q", OpCallResult.String())
	}
	if got := Opcode(0x10).String(); got != "Opcode(0x00000010)" {
		t.Errorf("Opcode(0x10).String() = %q", got)
	}
	if OpMessage.HasID() {
		t.Error("OpMessage.HasID() = true")
	}
	if !OpCallError.IsResult() || OpSendMessage.IsResult() {
		t.Error("IsResult mismatch")
	}
}
