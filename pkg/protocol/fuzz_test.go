package protocol

import (
	"bytes"
	"testing"
)

// FuzzDecodeText tests that decoding arbitrary text frames doesn't panic
// and that accepted frames survive a round trip.
func FuzzDecodeText(f *testing.F) {
	f.Add("R 1\n42")
	f.Add("E 7\n\"NotPermitted\"")
	f.Add("RoomStateChangedEvent\n{\"path\":[\"a\",0],\"data\":1}")
	f.Add("R 3")
	f.Add("UserJoinEvent\n")

	f.Fuzz(func(t *testing.T, s string) {
		frame, err := DecodeText(s)
		if err != nil {
			return
		}
		again, err := DecodeText(frame.Encode())
		if err != nil {
			t.Fatalf("re-decode of %q failed: %v", frame.Encode(), err)
		}
		if again.Kind != frame.Kind || again.ID != frame.ID || again.Event != frame.Event {
			t.Fatalf("round trip changed header: %+v -> %+v", frame, again)
		}
	})
}

// FuzzDecodeRequest tests that decoding arbitrary requests doesn't panic.
func FuzzDecodeRequest(f *testing.F) {
	f.Add("GetTime\n1")
	f.Add("ChangeState\n2\n[\"a\"]\n-12345\n{\"x\":1}")
	f.Add("SendMessage\n3\nnull\nfalse\n\"hi\"")

	f.Fuzz(func(t *testing.T, s string) {
		_, _ = DecodeRequest(s)
	})
}

// FuzzDecodeBinary tests that decoding arbitrary bytes doesn't panic.
func FuzzDecodeBinary(f *testing.F) {
	f.Add(NewCallFrame(OpSendMessage, 9, []byte{0xff, 0xff, 0xff, 0xff, 0}).Encode())
	f.Add((&Message{From: "c1", Payload: []byte("hi")}).Encode())
	f.Add([]byte{0x00, 0x20})

	f.Fuzz(func(t *testing.T, data []byte) {
		frame, err := DecodeBinary(data)
		if err != nil {
			return
		}
		if !bytes.Equal(frame.Encode(), data) {
			t.Fatalf("re-encode differs: %x -> %x", data, frame.Encode())
		}
	})
}

// FuzzDecodeMessage tests that decoding arbitrary message bodies doesn't panic.
func FuzzDecodeMessage(f *testing.F) {
	f.Add([]byte{0xff, 0xff, 0xff, 0xff, 'h', 'i'})
	f.Add([]byte{2, 0, 0, 0, 'c', '1', 1, 2, 3})
	f.Add([]byte{0xff, 0xff, 0xff, 0x7f})

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = DecodeMessage(data)
	})
}

// FuzzDecodeSendRequest tests that decoding arbitrary send calls doesn't panic.
func FuzzDecodeSendRequest(f *testing.F) {
	f.Add(EncodeSendRequest(&SendRequest{Payload: []byte("x")}))
	f.Add(EncodeSendRequest(&SendRequest{Recipients: []string{"a", "b"}, Service: true}))
	f.Add([]byte{0xff, 0xff, 0xff, 0x7f, 0})

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = DecodeSendRequest(data)
	})
}
