// Package protocol implements the wire protocol spoken with a remote room
// service over an opaque duplex channel.
//
// Two frame forms share the channel: text frames carrying JSON, and binary
// frames carrying raw bytes. The package only encodes and decodes; it keeps
// no state and never touches the transport.
//
// # Text Frames
//
// A text frame is a header line followed by an optional JSON payload:
//
//	<header>\n<jsonPayload>
//
// Inbound headers are either a response to a call, keyed by correlation id,
//
//	R <id>   call succeeded, payload is the result
//	E <id>   call failed, payload is the error value
//
// or one of the fixed event names (ConnectionInfoEvent, RoomInfoEvent,
// DoorChangedEvent, UserKnockEvent, UserJoinEvent, UserLeaveEvent,
// RoomStateChangedEvent, MessageEvent). A frame without a payload carries
// no value at all, which is different from JSON null.
//
// Outbound calls put the verb first, then the correlation id, then one JSON
// value per parameter:
//
//	SendMessage\n7\n["c1"]\nfalse\n"hello"
//
// # Binary Frames
//
// Every binary frame starts with a little-endian u32 opcode:
//
//	┌──────────────┬──────────────┬──────────────────────────────┐
//	│ Opcode (u32) │ Id (u32)     │ Payload                      │
//	└──────────────┴──────────────┴──────────────────────────────┘
//
//   - OpCallResult (0x4000) / OpCallError (0x4040): binary call response
//   - OpMessage (0x2000): inbound application message, no id; the payload
//     is [i32 nameLength][sender id][body] with a negative length meaning
//     "no sender"
//   - OpSendMessage (0x2001): outbound send-message call; see SendRequest
//   - opcodes below 0x2000: application-defined binary calls
//
// Length and count fields that may be negative are signed 32-bit integers;
// -1 means broadcast (recipient count) or no sender (name length).
//
// # Usage Example
//
//	req, err := protocol.NewRequest(protocol.VerbSetAccess, 3, "acc1", protocol.AccessAllow)
//	if err != nil {
//	    return err
//	}
//	transport.SendText(req.Encode())
//
//	frame, err := protocol.DecodeText(inbound)
//	if err != nil {
//	    // malformed frame: stop, do not interpret partially
//	}
//
// # File Structure
//
//   - encoder.go: little-endian binary encoder
//   - decoder.go: bounds-checked binary decoder
//   - frame.go: binary frames and opcodes
//   - message.go: message and send-message payloads
//   - text.go: text frames and requests
//   - types.go: JSON payload types and verbs
package protocol
