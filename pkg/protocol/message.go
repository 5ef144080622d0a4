package protocol

import "fmt"

// Message is an application message delivered by the remote in an
// OpMessage frame.
//
// Payload format (little-endian):
//
//	[i32 nameLength][nameLength bytes sender id][remaining bytes payload]
//
// A negative nameLength means there is no sender id: the message is a
// broadcast or service message and the remainder is the whole payload.
type Message struct {
	// From is the sender connection id. Empty for broadcast/service messages.
	From string

	// Payload is the raw message body.
	Payload []byte
}

// Encode encodes the message as a complete OpMessage frame.
func (m *Message) Encode() []byte {
	e := NewEncoderWithCap(OpcodeSize + 4 + len(m.From) + len(m.Payload))
	e.WriteUint32(uint32(OpMessage))
	EncodeMessageTo(e, m)
	return e.Bytes()
}

// EncodeMessageTo encodes the message body (everything after the opcode).
func EncodeMessageTo(e *Encoder, m *Message) {
	if m.From == "" {
		e.WriteInt32(-1)
	} else {
		e.WriteLenString(m.From)
	}
	e.WriteBytes(m.Payload)
}

// DecodeMessage decodes the body of an OpMessage frame (the frame payload).
func DecodeMessage(payload []byte) (*Message, error) {
	d := NewDecoder(payload)
	return DecodeMessageFrom(d)
}

// DecodeMessageFrom decodes a message body from a decoder.
func DecodeMessageFrom(d *Decoder) (*Message, error) {
	nameLen, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	m := &Message{}
	if nameLen >= 0 {
		name, err := d.ReadBytes(int(nameLen))
		if err != nil {
			return nil, err
		}
		m.From = string(name)
	}
	m.Payload = d.ReadRest()
	return m, nil
}

// SendRequest is the payload of an OpSendMessage binary call.
//
// Payload format (little-endian):
//
//	[i32 recipientCount]
//	[per recipient: u32 idLength, idLength bytes id]
//	[u8 service flag]
//	[remaining bytes payload]
//
// A recipient count of -1 means broadcast to every connection.
type SendRequest struct {
	// Recipients lists the target connection ids. Nil means broadcast.
	Recipients []string

	// Service marks the message as a service message (room owner only).
	Service bool

	// Payload is the raw message body.
	Payload []byte
}

// Broadcast reports whether the request targets every connection.
func (r *SendRequest) Broadcast() bool {
	return r.Recipients == nil
}

// EncodeSendRequest encodes a SendRequest to bytes.
func EncodeSendRequest(r *SendRequest) []byte {
	size := 5 + len(r.Payload)
	for _, id := range r.Recipients {
		size += 4 + len(id)
	}
	e := NewEncoderWithCap(size)
	EncodeSendRequestTo(e, r)
	return e.Bytes()
}

// EncodeSendRequestTo encodes a SendRequest using the provided encoder.
func EncodeSendRequestTo(e *Encoder, r *SendRequest) {
	if r.Broadcast() {
		e.WriteInt32(-1)
	} else {
		e.WriteInt32(int32(len(r.Recipients)))
		for _, id := range r.Recipients {
			e.WriteLenString(id)
		}
	}
	e.WriteBool(r.Service)
	e.WriteBytes(r.Payload)
}

// DecodeSendRequest decodes a SendRequest from bytes.
func DecodeSendRequest(data []byte) (*SendRequest, error) {
	d := NewDecoder(data)
	return DecodeSendRequestFrom(d)
}

// DecodeSendRequestFrom decodes a SendRequest from a decoder.
func DecodeSendRequestFrom(d *Decoder) (*SendRequest, error) {
	count, err := d.ReadInt32()
	if err != nil {
		return nil, err
	}
	r := &SendRequest{}
	switch {
	case count == -1:
		// broadcast
	case count < -1:
		return nil, fmt.Errorf("%w: recipient count %d", ErrInvalidLength, count)
	case count > MaxCollectionCount:
		return nil, ErrCollectionTooLarge
	case int(count)*4 > d.Remaining():
		// every recipient needs at least its length prefix
		return nil, ErrBufferTooShort
	default:
		r.Recipients = make([]string, 0, count)
		for i := int32(0); i < count; i++ {
			id, err := d.ReadLenString()
			if err != nil {
				return nil, err
			}
			r.Recipients = append(r.Recipients, id)
		}
	}
	if r.Service, err = d.ReadBool(); err != nil {
		return nil, err
	}
	r.Payload = d.ReadRest()
	return r, nil
}
