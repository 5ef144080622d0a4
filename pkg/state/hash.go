package state

import (
	"hash/crc32"

	"github.com/vango-dev/roomclient/pkg/protocol"
)

// Hash returns the content hash the room service compares before
// accepting a state write: the CRC-32 (IEEE) of the canonical JSON form
// of v, as a signed 32-bit integer. An absent value (ok == false) hashes
// to 0.
func Hash(v any, ok bool) (int32, error) {
	if !ok {
		return 0, nil
	}
	b, err := protocol.MarshalJSON(v)
	if err != nil {
		return 0, err
	}
	return int32(crc32.ChecksumIEEE(b)), nil
}
