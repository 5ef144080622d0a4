// Package archive stores room state snapshots in S3.
//
// A snapshot is the JSON encoding of the state tree plus a little room
// metadata and the capture time, compressed with zstd. Objects are
// content-addressed: the key ends in the BLAKE3 digest of the
// uncompressed JSON, so Load can detect a corrupted or mislabelled
// object. The capture time is part of the digest, so every capture is
// stored under its own key; only re-saving the same *Snapshot writes
// the same object.
//
//	client := s3.New(s3.Options{Region: "eu-west-1", Credentials: creds})
//	store := archive.NewStore(client, "my-bucket", "rooms/")
//	snap, err := archive.Capture(session)
//	if err != nil {
//		return err
//	}
//	key, err := store.Save(ctx, snap)
package archive

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/vango-dev/roomclient/pkg/protocol"
	"github.com/vango-dev/roomclient/pkg/room"
	"github.com/vango-dev/roomclient/pkg/state"
)

// Archive errors.
var (
	ErrNotFound   = errors.New("archive: snapshot not found")
	ErrCorrupt    = errors.New("archive: snapshot digest mismatch")
	ErrInvalidKey = errors.New("archive: invalid snapshot key")
)

// objectSuffix ends every snapshot key.
const objectSuffix = ".json.zst"

// Client is the part of the S3 API the store uses. *s3.Client
// satisfies it.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Snapshot is one archived room state.
type Snapshot struct {
	RoomID  string          `json:"roomId"`
	Present bool            `json:"present"`
	State   json.RawMessage `json:"state,omitempty"`
	Hash    int32           `json:"hash"`
	TakenAt time.Time       `json:"takenAt"`
}

// Capture snapshots the session's current state tree.
func Capture(s *room.Session) (*Snapshot, error) {
	tree, ok := s.State()
	snap := &Snapshot{RoomID: s.ID(), Present: ok, TakenAt: time.Now().UTC()}
	hash, err := state.Hash(tree, ok)
	if err != nil {
		return nil, fmt.Errorf("archive: hash state: %w", err)
	}
	snap.Hash = hash
	if ok {
		b, err := protocol.MarshalJSON(tree)
		if err != nil {
			return nil, fmt.Errorf("archive: encode state: %w", err)
		}
		snap.State = b
	}
	return snap, nil
}

// Decode returns the snapshot's state tree.
func (s *Snapshot) Decode() (any, bool, error) {
	if !s.Present {
		return nil, false, nil
	}
	var v any
	if err := json.Unmarshal(s.State, &v); err != nil {
		return nil, false, fmt.Errorf("archive: decode state: %w", err)
	}
	return v, true, nil
}

// digestKey is the BLAKE3 key for snapshot digests: the ASCII domain
// name zero-padded to 32 bytes.
var digestKey = [32]byte{
	'r', 'o', 'o', 'm', 'c', 'l', 'i', 'e', 'n', 't', '.', 's', 'n', 'a', 'p', 's',
	'h', 'o', 't', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// Digest returns the hex BLAKE3 keyed digest of data.
func Digest(data []byte) string {
	// NewKeyed only fails for a key that is not 32 bytes.
	h, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("archive: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use with
// EncodeAll and DecodeAll.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("archive: zstd encoder initialization failed: " + err.Error())
	}
	decoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(64<<20))
	if err != nil {
		panic("archive: zstd decoder initialization failed: " + err.Error())
	}
}

// Store saves and loads snapshots in one bucket.
type Store struct {
	client Client
	bucket string
	prefix string
	logger *slog.Logger
}

// NewStore creates a store writing under prefix in bucket.
func NewStore(client Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix, logger: slog.Default()}
}

// WithLogger sets the logger.
func (s *Store) WithLogger(l *slog.Logger) *Store {
	s.logger = l
	return s
}

// Key returns the object key for a snapshot of roomID whose JSON
// encoding has the given digest.
func (s *Store) Key(roomID, digest string) string {
	return s.prefix + roomID + "/" + digest + objectSuffix
}

// Save uploads snap and returns its key.
func (s *Store) Save(ctx context.Context, snap *Snapshot) (string, error) {
	raw, err := protocol.MarshalJSON(snap)
	if err != nil {
		return "", fmt.Errorf("archive: encode snapshot: %w", err)
	}
	key := s.Key(snap.RoomID, Digest(raw))
	body := encoder.EncodeAll(raw, nil)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		Body:            bytes.NewReader(body),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("zstd"),
		Metadata: map[string]string{
			"room-id":    snap.RoomID,
			"state-hash": strconv.FormatInt(int64(snap.Hash), 10),
			"taken-at":   snap.TakenAt.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("archive: upload %s: %w", key, err)
	}
	s.logger.Debug("snapshot saved", "key", key, "size", len(raw), "compressed", len(body))
	return key, nil
}

// Load downloads and verifies the snapshot at key.
func (s *Store) Load(ctx context.Context, key string) (*Snapshot, error) {
	digest, err := keyDigest(key)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("archive: download %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", key, err)
	}
	raw, err := decoder.DecodeAll(body, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: decompress %s: %w", key, err)
	}
	if Digest(raw) != digest {
		return nil, fmt.Errorf("%w: %s", ErrCorrupt, key)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("archive: decode %s: %w", key, err)
	}
	return &snap, nil
}

func keyDigest(key string) (string, error) {
	name, ok := strings.CutSuffix(key, objectSuffix)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	if len(name) != 64 {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if _, err := hex.DecodeString(name); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return name, nil
}
