package record

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
)

// Frame layout (little-endian):
//
//	[0..8)       u64 length = RecordHeaderSize + len(data)
//	[8..12)      u32 masked crc of [0..8), 0 = unchecked
//	[12..44)     u64 queue_seq | u64 topic_id | u64 topic_seq | i64 timestamp
//	[44..44+N)   data
//	[44+N..48+N) u32 masked crc of [12..44+N), 0 = unchecked
const (
	LengthHeaderSize = 12
	RecordHeaderSize = 32
	TrailerSize      = 4

	// DefaultMaxRecordSize bounds the length field accepted by decoders.
	DefaultMaxRecordSize = 64 << 20

	crcMaskDelta = 0xa282ead8
)

var (
	// ErrCRCLength means the length header failed its checksum. The stream
	// position of the next frame is unknown.
	ErrCRCLength = errors.New("record: length header checksum mismatch")
	// ErrCRCRecord means the record body failed its checksum. The next frame
	// starts right after this one, so reading may continue.
	ErrCRCRecord = errors.New("record: record checksum mismatch")
	// ErrInvalidLength means the length field is smaller than the record header.
	ErrInvalidLength = errors.New("record: invalid length")
	// ErrRecordTooLarge means the length field exceeds the decoder limit.
	ErrRecordTooLarge = errors.New("record: record too large")
	// ErrShortFrame means a buffer is smaller than the frame it claims to hold.
	ErrShortFrame = errors.New("record: short frame")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Record is one timestamped, topic-tagged entry of a log.
type Record struct {
	QueueSeq  uint64
	TopicID   uint64
	TopicSeq  uint64
	Timestamp int64
	Data      []byte
}

// Equal reports whether both records carry the same header and bytes.
func (r Record) Equal(o Record) bool {
	return r.QueueSeq == o.QueueSeq && r.TopicID == o.TopicID && r.TopicSeq == o.TopicSeq &&
		r.Timestamp == o.Timestamp && bytes.Equal(r.Data, o.Data)
}

func (r Record) String() string {
	return fmt.Sprintf("record{queue_seq=%d topic=%d topic_seq=%d ts=%d size=%d}",
		r.QueueSeq, r.TopicID, r.TopicSeq, r.Timestamp, len(r.Data))
}

// FrameSize is the encoded size of r including both headers and the trailer.
func (r Record) FrameSize() int {
	return LengthHeaderSize + RecordHeaderSize + len(r.Data) + TrailerSize
}

// MaskCRC rotates crc right by 15 bits and adds a constant. A stored masked
// value of 0 always reads as "checksum disabled", including the rare payload
// whose real masked CRC is 0.
func MaskCRC(crc uint32) uint32 {
	return ((crc >> 15) | (crc << 17)) + crcMaskDelta
}

// Checksum returns the masked CRC32-C of b.
func Checksum(b []byte) uint32 {
	return MaskCRC(crc32.Checksum(b, castagnoli))
}

// CorruptionError wraps one of the sentinel errors with the byte offset of
// the frame that failed to decode. Offset is -1 when unknown.
type CorruptionError struct {
	Err    error
	Offset int64
}

func (e *CorruptionError) Error() string {
	if e.Offset < 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v at offset %d", e.Err, e.Offset)
}

func (e *CorruptionError) Unwrap() error { return e.Err }

func corrupt(err error) error { return &CorruptionError{Err: err, Offset: -1} }

// IsRecoverable reports whether reading may continue after err.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrCRCRecord)
}
