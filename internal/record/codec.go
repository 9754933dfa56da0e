package record

import (
	"encoding/binary"
)

// EncodeOption tunes Encode.
type EncodeOption func(*encodeOptions)

type encodeOptions struct {
	noCRC bool
}

// WithoutCRC writes 0 into both checksum fields, disabling verification.
func WithoutCRC() EncodeOption {
	return func(o *encodeOptions) { o.noCRC = true }
}

// Encode returns the framed bytes of r.
func Encode(r Record, opts ...EncodeOption) []byte {
	return AppendEncode(make([]byte, 0, r.FrameSize()), r, opts...)
}

// AppendEncode appends the framed bytes of r to dst.
func AppendEncode(dst []byte, r Record, opts ...EncodeOption) []byte {
	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	start := len(dst)
	length := uint64(RecordHeaderSize + len(r.Data))
	dst = binary.LittleEndian.AppendUint64(dst, length)
	var lengthCRC uint32
	if !o.noCRC {
		lengthCRC = Checksum(dst[start : start+8])
	}
	dst = binary.LittleEndian.AppendUint32(dst, lengthCRC)

	body := len(dst)
	dst = binary.LittleEndian.AppendUint64(dst, r.QueueSeq)
	dst = binary.LittleEndian.AppendUint64(dst, r.TopicID)
	dst = binary.LittleEndian.AppendUint64(dst, r.TopicSeq)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(r.Timestamp))
	dst = append(dst, r.Data...)
	var recordCRC uint32
	if !o.noCRC {
		recordCRC = Checksum(dst[body:])
	}
	return binary.LittleEndian.AppendUint32(dst, recordCRC)
}

// DecodeLength validates a 12-byte length header and returns the length
// field: the size of the record header plus payload, excluding the trailer.
// maxSize <= 0 selects DefaultMaxRecordSize.
func DecodeLength(hdr []byte, maxSize int) (uint64, error) {
	if len(hdr) < LengthHeaderSize {
		return 0, corrupt(ErrShortFrame)
	}
	length := binary.LittleEndian.Uint64(hdr[0:8])
	if want := binary.LittleEndian.Uint32(hdr[8:12]); want != 0 && want != Checksum(hdr[0:8]) {
		return 0, corrupt(ErrCRCLength)
	}
	if length < RecordHeaderSize {
		return 0, corrupt(ErrInvalidLength)
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxRecordSize
	}
	if length > uint64(maxSize) {
		return 0, corrupt(ErrRecordTooLarge)
	}
	return length, nil
}

// DecodeBody decodes the length+TrailerSize bytes following a length header.
// The returned record owns a copy of the payload.
func DecodeBody(length uint64, body []byte) (Record, error) {
	n := int(length)
	if length < RecordHeaderSize || len(body) < n+TrailerSize {
		return Record{}, corrupt(ErrShortFrame)
	}
	if want := binary.LittleEndian.Uint32(body[n : n+TrailerSize]); want != 0 && want != Checksum(body[:n]) {
		return Record{}, corrupt(ErrCRCRecord)
	}
	data := make([]byte, n-RecordHeaderSize)
	copy(data, body[RecordHeaderSize:n])
	return Record{
		QueueSeq:  binary.LittleEndian.Uint64(body[0:8]),
		TopicID:   binary.LittleEndian.Uint64(body[8:16]),
		TopicSeq:  binary.LittleEndian.Uint64(body[16:24]),
		Timestamp: int64(binary.LittleEndian.Uint64(body[24:32])),
		Data:      data,
	}, nil
}

// Decode decodes one complete frame. Trailing bytes after the frame are
// ignored; use FrameLen to step through a buffer of frames. A frame cut short
// fails with ErrShortFrame.
func Decode(frame []byte) (Record, error) {
	length, err := DecodeLength(frame, bufLimit(frame))
	if err != nil {
		return Record{}, err
	}
	return DecodeBody(length, frame[LengthHeaderSize:])
}

// FrameLen reports the full encoded size of the frame starting at b.
func FrameLen(b []byte) (int, error) {
	length, err := DecodeLength(b, bufLimit(b))
	if err != nil {
		return 0, err
	}
	n := LengthHeaderSize + int(length) + TrailerSize
	if n > len(b) {
		return 0, corrupt(ErrShortFrame)
	}
	return n, nil
}

// bufLimit is the length limit used when decoding from an in-memory buffer:
// the default record limit, raised to the buffer size for larger frames.
func bufLimit(b []byte) int {
	return max(len(b), DefaultMaxRecordSize)
}
