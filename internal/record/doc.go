// Package record defines the Record type and its framed binary encoding.
//
// Each frame is a 12-byte length header (length + masked CRC32-C of the
// length bytes), a 32-byte record header (queue_seq, topic_id, topic_seq,
// timestamp), the payload, and a trailing masked CRC32-C over the record
// header and payload. All integers are little-endian. A checksum field of 0
// disables verification of that field.
//
//	frame := record.Encode(record.Record{TopicID: 1, Timestamp: 1000, Data: []byte("a")})
//	rec, err := record.Decode(frame)
//	if record.IsRecoverable(err) {
//	    // body checksum failed; the next frame is still reachable
//	}
//
// A length checksum failure is fatal for a stream: the position of the next
// frame can no longer be trusted.
package record
