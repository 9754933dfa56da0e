package merge

import (
	"fmt"

	"github.com/rzbill/flolog/internal/record"
)

// Key is the sort key of a record under an Order. Keys compare by Primary,
// then TopicID, both unsigned.
type Key struct {
	Primary uint64
	TopicID uint64
}

// Less reports whether k sorts before o.
func (k Key) Less(o Key) bool {
	if k.Primary != o.Primary {
		return k.Primary < o.Primary
	}
	return k.TopicID < o.TopicID
}

// Order maps a record to its merge key.
type Order func(*record.Record) Key

// ByTimestamp orders by (timestamp, topic_id).
func ByTimestamp(r *record.Record) Key {
	return Key{Primary: signedKey(r.Timestamp), TopicID: r.TopicID}
}

// ByQueueSeq orders by (queue_seq, topic_id).
func ByQueueSeq(r *record.Record) Key {
	return Key{Primary: r.QueueSeq, TopicID: r.TopicID}
}

// signedKey maps v onto uint64 preserving order: the sign bit is flipped so
// negative values sort below zero.
func signedKey(v int64) uint64 { return uint64(v) ^ 1<<63 }

// OrderByName resolves "timestamp" or "sequence".
func OrderByName(name string) (Order, error) {
	switch name {
	case "", "timestamp", "ts":
		return ByTimestamp, nil
	case "sequence", "seq", "queue_seq":
		return ByQueueSeq, nil
	default:
		return nil, fmt.Errorf("merge: unknown order %q", name)
	}
}
