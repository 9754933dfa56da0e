// Package eventlog stores records in named, append-only logs on Pebble.
//
// # Overview
//
// Keys are lexicographically ordered for range scans:
//   - log/{name}/m            (metadata: last assigned position)
//   - log/{name}/e/{seq_be8}  (entries)
//   - cursor/{name}/{group}   (durable consumer positions)
//
// Entry values are record frames as produced by record.Encode, so every
// stored record carries its own checksums.
//
//	l, _ := eventlog.OpenLog(db, "orders")
//	seqs, _ := l.Append(ctx, []record.Record{{TopicID: 1, Timestamp: ts, Data: p}})
//
//	// Page through entries
//	items, next, err := l.Read(eventlog.ReadOptions{Start: eventlog.TokenFromSeq(seqs[0]), Limit: 100})
//
//	// Or walk them as a merge source
//	c := l.ResumeCursor("indexer")
//	rec, _ := c.Read()
//	_ = c.Commit("indexer")
//
//	// Block until the next commit
//	woke := l.WaitForAppend(200 * time.Millisecond)
//
// A Log also implements WriteRecord, Flush and Close, buffering writes into a
// single batch per flush, so it can be the sink of a queue archiver.
//
// # Retention
//
// TrimOlderThan removes leading entries by record timestamp and
// TrimToMaxBytes by total value size. Each committed delete batch is
// reported to the ArchiverHook as a position range.
package eventlog
