// Package queue is an in-process publish/subscribe queue for records.
//
// Publishers get a TopicWriter per topic; the queue stamps a global
// queue_seq on every record and delivers it, in publish order, to each
// registered reader:
//
//   - SyncReader runs its handler on the publishing goroutine.
//   - ThreadedReader buffers records in a bounded channel and is drained on
//     another goroutine, or read directly as a merge source.
//   - Archiver drives a ThreadedReader into a Sink, flushing periodically.
//
// Handler errors and panics are logged at the dispatch boundary. With
// WithPropagate(true) they are also returned: from TopicWriter.Write for
// synchronous readers, from Run or Wait for threaded readers.
//
// Stopping a reader only flags it. The queue drops stopped readers at the
// start of the next publish.
package queue
