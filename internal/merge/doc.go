// Package merge implements a k-way merge over record sources.
//
// A Reader keeps one container per source in a min-heap. A container that
// was just consumed is stale: its next key is unknown, so stale containers
// sort ahead of everything and are refreshed through their source's Peek
// before any fresh minimum is returned.
//
//	m := merge.New(merge.ByTimestamp)
//	_ = m.AddReader(logfile.NewReader("a.log"), nil)
//	_ = m.AddReader(logfile.NewReader("b.log"), nil)
//	for {
//	    rec, err := m.Read()
//	    if err != nil || rec == nil {
//	        break
//	    }
//	}
package merge
