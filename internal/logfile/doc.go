// Package logfile reads and writes record log files.
//
// A log file is the 8-byte Magic followed by record frames (see package
// record). The whole file may be gzip compressed; by default a ".gz" suffix
// selects gzip.
//
//	w := logfile.NewWriter("events.log")
//	rec, _ := w.Write(1, time.Now().UnixNano(), []byte("hello"))
//	_ = w.Close()
//
//	r := logfile.NewReader("events.log")
//	defer r.Close()
//	for {
//	    rec, err := r.Read()
//	    if err != nil || rec == nil {
//	        break
//	    }
//	}
//
// Readers return (nil, nil) at a clean end of file. ErrInvalidMagic,
// ErrTruncated, record.ErrCRCLength and record.ErrRecordTooLarge are fatal
// and repeated by every later call. record.ErrCRCRecord is returned once and
// the next call resumes at the following frame.
//
// Readers and writers are owned by one goroutine at a time.
package logfile
