package eventlog

// ArchiverHook is told about every range of positions removed by a trim, so
// the records can be exported before they are gone for good.
type ArchiverHook interface {
	EmitTrimRange(log string, minSeq, maxSeq uint64)
}

type noopArchiver struct{}

func (noopArchiver) EmitTrimRange(string, uint64, uint64) {}

// SetArchiverHook replaces the trim hook. Nil restores the no-op hook.
func (l *Log) SetArchiverHook(h ArchiverHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h == nil {
		h = noopArchiver{}
	}
	l.archiver = h
}
