package merge

import "github.com/rzbill/flolog/internal/record"

// Skipper wraps a Source and skips records that failed their checksum.
type Skipper struct {
	src    Source
	onSkip func(error)
}

// SkipCorrupt returns src with recoverable record errors swallowed. onSkip,
// if non-nil, sees each skipped error.
func SkipCorrupt(src Source, onSkip func(error)) *Skipper {
	return &Skipper{src: src, onSkip: onSkip}
}

func (s *Skipper) Peek() (*record.Record, error) {
	for {
		rec, err := s.src.Peek()
		if err == nil || !record.IsRecoverable(err) {
			return rec, err
		}
		if s.onSkip != nil {
			s.onSkip(err)
		}
	}
}

func (s *Skipper) Read() (*record.Record, error) {
	if _, err := s.Peek(); err != nil {
		return nil, err
	}
	return s.src.Read()
}

// Close closes the wrapped source when it supports it.
func (s *Skipper) Close() error {
	if cl, ok := s.src.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}
