package filter

import "github.com/rzbill/flolog/internal/record"

// Upstream is the Peek/Read contract shared with the merge package.
type Upstream interface {
	Peek() (*record.Record, error)
	Read() (*record.Record, error)
}

// Source passes through only the records of an upstream that match a Filter.
type Source struct {
	src Upstream
	f   *Filter
}

// Wrap filters src by f. A nil or empty f passes everything through.
func Wrap(src Upstream, f *Filter) *Source {
	return &Source{src: src, f: f}
}

// Peek discards non-matching records until a match or the end of src.
func (s *Source) Peek() (*record.Record, error) {
	for {
		rec, err := s.src.Peek()
		if err != nil || rec == nil {
			return rec, err
		}
		if s.f.Match(rec) {
			return rec, nil
		}
		if _, err := s.src.Read(); err != nil {
			return nil, err
		}
	}
}

func (s *Source) Read() (*record.Record, error) {
	rec, err := s.Peek()
	if err != nil || rec == nil {
		return rec, err
	}
	return s.src.Read()
}

// Close closes the upstream when it supports it.
func (s *Source) Close() error {
	if cl, ok := s.src.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}
