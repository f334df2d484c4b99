package input

import (
	"io"
	"os"
)

// FileSource replays a raw I/Q capture file.
type FileSource struct {
	f      *os.File
	format Format
	raw    []byte
	pend   int
}

// NewFileSource opens a capture file for replay.
func NewFileSource(path string, format Format) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{
		f:      f,
		format: format,
		raw:    make([]byte, 0, 64*1024),
	}, nil
}

// Read fills buf from the file. Returns io.EOF once the capture is
// exhausted; a final partial sample at the end of file is dropped.
func (s *FileSource) Read(buf []complex64) (int, error) {
	need := len(buf)*s.format.BytesPerSample() - s.pend
	if cap(s.raw) < s.pend+need {
		grown := make([]byte, s.pend+need)
		copy(grown, s.raw[:s.pend])
		s.raw = grown
	}
	s.raw = s.raw[:s.pend+need]
	n, err := io.ReadFull(s.f, s.raw[s.pend:])
	avail := s.pend + n

	got := decodeBlock(s.format, s.raw[:avail], buf)
	used := got * s.format.BytesPerSample()
	s.pend = copy(s.raw, s.raw[used:avail])

	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if got > 0 && err == io.EOF {
		// Deliver the tail block first; the next call reports EOF.
		err = nil
	}
	return got, err
}

func (s *FileSource) Close() error { return s.f.Close() }
