package ai

import (
	"bufio"
	"fmt"
	"io"
)

// Stream is a lazy, forward-only sequence of generated lines. Each line is
// complete and re-terminated with "\n"; empty lines are dropped. At most
// one line is in flight: the next line is not read from upstream until the
// consumer asks for it.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	cancel  func()
	line    string
	err     error
	done    bool
}

func newStream(body io.ReadCloser, cancel func()) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	return &Stream{body: body, scanner: scanner, cancel: cancel}
}

// Next advances to the next non-empty line. It returns false at EOF or on
// error; check Err afterwards to distinguish the two.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			continue
		}
		s.line = line + "\n"
		return true
	}
	s.done = true
	if err := s.scanner.Err(); err != nil {
		s.err = fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return false
}

// Line returns the current line, including its trailing newline.
func (s *Stream) Line() string {
	return s.line
}

// Err returns the first upstream error encountered, if any.
func (s *Stream) Err() error {
	return s.err
}

// Close aborts the upstream request and releases the connection. It is safe
// to call after a partial read; the remaining stream is abandoned.
func (s *Stream) Close() error {
	s.done = true
	if s.cancel != nil {
		s.cancel()
	}
	drainAndClose(s.body)
	return nil
}
