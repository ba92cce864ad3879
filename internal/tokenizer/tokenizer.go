// Package tokenizer implements the streaming CSV voxel-record tokeniser:
// it hands the caller the header line, then one tag string per call,
// refilling an internal buffer from the input as needed.
//
// Grounded on the original TagReader (TagReader.cpp/.h): a fixed-size byte
// buffer refilled from stdin, scanned for the single-quoted tag text. The
// original caches a partial tag across a buffer refill and concatenates it
// with the suffix read afterwards; here that falls out for free because
// the accumulating strings.Builder simply keeps writing across fill()
// calls, so callers never see the buffer boundary either way.
package tokenizer

import (
	"errors"
	"io"
	"strings"
)

// MaxLineLength is the size of the internal read buffer, matching the
// original's MAX_LINE_LENGTH.
const MaxLineLength = 1 << 20

// ErrTruncatedInput is returned when the input ends mid-record, before a
// tag's closing quote is found.
var ErrTruncatedInput = errors.New("tokenizer: truncated input (tag not closed before EOF)")

// Scanner tokenises voxel records out of a CSV byte stream one tag at a
// time. It is not safe for concurrent use.
type Scanner struct {
	r      io.Reader
	buf    []byte
	pos    int
	filled int
	eof    bool
}

// NewScanner wraps r for tokenisation.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: r, buf: make([]byte, MaxLineLength)}
}

// fill refills the internal buffer from the input.
func (s *Scanner) fill() error {
	n, err := io.ReadFull(s.r, s.buf)
	s.filled = n
	s.pos = 0
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		s.eof = true
		if n == 0 {
			return ErrTruncatedInput
		}
		return nil
	}
	return err
}

// Setup reads and returns the header line (the volume/parent-block
// dimension description), with commas replaced by spaces so the caller can
// parse it with fmt.Sscan.
func (s *Scanner) Setup() (string, error) {
	if s.filled == 0 && !s.eof {
		if err := s.fill(); err != nil {
			return "", err
		}
	}

	var sb strings.Builder
	for {
		for s.pos < s.filled {
			c := s.buf[s.pos]
			s.pos++
			if c == '\n' {
				header := sb.String()
				return strings.ReplaceAll(header, ",", " "), nil
			}
			sb.WriteByte(c)
		}
		if s.eof {
			return "", ErrTruncatedInput
		}
		if err := s.fill(); err != nil {
			return "", err
		}
	}
}

// NextTag advances past one voxel record and returns the text between its
// first and second single-quote characters.
func (s *Scanner) NextTag() (string, error) {
	var sb strings.Builder
	reading := false

	for {
		for s.pos < s.filled {
			c := s.buf[s.pos]
			s.pos++
			if c == '\'' {
				if reading {
					return sb.String(), nil
				}
				reading = true
				continue
			}
			if reading {
				sb.WriteByte(c)
			}
		}
		if s.eof {
			return "", ErrTruncatedInput
		}
		if err := s.fill(); err != nil {
			return "", err
		}
	}
}
