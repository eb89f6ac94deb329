package ingest

// reader.go wraps uploaded text streams so the mapper only ever sees clean
// UTF-8:
//
//   - a leading UTF-8 BOM (written by Excel "Save as Unicode Text") is dropped
//   - invalid UTF-8 bytes become '?'
//   - reading past the size limit fails with ErrFileTooLarge
//
// NewTextReader applies all three in that order.

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// ErrFileTooLarge is returned once a limited reader passes its limit.
var ErrFileTooLarge = errors.New("file too large")

// NewTextReader returns r with the BOM removed, invalid UTF-8 replaced and
// at most limit bytes allowed (no limit when limit <= 0).
func NewTextReader(r io.Reader, limit int64) io.Reader {
	if limit > 0 {
		r = &limitedReader{r: r, remaining: limit, limit: limit}
	}
	return newSanitizer(skipBOM(r))
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && string(head) == string(utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	return br
}

// limitedReader fails instead of truncating, unlike io.LimitReader.
type limitedReader struct {
	r         io.Reader
	remaining int64
	limit     int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, l.limit)
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n + int(l.remaining), fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, l.limit)
	}
	return n, err
}

// sanitizer replaces invalid UTF-8 with '?' while streaming. A multi-byte
// rune split across two reads is carried over rather than replaced.
type sanitizer struct {
	r       io.Reader
	pending []byte
}

func newSanitizer(r io.Reader) *sanitizer {
	return &sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *sanitizer) Read(p []byte) (int, error) {
	if len(p) < utf8.UTFMax {
		// Too small to hold a carried rune; read through a scratch buffer.
		var buf [utf8.UTFMax * 2]byte
		n, err := s.Read(buf[:])
		if n > len(p) {
			s.pending = append(append([]byte(nil), buf[len(p):n]...), s.pending...)
			n = len(p)
			err = nil
		}
		copy(p, buf[:n])
		return n, err
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}
	return s.clean(p[:n], err == io.EOF), err
}

// clean rewrites data in place and returns the number of bytes to hand out.
func (s *sanitizer) clean(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		if data[read] < utf8.RuneSelf {
			data[write] = data[read]
			write++
			read++
			continue
		}

		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			if !atEOF && !utf8.FullRune(data[read:]) {
				s.pending = append(s.pending, data[read:]...)
				return write
			}
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}
