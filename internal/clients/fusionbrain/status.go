package fusionbrain

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// The status response embeds the whole image as one JSON string, so it is read as
// a token stream over the top-level object instead of being parsed. Values of
// unrelated keys are skipped without being stored and the image string is handed
// out as an io.Reader.

const (
	maxKeyLen    = 64
	maxStatusLen = 64
	maxDepth     = 32
)

type scanner struct {
	r *bufio.Reader
}

func newScanner(r io.Reader) *scanner {
	return &scanner{r: bufio.NewReaderSize(r, 1024)}
}

func protocolErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

func eofErr(err error) error {
	if errors.Is(err, io.EOF) {
		return protocolErr("truncated response")
	}
	return err
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// peek returns the next non-space byte without consuming it.
func (s *scanner) peek() (byte, error) {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return 0, eofErr(err)
		}
		if !isSpace(b) {
			return b, s.r.UnreadByte()
		}
	}
}

func (s *scanner) next() (byte, error) {
	b, err := s.peek()
	if err != nil {
		return 0, err
	}
	_, _ = s.r.ReadByte()
	return b, nil
}

func (s *scanner) expect(want byte) error {
	b, err := s.next()
	if err != nil {
		return err
	}
	if b != want {
		return protocolErr("got %q want %q", b, want)
	}
	return nil
}

// begin consumes the opening brace of the top-level object.
func (s *scanner) begin() error {
	return s.expect('{')
}

// key returns the next key of the current object, or ok=false at its end. The
// colon after the key is consumed.
func (s *scanner) key() (key string, ok bool, err error) {
	b, err := s.next()
	if err != nil {
		return "", false, err
	}
	if b == ',' {
		if b, err = s.next(); err != nil {
			return "", false, err
		}
	}
	if b == '}' {
		return "", false, nil
	}
	if b != '"' {
		return "", false, protocolErr("got %q want key", b)
	}
	key, err = s.shortString(maxKeyLen)
	if err != nil {
		return "", false, err
	}
	if err := s.expect(':'); err != nil {
		return "", false, err
	}
	return key, true, nil
}

// shortString reads the rest of a string whose opening quote was consumed. Longer
// values are a protocol error.
func (s *scanner) shortString(limit int) (string, error) {
	buf := make([]byte, 0, 16)
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return "", eofErr(err)
		}
		switch b {
		case '"':
			return string(buf), nil
		case '\\':
			e, err := s.r.ReadByte()
			if err != nil {
				return "", eofErr(err)
			}
			if e == 'u' {
				if _, err := s.r.Discard(4); err != nil {
					return "", eofErr(err)
				}
				e = '?'
			}
			b = e
		}
		if len(buf) == limit {
			return "", protocolErr("string longer than %d bytes", limit)
		}
		buf = append(buf, b)
	}
}

// stringValue reads a value that must be a string.
func (s *scanner) stringValue(limit int) (string, error) {
	b, err := s.next()
	if err != nil {
		return "", err
	}
	if b != '"' {
		return "", protocolErr("got %q want string", b)
	}
	return s.shortString(limit)
}

func (s *scanner) skipString() error {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return eofErr(err)
		}
		switch b {
		case '"':
			return nil
		case '\\':
			if _, err := s.r.ReadByte(); err != nil {
				return eofErr(err)
			}
		}
	}
}

// skipValue consumes one value of any type, nested containers included.
func (s *scanner) skipValue() error {
	b, err := s.next()
	if err != nil {
		return err
	}
	switch b {
	case '"':
		return s.skipString()
	case '{', '[':
		depth := 1
		for depth > 0 {
			c, err := s.r.ReadByte()
			if err != nil {
				return eofErr(err)
			}
			switch c {
			case '"':
				if err := s.skipString(); err != nil {
					return err
				}
			case '{', '[':
				if depth++; depth > maxDepth {
					return protocolErr("nesting deeper than %d", maxDepth)
				}
			case '}', ']':
				depth--
			}
		}
		return nil
	default:
		// number or literal: runs until a delimiter
		for {
			c, err := s.r.ReadByte()
			if err != nil {
				return eofErr(err)
			}
			if c == ',' || c == '}' || c == ']' || isSpace(c) {
				return s.r.UnreadByte()
			}
		}
	}
}

// imageValue positions the scanner inside the image string. It accepts a string or
// an array whose first element is a string. ok is false for null and empty arrays,
// which are consumed.
func (s *scanner) imageValue() (io.Reader, bool, error) {
	b, err := s.peek()
	if err != nil {
		return nil, false, err
	}
	switch b {
	case '"':
		_, _ = s.r.ReadByte()
		return &stringReader{r: s.r}, true, nil
	case '[':
		_, _ = s.r.ReadByte()
		c, err := s.peek()
		if err != nil {
			return nil, false, err
		}
		switch c {
		case '"':
			_, _ = s.r.ReadByte()
			return &stringReader{r: s.r}, true, nil
		case ']':
			_, _ = s.r.ReadByte()
			return nil, false, nil
		default:
			return nil, false, protocolErr("images array holds %q", c)
		}
	case 'n':
		return nil, false, s.skipValue()
	default:
		return nil, false, protocolErr("images holds %q", b)
	}
}

// stringReader yields the raw bytes of a JSON string up to its closing quote.
// Escapes are dropped except "\/" and "\\", which keep their character.
type stringReader struct {
	r    *bufio.Reader
	done bool
	err  error
}

func (s *stringReader) ReadByte() (byte, error) {
	for {
		if s.err != nil {
			return 0, s.err
		}
		if s.done {
			return 0, io.EOF
		}
		b, err := s.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			s.err = err
			continue
		}
		switch b {
		case '"':
			s.done = true
		case '\\':
			e, err := s.r.ReadByte()
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				s.err = err
				continue
			}
			switch e {
			case '/', '\\':
				return e, nil
			case 'u':
				if _, err := s.r.Discard(4); err != nil {
					s.err = io.ErrUnexpectedEOF
				}
			}
		default:
			return b, nil
		}
	}
}

func (s *stringReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		b, err := s.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		p[n] = b
		n++
	}
	return n, nil
}
