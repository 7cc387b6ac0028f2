// Package b64 decodes a standard-alphabet base64 stream on demand.
//
// Unlike encoding/base64, the reader is permissive: bytes outside the alphabet are
// skipped, '=' terminates the stream and a missing trailing padding is accepted.
// The upstream payloads are JSON string values, so escaped slashes ("\/") and line
// breaks decode cleanly.
package b64

import (
	"errors"
	"io"
)

const invalid = 0xFF

var decodeMap [256]byte

func init() {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	for i := range decodeMap {
		decodeMap[i] = invalid
	}
	for i := 0; i < len(alphabet); i++ {
		decodeMap[alphabet[i]] = byte(i)
	}
}

// Reader pulls base64 characters from src and exposes the decoded bytes.
type Reader struct {
	src io.Reader
	one [1]byte

	out  [3]byte // decoded bytes of the current group not yet handed out
	outN int
	outI int

	eof bool
	err error
}

// NewReader wraps src.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src}
}

// Read fills p with decoded bytes. It consumes only as many 4-character groups as
// needed to satisfy len(p).
func (r *Reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if r.outI < r.outN {
			c := copy(p[n:], r.out[r.outI:r.outN])
			r.outI += c
			n += c
			continue
		}
		if r.eof {
			break
		}
		r.nextGroup()
	}
	if n == 0 && len(p) > 0 {
		if r.err != nil {
			return 0, r.err
		}
		return 0, io.EOF
	}
	return n, nil
}

// nextGroup decodes one group of up to four characters into r.out.
func (r *Reader) nextGroup() {
	var quad [4]byte
	k := 0
	for k < 4 {
		c, ok := r.readChar()
		if !ok {
			break
		}
		quad[k] = c
		k++
	}

	r.outI = 0
	switch k {
	case 4:
		v := uint32(quad[0])<<18 | uint32(quad[1])<<12 | uint32(quad[2])<<6 | uint32(quad[3])
		r.out[0], r.out[1], r.out[2] = byte(v>>16), byte(v>>8), byte(v)
		r.outN = 3
	case 3:
		v := uint32(quad[0])<<18 | uint32(quad[1])<<12 | uint32(quad[2])<<6
		r.out[0], r.out[1] = byte(v>>16), byte(v>>8)
		r.outN = 2
	case 2:
		v := uint32(quad[0])<<18 | uint32(quad[1])<<12
		r.out[0] = byte(v >> 16)
		r.outN = 1
	default:
		// a lone sextet carries no complete byte
		r.outN = 0
	}
	if k < 4 {
		r.eof = true
	}
}

// readChar returns the next alphabet value, skipping anything outside the alphabet.
// ok is false once padding or the end of the source is reached.
func (r *Reader) readChar() (byte, bool) {
	for {
		c, err := r.readByte()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
			}
			return 0, false
		}
		if c == '=' {
			return 0, false
		}
		if v := decodeMap[c]; v != invalid {
			return v, true
		}
	}
}

// readByte takes exactly one byte from the source so nothing past the final group is
// consumed.
func (r *Reader) readByte() (byte, error) {
	if br, ok := r.src.(io.ByteReader); ok {
		return br.ReadByte()
	}
	for {
		n, err := r.src.Read(r.one[:])
		if n == 1 {
			return r.one[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}
