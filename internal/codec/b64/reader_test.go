package b64

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"
)

func sample(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*31 + 7)
	}
	return b
}

func TestReader_MatchesStdlib(t *testing.T) {
	for _, n := range []int{0, 1, 2, 3, 4, 5, 57, 100, 1000} {
		raw := sample(n)
		enc := base64.StdEncoding.EncodeToString(raw)
		got, err := io.ReadAll(NewReader(strings.NewReader(enc)))
		if err != nil {
			t.Fatalf("n=%d: read: %v", n, err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatalf("n=%d: decoded bytes differ", n)
		}
	}
}

func TestReader_ShortReads(t *testing.T) {
	raw := sample(301)
	enc := base64.StdEncoding.EncodeToString(raw)

	t.Run("one_byte_source", func(t *testing.T) {
		got, err := io.ReadAll(NewReader(iotest.OneByteReader(strings.NewReader(enc))))
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if !bytes.Equal(got, raw) {
			t.Fatal("decoded bytes differ")
		}
	})

	t.Run("one_byte_sink", func(t *testing.T) {
		r := NewReader(strings.NewReader(enc))
		var out []byte
		var one [1]byte
		for {
			n, err := r.Read(one[:])
			out = append(out, one[:n]...)
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				t.Fatalf("read: %v", err)
			}
		}
		if !bytes.Equal(out, raw) {
			t.Fatal("decoded bytes differ")
		}
	})
}

func TestReader_ConsumesWholeGroupsOnly(t *testing.T) {
	src := strings.NewReader("QUJDREVG") // "ABCDEF"
	r := NewReader(src)
	var p [2]byte
	if _, err := io.ReadFull(r, p[:]); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(p[:]) != "AB" {
		t.Fatalf("got %q want %q", p[:], "AB")
	}
	if src.Len() != 4 {
		t.Fatalf("consumed %d source bytes, want 4", 8-src.Len())
	}
	var q [1]byte
	if _, err := io.ReadFull(r, q[:]); err != nil {
		t.Fatalf("read: %v", err)
	}
	if q[0] != 'C' || src.Len() != 4 {
		t.Fatalf("leftover byte not served from the current group: %q, remaining %d", q[0], src.Len())
	}
}

func TestReader_Permissive(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"missing_padding_two", "QUI", "AB"},
		{"missing_padding_one", "QQ", "A"},
		{"padding_stops", "QUI=trailing", "AB"},
		{"whitespace", "QU\r\nJD\n RA==", "ABCD"},
		{"json_escaped_slash", "Pz8\\/", "???"},
		{"lone_sextet_dropped", "QUJDR", "ABC"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(NewReader(strings.NewReader(tt.in)))
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if string(got) != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestReader_SourceError(t *testing.T) {
	boom := errors.New("boom")
	r := NewReader(io.MultiReader(strings.NewReader("QUJD"), iotest.ErrReader(boom)))
	got, err := io.ReadAll(r)
	if !errors.Is(err, boom) {
		t.Fatalf("got err %v want %v", err, boom)
	}
	if string(got) != "ABC" {
		t.Fatalf("got %q want %q", got, "ABC")
	}
}
