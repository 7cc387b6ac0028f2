package display

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

var snapshotMagic = [4]byte{'A', 'F', 'R', '1'}

var ErrBadSnapshot = errors.New("display: invalid snapshot")

// SnapshotStore keeps the last finished frame on disk as zstd-compressed raw RGBA,
// so the panel shows it again after a restart.
type SnapshotStore struct {
	path string
}

func NewSnapshotStore(path string) *SnapshotStore {
	return &SnapshotStore{path: path}
}

func (s *SnapshotStore) Path() string { return s.path }

// Save writes img atomically.
func (s *SnapshotStore) Save(img *image.RGBA) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, img); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the stored frame, which must have the given bounds. A missing file
// is reported as os.ErrNotExist.
func (s *SnapshotStore) Load(bounds image.Rectangle) (*image.RGBA, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, bounds)
}

// Encode writes the snapshot format: magic, width and height as big-endian
// uint32, then the zstd stream of the pixels.
func Encode(w io.Writer, img *image.RGBA) error {
	b := img.Bounds()
	var hdr [12]byte
	copy(hdr[:4], snapshotMagic[:])
	binary.BigEndian.PutUint32(hdr[4:8], uint32(b.Dx()))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(b.Dy()))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		if _, err := enc.Write(row); err != nil {
			enc.Close()
			return err
		}
	}
	return enc.Close()
}

// Decode reads a snapshot of exactly the size of bounds. Any other size is
// rejected before the pixels are allocated.
func Decode(r io.Reader, bounds image.Rectangle) (*image.RGBA, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadSnapshot, err)
	}
	if !bytes.Equal(hdr[:4], snapshotMagic[:]) {
		return nil, fmt.Errorf("%w: magic", ErrBadSnapshot)
	}
	w, h := binary.BigEndian.Uint32(hdr[4:8]), binary.BigEndian.Uint32(hdr[8:12])
	if w == 0 || h == 0 || int64(w) != int64(bounds.Dx()) || int64(h) != int64(bounds.Dy()) {
		return nil, fmt.Errorf("%w: size %dx%d, want %dx%d", ErrBadSnapshot, w, h, bounds.Dx(), bounds.Dy())
	}

	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	if _, err := io.ReadFull(dec, img.Pix); err != nil {
		return nil, fmt.Errorf("%w: pixels: %v", ErrBadSnapshot, err)
	}
	return img, nil
}
