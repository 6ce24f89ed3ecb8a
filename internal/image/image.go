package image

import (
	"errors"
	"fmt"
	"io"
)

// Signature is the byte sequence every valid MOS image starts with: the
// eZ80 startup code emitted by the MOS build (di / ld hl,** / jp **).
var Signature = []byte{0xF3, 0xED, 0x7D, 0x5B, 0xC3}

// ErrEmpty is returned when the image source yields no data at all.
var ErrEmpty = errors.New("image is empty")

// SignatureError indicates the image does not begin with valid eZ80
// startup code.
type SignatureError struct {
	Got []byte
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("image does not contain valid MOS eZ80 startup code (got % X, want % X)",
		e.Got, Signature)
}

// SizeError indicates the image does not fit the target flash region.
type SizeError struct {
	Size     int
	Capacity int
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("image is %d bytes, too large for %d bytes of embedded flash",
		e.Size, e.Capacity)
}

// Image is a firmware image held in memory. The buffer is owned by the
// Image and never mutated after Load returns.
type Image struct {
	Data []byte
}

// Size returns the image length in bytes.
func (img *Image) Size() int {
	return len(img.Data)
}

// Load reads the whole image from r into an owned buffer bounded by
// capacity. A source that reports success but delivers zero bytes is a
// distinct failure (ErrEmpty): it means the storage returned nothing,
// not a valid empty firmware.
func Load(r io.Reader, capacity int) (*Image, error) {
	// One byte of headroom so an oversize source is detected rather
	// than silently truncated at capacity.
	buf, err := io.ReadAll(io.LimitReader(r, int64(capacity)+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(buf) == 0 {
		return nil, ErrEmpty
	}
	return &Image{Data: buf}, nil
}

// Validate runs the pre-flight structural checks, in order: entry
// signature, then size bound. It touches no hardware; a failure here
// guarantees the device is untouched.
func (img *Image) Validate(capacity int) error {
	if len(img.Data) < len(Signature) {
		return &SignatureError{Got: img.Data}
	}
	for i, b := range Signature {
		if img.Data[i] != b {
			return &SignatureError{Got: img.Data[:len(Signature)]}
		}
	}
	if len(img.Data) > capacity {
		return &SizeError{Size: len(img.Data), Capacity: capacity}
	}
	return nil
}
