package flash

import "fmt"

// VerificationError indicates that the flash contents never matched the
// source image checksum, even after exhausting every programming
// attempt. The device is left holding the last, unverified write; there
// is no prior image to restore.
type VerificationError struct {
	Attempts int
	Want     uint32
	Got      uint32
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("flash verification failed after %d attempts: CRC 0x%08X, want 0x%08X",
		e.Attempts, e.Got, e.Want)
}
