package flash

// Device is the capability interface to a flash controller. It is the
// only path by which the programmer touches hardware, so an in-memory
// model (MemDevice) can stand in for the real eZ80 controller during
// dry runs and tests.
//
// The protection registers re-lock after every single protected write:
// each SetProtection or SetEraseTiming call needs a fresh
// UnlockProtection immediately before it.
type Device interface {
	// MaskInterrupts disables interrupt delivery on the target. While
	// flash is being rewritten there is no resident firmware for a
	// handler to run from, so the mask must hold for the entire
	// erase/program/verify sequence.
	MaskInterrupts() error
	// UnmaskInterrupts re-enables interrupts. Only safe once the flash
	// holds a verified image or the operation has been abandoned.
	UnmaskInterrupts() error

	// UnlockProtection issues the flash key unlock sequence, arming
	// exactly one following protected register write.
	UnlockProtection() error
	// SetProtection writes the per-block write protection mask. A zero
	// mask disables protection on every block.
	SetProtection(mask byte) error
	// SetEraseTiming writes the erase timing divisor derived from the
	// controller clock.
	SetEraseTiming(divisor byte) error

	// ErasePage erases one page and waits for the controller to signal
	// completion. The wait is unbounded: hardware that never finishes an
	// erase has no software recovery path.
	ErasePage(page int) error
	// WritePage copies len(data) bytes (at most one page) from data
	// into flash at addr.
	WritePage(addr uint32, data []byte) error
	// ReadRegion reads n bytes of flash starting at addr.
	ReadRegion(addr uint32, n int) ([]byte, error)

	// Lock restores write protection on all blocks. Must be called
	// before any reset leaves the device, so a stray future write
	// cannot erase flash.
	Lock() error
}
