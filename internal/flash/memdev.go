package flash

import "fmt"

// MemDevice is an in-memory flash model implementing Device. It backs
// the CLI's dry-run mode and the package tests: besides storing data it
// enforces the controller's protection discipline (one protected write
// per unlock, no erase or program of a protected block) and counts every
// hardware operation so callers can assert what a code path touched.
type MemDevice struct {
	Region Region

	// CorruptAttempts makes the first n erase cycles fail verification
	// by spoiling one byte of every written page, simulating a
	// transient program failure.
	CorruptAttempts int

	cells      []byte
	unlocked   bool
	protection byte
	irqMasked  bool
	cycle      int

	// Operation counters.
	Ops     int // every Device call, including interrupt masking
	Unlocks int
	Erases  int
	Writes  int
	Reads   int

	// UnmaskedOps counts flash operations performed while interrupts
	// were not masked.
	UnmaskedOps int
	// UnlockedAtUnmask records whether block protection was still
	// disabled at the moment interrupts were last unmasked.
	UnlockedAtUnmask bool
}

// NewMemDevice returns a model of an erased, fully protected flash
// region with interrupts enabled.
func NewMemDevice(region Region) *MemDevice {
	cells := make([]byte, region.Capacity())
	for i := range cells {
		cells[i] = 0xFF
	}
	return &MemDevice{
		Region:     region,
		cells:      cells,
		protection: 0xFF,
	}
}

// Bytes returns the current flash contents.
func (m *MemDevice) Bytes() []byte {
	return m.cells
}

// IrqMasked reports whether interrupts are currently masked.
func (m *MemDevice) IrqMasked() bool {
	return m.irqMasked
}

func (m *MemDevice) op() {
	m.Ops++
	if !m.irqMasked {
		m.UnmaskedOps++
	}
}

func (m *MemDevice) MaskInterrupts() error {
	m.Ops++
	m.irqMasked = true
	return nil
}

func (m *MemDevice) UnmaskInterrupts() error {
	m.Ops++
	if m.protection != 0xFF || m.unlocked {
		m.UnlockedAtUnmask = true
	}
	m.irqMasked = false
	return nil
}

func (m *MemDevice) UnlockProtection() error {
	m.op()
	m.Unlocks++
	m.unlocked = true
	return nil
}

// consumeUnlock models the key register re-locking after a single
// protected write.
func (m *MemDevice) consumeUnlock(reg string) error {
	if !m.unlocked {
		return fmt.Errorf("write to %s without a fresh unlock", reg)
	}
	m.unlocked = false
	return nil
}

func (m *MemDevice) SetProtection(mask byte) error {
	m.op()
	if err := m.consumeUnlock("protection register"); err != nil {
		return err
	}
	m.protection = mask
	m.cycle++
	return nil
}

func (m *MemDevice) SetEraseTiming(divisor byte) error {
	m.op()
	if err := m.consumeUnlock("timing register"); err != nil {
		return err
	}
	if divisor == 0 {
		return fmt.Errorf("erase timing divisor must be non-zero")
	}
	return nil
}

// block returns the protection block an offset falls in.
func (m *MemDevice) block(off int) uint {
	return uint(off / (m.Region.Capacity() / ProtectionBlocks))
}

func (m *MemDevice) ErasePage(page int) error {
	m.op()
	m.Erases++
	if page < 0 || page >= m.Region.Pages {
		return fmt.Errorf("erase of page %d outside region of %d pages", page, m.Region.Pages)
	}
	off := page * m.Region.PageSize
	if m.protection&(1<<m.block(off)) != 0 {
		return fmt.Errorf("erase of page %d in protected block %d", page, m.block(off))
	}
	for i := off; i < off+m.Region.PageSize; i++ {
		m.cells[i] = 0xFF
	}
	return nil
}

func (m *MemDevice) WritePage(addr uint32, data []byte) error {
	m.op()
	m.Writes++
	if len(data) > m.Region.PageSize {
		return fmt.Errorf("write of %d bytes exceeds page size %d", len(data), m.Region.PageSize)
	}
	off := int(addr - m.Region.Base)
	if off < 0 || off+len(data) > m.Region.Capacity() {
		return fmt.Errorf("write of %d bytes at 0x%06X outside flash region", len(data), addr)
	}
	if m.protection&(1<<m.block(off)) != 0 {
		return fmt.Errorf("write at 0x%06X in protected block %d", addr, m.block(off))
	}
	// NOR semantics: programming only clears bits, so writing over a
	// page that was not erased leaves a mess rather than clean data.
	for i, b := range data {
		m.cells[off+i] &= b
	}
	if m.cycle <= m.CorruptAttempts {
		m.cells[off] ^= 0xFF
	}
	return nil
}

func (m *MemDevice) ReadRegion(addr uint32, n int) ([]byte, error) {
	m.op()
	m.Reads++
	off := int(addr - m.Region.Base)
	if off < 0 || off+n > m.Region.Capacity() {
		return nil, fmt.Errorf("read of %d bytes at 0x%06X outside flash region", n, addr)
	}
	out := make([]byte, n)
	copy(out, m.cells[off:off+n])
	return out, nil
}

func (m *MemDevice) Lock() error {
	m.op()
	m.protection = 0xFF
	m.unlocked = false
	return nil
}
