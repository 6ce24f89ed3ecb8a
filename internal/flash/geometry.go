package flash

// Region describes the fixed geometry of a target flash region.
type Region struct {
	Base     uint32 // address of the first byte of flash
	PageSize int    // erase granule in bytes
	Pages    int    // total number of pages
}

// Capacity returns the total size of the region in bytes.
func (r Region) Capacity() int {
	return r.Pages * r.PageSize
}

// AgonEZ80 is the internal flash of the eZ80F92 as fitted to the Agon:
// 128KB mapped at address zero, erased in 1KB pages, write-protected in
// eight 16KB blocks.
var AgonEZ80 = Region{
	Base:     0x000000,
	PageSize: 1024,
	Pages:    128,
}

// ProtectionBlocks is the number of per-block write protection bits in
// the flash protection register.
const ProtectionBlocks = 8

// DefaultClockHz is the eZ80F92 system clock on the Agon, which the
// erase timing divisor is derived from.
const DefaultClockHz = 18_432_000

// erase/program pulse width the flash macro requires, in nanoseconds
const minPulseNanos = 5100 // 5.1us

// EraseTimingDivisor returns the FLASH_FDIV value for a given controller
// clock: ceiling(clockHz * 5.1us). 18.432MHz gives 95 (0x5F).
func EraseTimingDivisor(clockHz int) byte {
	div := (uint64(clockHz)*minPulseNanos + 1e9 - 1) / 1e9
	if div > 0xFF {
		div = 0xFF
	}
	return byte(div)
}

// PagePlan returns how many pages an image of imageSize occupies and how
// many bytes belong in the final page. Every page except the last is a
// full PageSize; the last carries the remainder, or a full page when the
// size divides evenly.
func PagePlan(imageSize, pageSize int) (pages, lastPageBytes int) {
	if imageSize <= 0 {
		return 0, 0
	}
	pages = imageSize / pageSize
	lastPageBytes = imageSize % pageSize
	if lastPageBytes != 0 {
		pages++
	} else {
		lastPageBytes = pageSize
	}
	return pages, lastPageBytes
}
