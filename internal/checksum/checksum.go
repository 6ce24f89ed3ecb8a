package checksum

// CRC-32 (reflected, polynomial 0xEDB88320) as used by the MOS firmware
// tooling to verify flash contents. The accumulator is table-driven so a
// verify pass over the full 128KB region stays bounded by read bandwidth,
// not checksum math.

const polynomial = 0xEDB88320

var table [256]uint32

func init() {
	for i := range table {
		crc := uint32(i)
		for bit := 0; bit < 8; bit++ {
			if crc&1 != 0 {
				crc = (crc >> 1) ^ polynomial
			} else {
				crc >>= 1
			}
		}
		table[i] = crc
	}
}

// CRC32 is a streaming CRC-32 accumulator. Call Update any number of times,
// then Sum32 for the final value. Reset rearms it for another pass.
type CRC32 struct {
	crc uint32
}

// New returns an accumulator initialized for a fresh pass.
func New() *CRC32 {
	c := &CRC32{}
	c.Reset()
	return c
}

// Reset restores the accumulator to its seed state.
func (c *CRC32) Reset() {
	c.crc = 0xFFFFFFFF
}

// Update folds p into the running checksum.
func (c *CRC32) Update(p []byte) {
	crc := c.crc
	for _, b := range p {
		crc = (crc >> 8) ^ table[byte(crc)^b]
	}
	c.crc = crc
}

// Sum32 returns the checksum of everything passed to Update since the last
// Reset. It does not modify the accumulator, so further Updates continue the
// same pass.
func (c *CRC32) Sum32() uint32 {
	return c.crc ^ 0xFFFFFFFF
}

// Sum is a convenience for checksumming a complete buffer in one call.
func Sum(p []byte) uint32 {
	c := New()
	c.Update(p)
	return c.Sum32()
}
