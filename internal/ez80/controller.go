// Package ez80 drives the eZ80F92 internal flash controller register by
// register. It is the production implementation of the flash.Device
// capability interface; everything it does goes through a Bus, so the
// same sequencing runs against the serial debug bridge or a test fake.
package ez80

import (
	"fmt"

	"github.com/agon-tools/mos-flash/internal/flash"
)

// Bus is the access path to the target: I/O register reads and writes,
// bulk memory access, and interrupt control.
type Bus interface {
	In(port byte) (byte, error)
	Out(port byte, value byte) error
	ReadMem(addr uint32, n int) ([]byte, error)
	WriteMem(addr uint32, data []byte) error
	InterruptsOff() error
	InterruptsOn() error
}

// Controller implements flash.Device for the eZ80F92.
type Controller struct {
	bus Bus
}

// NewController returns a Controller driving the given bus.
func NewController(bus Bus) *Controller {
	return &Controller{bus: bus}
}

func (c *Controller) MaskInterrupts() error {
	return c.bus.InterruptsOff()
}

func (c *Controller) UnmaskInterrupts() error {
	return c.bus.InterruptsOn()
}

// UnlockProtection writes the two-byte key sequence to FLASH_KEY. The
// register re-locks after the next protected write, so this runs before
// every write to FLASH_PROT or FLASH_FDIV.
func (c *Controller) UnlockProtection() error {
	if err := c.bus.Out(RegFlashKey, keyUnlock1); err != nil {
		return fmt.Errorf("flash key unlock: %w", err)
	}
	if err := c.bus.Out(RegFlashKey, keyUnlock2); err != nil {
		return fmt.Errorf("flash key unlock: %w", err)
	}
	return nil
}

func (c *Controller) SetProtection(mask byte) error {
	if err := c.bus.Out(RegFlashProt, mask); err != nil {
		return fmt.Errorf("flash protection register: %w", err)
	}
	return nil
}

func (c *Controller) SetEraseTiming(divisor byte) error {
	if err := c.bus.Out(RegFlashFDiv, divisor); err != nil {
		return fmt.Errorf("flash timing register: %w", err)
	}
	return nil
}

// ErasePage selects a page and starts its erase, then polls the erase
// bit until the controller clears it. The poll is deliberately
// unbounded: if the hardware never finishes, no software timeout could
// recover the device anyway.
func (c *Controller) ErasePage(page int) error {
	if err := c.bus.Out(RegFlashPage, byte(page)); err != nil {
		return fmt.Errorf("selecting page %d: %w", page, err)
	}
	if err := c.bus.Out(RegFlashPgCtl, pgCtlErase); err != nil {
		return fmt.Errorf("starting erase of page %d: %w", page, err)
	}
	for {
		v, err := c.bus.In(RegFlashPgCtl)
		if err != nil {
			return fmt.Errorf("polling erase of page %d: %w", page, err)
		}
		if v&pgCtlErase == 0 {
			return nil
		}
	}
}

func (c *Controller) WritePage(addr uint32, data []byte) error {
	if err := c.bus.WriteMem(addr, data); err != nil {
		return fmt.Errorf("programming 0x%06X: %w", addr, err)
	}
	return nil
}

func (c *Controller) ReadRegion(addr uint32, n int) ([]byte, error) {
	buf, err := c.bus.ReadMem(addr, n)
	if err != nil {
		return nil, fmt.Errorf("reading 0x%06X: %w", addr, err)
	}
	return buf, nil
}

// Lock restores protection on all blocks. It needs its own fresh unlock
// since the key register re-locked after the last protected write.
func (c *Controller) Lock() error {
	if err := c.UnlockProtection(); err != nil {
		return err
	}
	return c.SetProtection(protectAll)
}

// interface check
var _ flash.Device = (*Controller)(nil)
