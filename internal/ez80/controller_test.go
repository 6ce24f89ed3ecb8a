package ez80

import (
	"bytes"
	"testing"
)

// fakeBus records every register access and answers FLASH_PGCTL polls
// from a canned busy sequence.
type fakeBus struct {
	outs      []portWrite
	busyPolls int // remaining polls that report erase-in-progress
	polled    int

	mem map[uint32][]byte
}

type portWrite struct {
	port  byte
	value byte
}

func (b *fakeBus) In(port byte) (byte, error) {
	if port == RegFlashPgCtl {
		b.polled++
		if b.busyPolls > 0 {
			b.busyPolls--
			return pgCtlErase, nil
		}
		return 0, nil
	}
	return 0, nil
}

func (b *fakeBus) Out(port byte, value byte) error {
	b.outs = append(b.outs, portWrite{port, value})
	return nil
}

func (b *fakeBus) ReadMem(addr uint32, n int) ([]byte, error) {
	return b.mem[addr][:n], nil
}

func (b *fakeBus) WriteMem(addr uint32, data []byte) error {
	if b.mem == nil {
		b.mem = make(map[uint32][]byte)
	}
	b.mem[addr] = append([]byte(nil), data...)
	return nil
}

func (b *fakeBus) InterruptsOff() error { return nil }
func (b *fakeBus) InterruptsOn() error  { return nil }

func TestUnlockProtection_KeySequence(t *testing.T) {
	bus := &fakeBus{}
	c := NewController(bus)
	if err := c.UnlockProtection(); err != nil {
		t.Fatalf("UnlockProtection() error: %v", err)
	}

	want := []portWrite{
		{RegFlashKey, 0xB6},
		{RegFlashKey, 0x49},
	}
	if len(bus.outs) != len(want) {
		t.Fatalf("register writes = %v, want %v", bus.outs, want)
	}
	for i := range want {
		if bus.outs[i] != want[i] {
			t.Fatalf("register writes = %v, want %v", bus.outs, want)
		}
	}
}

func TestErasePage_BusyPoll(t *testing.T) {
	bus := &fakeBus{busyPolls: 3}
	c := NewController(bus)
	if err := c.ErasePage(42); err != nil {
		t.Fatalf("ErasePage() error: %v", err)
	}

	want := []portWrite{
		{RegFlashPage, 42},
		{RegFlashPgCtl, pgCtlErase},
	}
	for i := range want {
		if bus.outs[i] != want[i] {
			t.Fatalf("register writes = %v, want %v", bus.outs, want)
		}
	}
	// Three busy reads plus the final idle one.
	if bus.polled != 4 {
		t.Errorf("FLASH_PGCTL polled %d times, want 4", bus.polled)
	}
}

func TestLock_UnlocksThenProtectsAll(t *testing.T) {
	bus := &fakeBus{}
	c := NewController(bus)
	if err := c.Lock(); err != nil {
		t.Fatalf("Lock() error: %v", err)
	}

	want := []portWrite{
		{RegFlashKey, 0xB6},
		{RegFlashKey, 0x49},
		{RegFlashProt, 0xFF},
	}
	if len(bus.outs) != len(want) {
		t.Fatalf("register writes = %v, want %v", bus.outs, want)
	}
	for i := range want {
		if bus.outs[i] != want[i] {
			t.Fatalf("register writes = %v, want %v", bus.outs, want)
		}
	}
}

func TestWritePage_ReadRegion(t *testing.T) {
	bus := &fakeBus{}
	c := NewController(bus)

	data := []byte{0x01, 0x02, 0x03, 0x04}
	if err := c.WritePage(0x001400, data); err != nil {
		t.Fatalf("WritePage() error: %v", err)
	}
	got, err := c.ReadRegion(0x001400, len(data))
	if err != nil {
		t.Fatalf("ReadRegion() error: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadRegion() = % X, want % X", got, data)
	}
}
