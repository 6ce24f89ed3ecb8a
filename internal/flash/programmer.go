package flash

import (
	"fmt"

	"github.com/agon-tools/mos-flash/internal/checksum"
	"github.com/agon-tools/mos-flash/internal/image"
)

// Phase identifies where a programming session is in the
// erase/program/verify cycle.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseErasing
	PhaseProgramming
	PhaseVerifying
	PhaseRetrying
	PhaseSucceeded
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseErasing:
		return "erasing"
	case PhaseProgramming:
		return "programming"
	case PhaseVerifying:
		return "verifying"
	case PhaseRetrying:
		return "retrying"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Progress is a snapshot of a running session delivered to the progress
// callback.
type Progress struct {
	Phase      Phase
	Attempt    int // 1-based erase/program/verify cycle
	Page       int // pages written so far in this attempt
	TotalPages int
}

// ProgressFunc receives progress snapshots during programming.
type ProgressFunc func(Progress)

// Config holds the programmer configuration.
type Config struct {
	// MaxAttempts is the number of full erase/program/verify cycles to
	// run before giving up.
	MaxAttempts int

	// ClockHz is the flash controller clock, used to derive the erase
	// timing divisor.
	ClockHz int

	// OnProgress is called with progress snapshots (optional).
	OnProgress ProgressFunc
}

func defaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		ClockHz:     DefaultClockHz,
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithMaxAttempts sets the number of full programming cycles to attempt.
func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

// WithClock sets the flash controller clock frequency in Hz.
func WithClock(hz int) Option {
	return func(c *Config) {
		if hz > 0 {
			c.ClockHz = hz
		}
	}
}

// WithProgress sets a callback to receive progress snapshots.
func WithProgress(fn ProgressFunc) Option {
	return func(c *Config) {
		c.OnProgress = fn
	}
}

// session is the ephemeral state of one Program call: the attempt
// counter, the page being written, and the outcome so far.
type session struct {
	attempt int
	page    int
	outcome Phase
}

// Result describes a successful programming operation.
type Result struct {
	Attempts int    // cycles it took to verify
	CRC      uint32 // verified checksum of the flash contents
}

// Programmer drives the destructive erase/program/verify sequence
// against a flash device.
type Programmer struct {
	dev    Device
	region Region
	cfg    Config
}

// New creates a Programmer for the given device and region geometry.
func New(dev Device, region Region, opts ...Option) *Programmer {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Programmer{dev: dev, region: region, cfg: cfg}
}

// Program replaces the flash contents with img and verifies the result.
//
// The image is validated and its checksum taken before any hardware is
// touched; a validation failure leaves the device untouched. From the
// first erase the operation is not cancellable: interrupts stay masked
// across every attempt, because the firmware that used to service them
// is the thing being erased. Any caller confirmation must happen before
// this call.
//
// On a checksum mismatch the whole cycle is retried from a fresh
// full-region erase, up to MaxAttempts times. Exhausting the attempts
// returns a *VerificationError and leaves the flash in the last,
// unverified state.
func (p *Programmer) Program(img *image.Image) (*Result, error) {
	if err := img.Validate(p.region.Capacity()); err != nil {
		return nil, err
	}

	// Expected checksum comes from the source image, once, before any
	// erase. Each attempt is verified against this value.
	want := checksum.Sum(img.Data)

	pages, lastPageBytes := PagePlan(img.Size(), p.region.PageSize)
	s := &session{outcome: PhaseIdle}

	if err := p.dev.MaskInterrupts(); err != nil {
		return nil, fmt.Errorf("masking interrupts: %w", err)
	}
	defer p.dev.UnmaskInterrupts()

	var got uint32
	for s.attempt = 1; s.attempt <= p.cfg.MaxAttempts; s.attempt++ {
		if s.attempt > 1 {
			p.notify(s, PhaseRetrying, pages)
		}

		s.page = 0
		p.notify(s, PhaseErasing, pages)
		if err := p.eraseAll(); err != nil {
			return nil, err
		}

		p.notify(s, PhaseProgramming, pages)
		if err := p.writeImage(s, img, pages, lastPageBytes); err != nil {
			return nil, err
		}

		// Protection back on before anything can reset the device.
		if err := p.dev.Lock(); err != nil {
			return nil, fmt.Errorf("locking flash: %w", err)
		}

		p.notify(s, PhaseVerifying, pages)
		var err error
		got, err = p.ReadbackCRC(img.Size())
		if err != nil {
			return nil, err
		}
		if got == want {
			p.notify(s, PhaseSucceeded, pages)
			return &Result{Attempts: s.attempt, CRC: want}, nil
		}
	}

	s.attempt = p.cfg.MaxAttempts
	p.notify(s, PhaseFailed, pages)
	return nil, &VerificationError{Attempts: p.cfg.MaxAttempts, Want: want, Got: got}
}

// eraseAll unprotects the flash and erases every page of the region,
// regardless of how much of it the image will occupy.
func (p *Programmer) eraseAll() error {
	// Each protected register write re-locks the key register, so the
	// unlock sequence runs before both of them.
	if err := p.dev.UnlockProtection(); err != nil {
		return fmt.Errorf("unlocking flash: %w", err)
	}
	if err := p.dev.SetProtection(0); err != nil {
		return fmt.Errorf("disabling block protection: %w", err)
	}
	if err := p.dev.UnlockProtection(); err != nil {
		return fmt.Errorf("unlocking flash: %w", err)
	}
	if err := p.dev.SetEraseTiming(EraseTimingDivisor(p.cfg.ClockHz)); err != nil {
		return fmt.Errorf("setting erase timing: %w", err)
	}

	for page := 0; page < p.region.Pages; page++ {
		if err := p.dev.ErasePage(page); err != nil {
			return fmt.Errorf("erasing page %d: %w", page, err)
		}
	}
	return nil
}

// writeImage programs the image page by page in ascending order. The
// final page carries only lastPageBytes; source and destination still
// advance by a full page.
func (p *Programmer) writeImage(s *session, img *image.Image, pages, lastPageBytes int) error {
	addr := p.region.Base
	off := 0
	for i := 0; i < pages; i++ {
		n := p.region.PageSize
		if i == pages-1 {
			n = lastPageBytes
		}
		if err := p.dev.WritePage(addr, img.Data[off:off+n]); err != nil {
			return fmt.Errorf("writing page %d: %w", i, err)
		}
		s.page = i + 1
		p.notify(s, PhaseProgramming, pages)
		addr += uint32(p.region.PageSize)
		off += p.region.PageSize
	}
	return nil
}

// ReadbackCRC checksums the first size bytes of the flash region,
// streaming them back a page at a time. Program uses it for the verify
// pass; it is also useful on its own to audit flash contents against an
// image without reprogramming.
func (p *Programmer) ReadbackCRC(size int) (uint32, error) {
	acc := checksum.New()
	addr := p.region.Base
	for remaining := size; remaining > 0; {
		n := p.region.PageSize
		if n > remaining {
			n = remaining
		}
		buf, err := p.dev.ReadRegion(addr, n)
		if err != nil {
			return 0, fmt.Errorf("reading back flash at 0x%06X: %w", addr, err)
		}
		acc.Update(buf)
		addr += uint32(n)
		remaining -= n
	}
	return acc.Sum32(), nil
}

func (p *Programmer) notify(s *session, phase Phase, totalPages int) {
	s.outcome = phase
	if p.cfg.OnProgress != nil {
		p.cfg.OnProgress(Progress{
			Phase:      phase,
			Attempt:    s.attempt,
			Page:       s.page,
			TotalPages: totalPages,
		})
	}
}
