package ez80

// eZ80F92 flash controller registers, I/O page 0xF5-0xFF.
const (
	RegFlashKey    = 0xF5 // write 0xB6,0x49 to unlock one protected write
	RegFlashData   = 0xF6
	RegFlashAddrU  = 0xF7
	RegFlashCtrl   = 0xF8
	RegFlashFDiv   = 0xF9 // erase/program timing divisor
	RegFlashProt   = 0xFA // per-block write protection, one bit per 16KB
	RegFlashIrqCtl = 0xFB
	RegFlashPage   = 0xFC // page select for erase
	RegFlashRow    = 0xFD
	RegFlashCol    = 0xFE
	RegFlashPgCtl  = 0xFF // page erase control/status
)

// Flash key register unlock sequence.
const (
	keyUnlock1 = 0xB6
	keyUnlock2 = 0x49
)

// FLASH_PGCTL bits.
const (
	// pgCtlErase starts a page erase; the controller holds it set until
	// the erase completes.
	pgCtlErase = 0x02
)

// protectAll re-enables write protection on all eight blocks.
const protectAll = 0xFF
