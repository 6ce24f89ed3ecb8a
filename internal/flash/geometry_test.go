package flash

import "testing"

func TestPagePlan(t *testing.T) {
	tests := []struct {
		size      int
		pages     int
		lastBytes int
	}{
		{1, 1, 1},
		{1023, 1, 1023},
		{1024, 1, 1024},
		{1025, 2, 1},
		{2500, 3, 452},
		{131072, 128, 1024},
	}
	for _, tc := range tests {
		pages, last := PagePlan(tc.size, 1024)
		if pages != tc.pages || last != tc.lastBytes {
			t.Errorf("PagePlan(%d, 1024) = (%d, %d), want (%d, %d)",
				tc.size, pages, last, tc.pages, tc.lastBytes)
		}
	}
}

func TestPagePlan_BytesAccountedFor(t *testing.T) {
	const pageSize = 1024
	for size := 1; size <= AgonEZ80.Capacity(); size += 317 {
		pages, last := PagePlan(size, pageSize)

		wantPages := size / pageSize
		if size%pageSize != 0 {
			wantPages++
		}
		if pages != wantPages {
			t.Fatalf("PagePlan(%d): pages = %d, want %d", size, pages, wantPages)
		}
		if written := (pages-1)*pageSize + last; written != size {
			t.Fatalf("PagePlan(%d): total bytes written = %d, want %d", size, written, size)
		}
	}
}

func TestPagePlan_Empty(t *testing.T) {
	pages, last := PagePlan(0, 1024)
	if pages != 0 || last != 0 {
		t.Errorf("PagePlan(0, 1024) = (%d, %d), want (0, 0)", pages, last)
	}
}

func TestEraseTimingDivisor(t *testing.T) {
	tests := []struct {
		clockHz int
		want    byte
	}{
		{DefaultClockHz, 0x5F}, // ceil(18.432MHz * 5.1us) = 95
		{18_000_000, 0x5C},     // ceil(91.8) = 92
		{1_000_000, 0x06},      // ceil(5.1)
		{50_000_000, 0xFF},     // clamps at the register maximum
	}
	for _, tc := range tests {
		if got := EraseTimingDivisor(tc.clockHz); got != tc.want {
			t.Errorf("EraseTimingDivisor(%d) = 0x%02X, want 0x%02X", tc.clockHz, got, tc.want)
		}
	}
}

func TestRegionCapacity(t *testing.T) {
	if got := AgonEZ80.Capacity(); got != 128*1024 {
		t.Errorf("AgonEZ80.Capacity() = %d, want %d", got, 128*1024)
	}
}
