package timex

import "time"

// Boot reference for the ms-since-boot clock. Set once at init; the u32
// wraps after ~49.7 days, which all comparisons tolerate via ElapsedMs.
var bootTime = time.Now()

// NowMs returns milliseconds since boot, truncated to u32.
func NowMs() uint32 { return uint32(time.Since(bootTime).Milliseconds()) }

// ElapsedMs returns now-then assuming at most one u32 wrap between them.
func ElapsedMs(now, then uint32) uint32 { return now - then }

// After reports whether a (taken later on the same clock) is strictly past b,
// tolerating wraparound.
func After(a, b uint32) bool { return int32(a-b) > 0 }

// PeriodFromHz returns a millisecond period for a requested frequency.
// freqHz==0 is coerced to 1 to avoid division by zero.
func PeriodFromHz(freqHz uint32) uint32 {
	if freqHz == 0 {
		freqHz = 1
	}
	return 1000 / freqHz
}
