package timex

import "time"

// PeriodFromHz returns the period of one clock cycle at freqHz.
// freqHz==0 is coerced to 1 to avoid division by zero.
func PeriodFromHz(freqHz uint32) time.Duration {
	if freqHz == 0 {
		freqHz = 1
	}
	return time.Second / time.Duration(freqHz)
}

// ByteTime returns the bus time n data bytes occupy at freqHz: nine clock
// cycles per byte (eight bits plus the acknowledge slot).
func ByteTime(n int, freqHz uint32) time.Duration {
	if n < 0 {
		n = 0
	}
	return time.Duration(n) * 9 * PeriodFromHz(freqHz)
}
