// duration.go converts between libav timestamps and time.Duration.

// Package avconv converts values between libav and this module's types.
package avconv

import (
	"math"
	"time"

	"github.com/asticode/go-astiav"
)

const (
	// see https://ffmpeg.org/doxygen/trunk/group__lavu__time.html#ga2eaefe702f95f619ea6f2d08afa01be1
	avNoPTSValue = uint64(0x8000000000000000)
)

// NoDuration is the time.Duration counterpart of AV_NOPTS_VALUE.
const NoDuration = time.Duration(math.MinInt64)

// NanosecondRational is the time base of time.Duration.
var NanosecondRational = astiav.NewRational(1, int(time.Second))

func init() {
	if avNoPTSValue != uint64(any(int64(math.MinInt64)).(int64)) { // to bypass the compiler check
		panic("avNoPTSValue changed")
	}
}

// Duration converts a timestamp in units of timeBase. AV_NOPTS_VALUE
// becomes NoDuration.
func Duration(t int64, timeBase astiav.Rational) time.Duration {
	if uint64(t) == avNoPTSValue {
		return NoDuration
	}
	if timeBase.Den() == 0 {
		return NoDuration
	}

	// av_rescale_q computes in 128 bits, so long streams do not overflow
	return time.Duration(astiav.RescaleQ(t, timeBase, NanosecondRational))
}

func FromDuration(d time.Duration, timeBase astiav.Rational) int64 {
	if d == NoDuration || timeBase.Num() == 0 {
		return math.MinInt64 // equivalent to avNoPTSValue
	}

	return astiav.RescaleQ(int64(d), NanosecondRational, timeBase)
}
