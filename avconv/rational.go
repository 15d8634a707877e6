package avconv

import (
	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/typing"
	"github.com/xaionaro-go/videoinput/types"
)

func Rational(r astiav.Rational) types.Rational {
	return types.Rational{
		Num: r.Num(),
		Den: r.Den(),
	}
}

// Framerate picks the average framerate of the stream, falling back to
// the real base framerate; it is unset if libav knows neither.
func Framerate(stream *astiav.Stream) typing.Optional[types.Rational] {
	for _, candidate := range []astiav.Rational{
		stream.AvgFrameRate(),
		stream.RFrameRate(),
	} {
		if r := Rational(candidate); r.IsValid() {
			return typing.Opt(r)
		}
	}
	return typing.Optional[types.Rational]{}
}
