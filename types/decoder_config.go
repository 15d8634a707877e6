package types

import (
	"fmt"

	"github.com/xaionaro-go/videoinput/extradata"
)

// DecoderConfig is the codec description a Source discovers for its stream.
type DecoderConfig struct {
	// Codec is the libav name of the codec, e.g. "h264".
	Codec string

	// Extradata is the out-of-band codec configuration (e.g. avcC for H.264).
	Extradata []byte

	Width  int
	Height int
}

func (c DecoderConfig) String() string {
	return fmt.Sprintf("%s:%dx%d(extradata:%s)", c.Codec, c.Width, c.Height, extradata.Describe(c.Extradata))
}
