package libav

import (
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/xaionaro-go/videoinput/frame"
	"github.com/xaionaro-go/videoinput/pool"
)

var framePool = pool.NewPool(
	astiav.AllocFrame,
	func(f *astiav.Frame) { f.Unref() },
	func(f *astiav.Frame) { f.Free() },
)

// Image is a decoded libav frame. It goes back to the frame pool when the
// last reference to it is dropped.
type Image struct {
	Frame *astiav.Frame
}

var _ frame.Image = (*Image)(nil)

func (img *Image) Free() {
	if img.Frame == nil {
		return
	}
	framePool.Put(img.Frame)
	img.Frame = nil
}

func (img *Image) String() string {
	if img.Frame == nil {
		return "Image(<released>)"
	}
	return fmt.Sprintf("Image(%dx%d, %s)", img.Frame.Width(), img.Frame.Height(), img.Frame.PixelFormat())
}
