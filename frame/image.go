// image.go defines the decoded image held by a frame reference.

// Package frame provides reference-counted decoded frames and the
// PTS-ordered queue they are buffered in.
package frame

import (
	"fmt"
)

// Image is the backing resource of a decoded frame (e.g. a libav frame
// buffer). Free is called exactly once, when the last reference is dropped.
type Image interface {
	Free()
}

// RawImage is an Image kept in Go memory.
type RawImage struct {
	Width  int
	Height int
	Data   []byte

	// OnFree is called (if set) when the image is released.
	OnFree func()
}

var _ Image = (*RawImage)(nil)

func (img *RawImage) Free() {
	if img.OnFree != nil {
		img.OnFree()
	}
	img.Data = nil
}

func (img *RawImage) String() string {
	return fmt.Sprintf("RawImage(%dx%d)", img.Width, img.Height)
}
