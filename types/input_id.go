package types

// InputID identifies a logical video stream registered in the compositor.
type InputID string

func (id InputID) String() string {
	return string(id)
}
