// closure_signaler.go provides a utility for signaling the closure of a resource.

// Package closuresignaler provides a utility for signaling the closure of a resource.
package closuresignaler

import (
	"context"
	"sync"

	"github.com/xaionaro-go/videoinput/logger"
)

// ClosureSignaler is a close-once channel; it is used to stop background
// loops (demuxing, decoding) of a resource being closed.
type ClosureSignaler struct {
	closeOnce sync.Once
	c         chan struct{}
}

func New() *ClosureSignaler {
	return &ClosureSignaler{
		c: make(chan struct{}),
	}
}

func (c *ClosureSignaler) CloseChan() <-chan struct{} {
	return c.c
}

// Close signals the closure; it returns true only for the first call.
func (c *ClosureSignaler) Close(ctx context.Context) bool {
	logger.Debugf(ctx, "Close")
	isFirst := false
	c.closeOnce.Do(func() {
		close(c.c)
		isFirst = true
	})
	logger.Debugf(ctx, "/Close: %t", isFirst)
	return isFirst
}

func (c *ClosureSignaler) IsClosed() bool {
	select {
	case <-c.c:
		return true
	default:
		return false
	}
}
