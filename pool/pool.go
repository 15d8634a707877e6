// pool.go implements a generic object pool for libav packets and frames.

// Package pool provides a generic object pool with finalizers.
package pool

import (
	"runtime"
	"sync"
)

// ReuseMemory may be disabled to debug use-after-release of pooled objects.
var ReuseMemory = true

type Pool[T any] struct {
	sync.Pool
	ResetFunc func(*T)
}

// NewPool returns a pool that allocates with allocFunc, resets returned
// items with resetFunc and frees items the GC collects with freeFunc.
func NewPool[T any](
	allocFunc func() *T,
	resetFunc func(*T),
	freeFunc func(*T),
) *Pool[T] {
	return &Pool[T]{
		Pool: sync.Pool{
			New: func() any {
				v := allocFunc()
				runtime.SetFinalizer(v, func(v *T) {
					freeFunc(v)
				})
				return v
			},
		},
		ResetFunc: resetFunc,
	}
}

func (p *Pool[T]) Get() *T {
	return p.Pool.Get().(*T)
}

func (p *Pool[T]) Put(items ...*T) {
	if !ReuseMemory {
		for _, item := range items {
			p.ResetFunc(item)
		}
		return
	}
	for _, item := range items {
		p.ResetFunc(item)
		p.Pool.Put(item)
	}
}
