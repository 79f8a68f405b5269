// Package guard provides a non-blocking single-flight lock.
package guard

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrReentrantCall is returned when the guard is already held.
var ErrReentrantCall = errors.New("reentrant call")

// Guard admits at most one holder at a time. A second Enter, whether nested
// inside the holder's own call stack or from another goroutine, fails
// immediately with ErrReentrantCall instead of blocking.
//
// The zero value is an unheld guard.
type Guard struct {
	held atomic.Bool
}

// Enter acquires the guard. The returned release func clears it and is safe
// to call more than once; callers should defer it.
func (g *Guard) Enter() (release func(), err error) {
	if !g.held.CompareAndSwap(false, true) {
		return nil, ErrReentrantCall
	}
	var once sync.Once
	return func() {
		once.Do(func() { g.held.Store(false) })
	}, nil
}

// Held reports whether the guard is currently held.
func (g *Guard) Held() bool {
	return g.held.Load()
}
