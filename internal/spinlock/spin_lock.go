// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package spinlock implements a busy-wait lock placed into shared memory.
// The lock word holds the pid of the owner, so a lock left by
// a crashed process can be taken over.
package spinlock

import (
	"os"
	"runtime"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/process"
)

// DefaultSpinMax is the number of failed attempts after which
// the owner of the lock is checked for being alive.
const DefaultSpinMax = 1000000

// Locker locks and unlocks shared lock words on behalf of a process.
type Locker struct {
	pid        uint32
	spinMax    int
	ownerAlive func(pid uint32) bool
}

// Option is a Locker option.
type Option func(l *Locker)

// WithSpinMax sets the number of failed attempts before the owner check.
func WithSpinMax(n int) Option {
	return func(l *Locker) {
		if n > 0 {
			l.spinMax = n
		}
	}
}

// WithOwnerCheck replaces the function, which tells whether an owner process is alive.
func WithOwnerCheck(f func(pid uint32) bool) Option {
	return func(l *Locker) {
		l.ownerAlive = f
	}
}

// WithPid sets the value written into the lock word by this locker.
func WithPid(pid uint32) Option {
	return func(l *Locker) {
		l.pid = pid
	}
}

// New returns a Locker for the current process.
func New(opts ...Option) *Locker {
	l := &Locker{
		pid:        uint32(os.Getpid()),
		spinMax:    DefaultSpinMax,
		ownerAlive: processExists,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Pid returns the value the locker stores into a locked word.
func (l *Locker) Pid() uint32 {
	return l.pid
}

// TryLock makes one attempt to lock the word. It return true on success and false otherwise.
func (l *Locker) TryLock(word *uint32) bool {
	return atomic.CompareAndSwapUint32(word, 0, l.pid)
}

// Lock locks the word waiting in a busy loop if needed.
// If the owner has died, the lock is forced and Lock returns
// the pid of the dead owner and true.
func (l *Locker) Lock(word *uint32) (deadOwner uint32, forced bool) {
	spins := 0
	for !l.TryLock(word) {
		runtime.Gosched()
		if spins++; spins < l.spinMax {
			continue
		}
		spins = 0
		if owner, ok := l.force(word); ok {
			return owner, true
		}
	}
	return 0, false
}

// TryLockOrForce makes one attempt to lock the word. If the word is held by
// a dead process, the lock is taken over and the dead pid is returned with forced set.
// ok is false, if the owner is alive.
func (l *Locker) TryLockOrForce(word *uint32) (deadOwner uint32, forced, ok bool) {
	if l.TryLock(word) {
		return 0, false, true
	}
	if owner, taken := l.force(word); taken {
		return owner, true, true
	}
	return 0, false, false
}

func (l *Locker) force(word *uint32) (uint32, bool) {
	owner := atomic.LoadUint32(word)
	if owner == 0 || owner == l.pid || l.ownerAlive(owner) {
		return 0, false
	}
	return owner, atomic.CompareAndSwapUint32(word, owner, l.pid)
}

// Unlock releases the word.
func (l *Locker) Unlock(word *uint32) {
	atomic.StoreUint32(word, 0)
}

// Owner returns the pid, which holds the lock, or 0.
func Owner(word *uint32) uint32 {
	return atomic.LoadUint32(word)
}

func processExists(pid uint32) bool {
	exists, err := process.PidExists(int32(pid))
	if err != nil {
		return true
	}
	return exists
}
