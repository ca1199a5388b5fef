// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package mpsc implements an intrusive multi-producer single-consumer
// linked queue over slot indices in shared memory.
//
// Producers link new nodes at the head with a tagged compare-and-swap.
// The consumer removes nodes from the tail. Each queue owns one stub node,
// which keeps the list non-empty at the link level.
package mpsc

import (
	"sync/atomic"

	"github.com/nxgtw/go-shf/internal/layout"
)

// None is the 'no node' link value.
const None = layout.None

// PopResult is a result of a pop attempt.
type PopResult int

const (
	// Popped means a node was removed from the queue.
	Popped PopResult = iota
	// Empty means the queue has no nodes.
	Empty
	// Busy means a producer has swapped the head, but has not linked its node yet.
	// The node will become visible shortly.
	Busy
)

// Pack builds a head word from a tag and an index.
func Pack(tag, idx uint32) uint64 {
	return uint64(tag)<<32 | uint64(idx)
}

// Unpack splits a head word into a tag and an index.
func Unpack(word uint64) (tag, idx uint32) {
	return uint32(word >> 32), uint32(word)
}

// Queue is a handle to a queue control block and the shared links array.
// It is cheap to copy.
type Queue struct {
	b     *layout.QueueBlock
	links []uint32
}

// Init resets the control block to an empty queue with the given stub node.
// It must be called once, before the queue is shared.
// Counters, the lock and the name are cleared.
func Init(b *layout.QueueBlock, links []uint32, stub uint32) Queue {
	*b = layout.QueueBlock{}
	links[stub] = None
	b.Stub = stub
	b.Tail = stub
	b.Head = Pack(0, stub)
	return Queue{b: b, links: links}
}

// Open returns a handle to an initialized queue.
func Open(b *layout.QueueBlock, links []uint32) Queue {
	return Queue{b: b, links: links}
}

// Push links the node n at the head of the queue.
// expected is the caller's belief about the current head.
// It seeds the first compare-and-swap; on a mismatch the head is re-read
// and the push is retried, so the node is never lost.
// Push returns the previous head and the number of failed attempts.
func (q Queue) Push(n, expected uint32) (prev uint32, conflicts int) {
	prev, conflicts = q.link(n, expected)
	atomic.AddInt32(&q.b.Size, 1)
	atomic.AddUint64(&q.b.Pushes, 1)
	if conflicts > 0 {
		atomic.AddUint64(&q.b.Conflicts, uint64(conflicts))
	}
	return prev, conflicts
}

func (q Queue) link(n, expected uint32) (uint32, int) {
	atomic.StoreUint32(&q.links[n], None)
	old := atomic.LoadUint64(&q.b.Head)
	if expected != None {
		tag, _ := Unpack(old)
		old = Pack(tag, expected)
	}
	var conflicts int
	for {
		tag, _ := Unpack(old)
		if atomic.CompareAndSwapUint64(&q.b.Head, old, Pack(tag+1, n)) {
			break
		}
		conflicts++
		old = atomic.LoadUint64(&q.b.Head)
	}
	_, prev := Unpack(old)
	// the node becomes reachable from the tail only after this store.
	atomic.StoreUint32(&q.links[prev], n)
	return prev, conflicts
}

// Pop removes the oldest node. Only one consumer may call Pop at a time.
// An Empty result never modifies the queue.
func (q Queue) Pop() (uint32, PopResult) {
	stub := q.b.Stub
	tail := atomic.LoadUint32(&q.b.Tail)
	next := atomic.LoadUint32(&q.links[tail])
	if tail == stub {
		if next == None {
			if _, head := Unpack(atomic.LoadUint64(&q.b.Head)); head == stub {
				return None, Empty
			}
			return None, Busy
		}
		atomic.StoreUint32(&q.b.Tail, next)
		tail = next
		next = atomic.LoadUint32(&q.links[tail])
	}
	if next != None {
		atomic.StoreUint32(&q.b.Tail, next)
		return q.popped(tail), Popped
	}
	if _, head := Unpack(atomic.LoadUint64(&q.b.Head)); tail != head {
		return None, Busy
	}
	// tail is the last node. put the stub behind it to be able to detach it.
	q.link(stub, None)
	if next = atomic.LoadUint32(&q.links[tail]); next != None {
		atomic.StoreUint32(&q.b.Tail, next)
		return q.popped(tail), Popped
	}
	return None, Busy
}

func (q Queue) popped(n uint32) uint32 {
	atomic.AddInt32(&q.b.Size, -1)
	atomic.AddUint64(&q.b.Pulls, 1)
	return n
}

// Head returns the most recently pushed node, or None if the queue is empty.
func (q Queue) Head() uint32 {
	_, head := Unpack(atomic.LoadUint64(&q.b.Head))
	if head == q.b.Stub {
		return None
	}
	return head
}

// Tail returns the oldest node, or None if the queue is empty.
func (q Queue) Tail() uint32 {
	tail := atomic.LoadUint32(&q.b.Tail)
	if tail == q.b.Stub {
		return atomic.LoadUint32(&q.links[tail])
	}
	return tail
}

// Size returns the number of nodes in the queue.
// The value may lag behind concurrent pushes and pops.
func (q Queue) Size() int {
	size := atomic.LoadInt32(&q.b.Size)
	if size < 0 {
		return 0
	}
	return int(size)
}

// Walk calls f for every node from the tail to the head, skipping the stub.
// It stops after limit steps and returns false in that case, which means the links are corrupt.
// Walk must only be called when the queue is quiescent.
func (q Queue) Walk(limit int, f func(n uint32)) bool {
	stub := q.b.Stub
	steps := 0
	for n := atomic.LoadUint32(&q.b.Tail); n != None; n = atomic.LoadUint32(&q.links[n]) {
		if steps++; steps > limit {
			return false
		}
		if n != stub {
			f(n)
		}
	}
	return true
}
