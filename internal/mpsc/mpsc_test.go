// Copyright 2016 Aleksandr Demakin. All rights reserved.

package mpsc

import (
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/nxgtw/go-shf/internal/layout"
	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func newTestQueue(nodes int) (Queue, *layout.QueueBlock, []uint32) {
	links := make([]uint32, nodes+1)
	b := &layout.QueueBlock{}
	return Init(b, links, uint32(nodes)), b, links
}

func TestPackUnpack(t *testing.T) {
	tag, idx := Unpack(Pack(7, 0xFFFFFFFF))
	assert.Equal(t, uint32(7), tag)
	assert.Equal(t, None, idx)
}

func TestEmptyPopDoesNotMutate(t *testing.T) {
	a := assert.New(t)
	q, b, links := newTestQueue(4)
	before := *b
	linksBefore := append([]uint32(nil), links...)
	for i := 0; i < 3; i++ {
		n, res := q.Pop()
		a.Equal(None, n)
		a.Equal(Empty, res)
	}
	a.Equal(before, *b)
	a.Equal(linksBefore, links)
	a.Equal(None, q.Head())
	a.Equal(None, q.Tail())
	a.Zero(q.Size())
}

func TestFifo(t *testing.T) {
	a := assert.New(t)
	q, b, _ := newTestQueue(8)
	for i := uint32(0); i < 8; i++ {
		q.Push(i, None)
		a.Equal(i, q.Head())
		a.Equal(uint32(0), q.Tail())
	}
	a.Equal(8, q.Size())
	for i := uint32(0); i < 8; i++ {
		n, res := q.Pop()
		a.Equal(Popped, res)
		a.Equal(i, n)
	}
	_, res := q.Pop()
	a.Equal(Empty, res)
	a.Equal(None, q.Head())
	a.Zero(q.Size())
	a.Equal(uint64(8), b.Pushes)
	a.Equal(uint64(8), b.Pulls)
}

func TestInterleavedPushPop(t *testing.T) {
	a := assert.New(t)
	q, _, _ := newTestQueue(4)
	q.Push(0, None)
	n, res := q.Pop()
	a.Equal(Popped, res)
	a.Equal(uint32(0), n)
	q.Push(1, None)
	q.Push(0, None)
	n, _ = q.Pop()
	a.Equal(uint32(1), n)
	q.Push(2, None)
	n, _ = q.Pop()
	a.Equal(uint32(0), n)
	n, _ = q.Pop()
	a.Equal(uint32(2), n)
	_, res = q.Pop()
	a.Equal(Empty, res)
}

func TestPushExpectedHead(t *testing.T) {
	a := assert.New(t)
	q, b, _ := newTestQueue(4)
	_, conflicts := q.Push(0, None)
	a.Zero(conflicts)
	prev, conflicts := q.Push(1, 0)
	a.Zero(conflicts)
	a.Equal(uint32(0), prev)
	prev, conflicts = q.Push(2, 0)
	a.Equal(1, conflicts)
	a.Equal(uint32(1), prev)
	a.Equal(uint64(1), b.Conflicts)
	a.Equal(uint32(2), q.Head())
	var order []uint32
	a.True(q.Walk(10, func(n uint32) { order = append(order, n) }))
	a.Equal([]uint32{0, 1, 2}, order)
}

func TestBusyWhileUnlinked(t *testing.T) {
	a := assert.New(t)
	q, b, links := newTestQueue(4)
	// emulate a producer, which has swapped the head but not linked the node yet.
	links[0] = None
	b.Head = Pack(1, 0)
	n, res := q.Pop()
	a.Equal(None, n)
	a.Equal(Busy, res)
	links[4] = 0
	b.Size = 1
	n, res = q.Pop()
	a.Equal(Popped, res)
	a.Equal(uint32(0), n)
}

func TestWalkDetectsLoop(t *testing.T) {
	q, _, links := newTestQueue(4)
	q.Push(0, None)
	q.Push(1, None)
	links[1] = 0
	assert.False(t, q.Walk(5, func(uint32) {}))
}

func TestConcurrentProducers(t *testing.T) {
	const (
		producers = 4
		perProd   = 2000
	)
	a := assert.New(t)
	q, _, _ := newTestQueue(producers * perProd)
	var g errgroup.Group
	for p := 0; p < producers; p++ {
		base := uint32(p * perProd)
		g.Go(func() error {
			for i := uint32(0); i < perProd; i++ {
				q.Push(base+i, None)
			}
			return nil
		})
	}
	var received int32
	seen := make([]bool, producers*perProd)
	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}
	consumerDone := make(chan bool)
	go func() {
		ok := true
		for atomic.LoadInt32(&received) < producers*perProd {
			n, res := q.Pop()
			if res != Popped {
				runtime.Gosched()
				continue
			}
			atomic.AddInt32(&received, 1)
			if seen[n] {
				ok = false
			}
			seen[n] = true
			p, i := int(n)/perProd, int(n)%perProd
			if i <= last[p] {
				ok = false
			}
			last[p] = i
		}
		consumerDone <- ok
	}()
	a.NoError(g.Wait())
	a.True(<-consumerDone)
	_, res := q.Pop()
	a.Equal(Empty, res)
}
