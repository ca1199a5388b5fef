// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"github.com/Workiva/go-datastructures/bitarray"
	"github.com/pkg/errors"

	"github.com/nxgtw/go-shf/internal/layout"
	"github.com/nxgtw/go-shf/internal/mpsc"
)

// Census is a result of Verify.
type Census struct {
	// Queues holds the number of items linked into each queue.
	Queues []int
	// Free is the number of items in the free pool.
	Free int
	// InFlight is the number of items, which are not linked into any queue.
	// They are owned by callers of PullTail.
	InFlight int
	// Slots is the total number of items.
	Slots int
}

// Verify walks all the queues and checks, that every item is linked at most once.
// It must only be called when no process moves items, otherwise it may report false errors.
func (hf *HashFile) Verify() (Census, error) {
	v, err := hf.ready()
	if err != nil {
		return Census{}, err
	}
	l := v.Layout()
	seen := bitarray.NewBitArray(uint64(l.SlotCount))
	result := Census{Queues: make([]int, l.QueueCount), Slots: int(l.SlotCount)}
	linked := 0
	for qid := uint32(0); qid <= l.QueueCount; qid++ {
		count, err := walkQueue(v, qid, seen)
		if err != nil {
			return result, err
		}
		if qid == l.FreePool() {
			result.Free = count
		} else {
			result.Queues[qid] = count
		}
		linked += count
	}
	result.InFlight = int(l.SlotCount) - linked
	return result, nil
}

func walkQueue(v *layout.View, qid uint32, seen bitarray.BitArray) (int, error) {
	l := v.Layout()
	q := mpsc.Open(v.Queue(qid), v.Links())
	var count int
	var walkErr error
	ok := q.Walk(int(l.LinkCount()), func(n uint32) {
		if walkErr != nil {
			return
		}
		if n >= l.SlotCount {
			walkErr = errors.Wrapf(ErrCorrupt, "queue %d links to a foreign node %d", qid, n)
			return
		}
		if dup, _ := seen.GetBit(uint64(n)); dup {
			walkErr = errors.Wrapf(ErrCorrupt, "item %08x is linked twice, found in queue %d", n, qid)
			return
		}
		seen.SetBit(uint64(n))
		count++
	})
	if walkErr != nil {
		return count, walkErr
	}
	if !ok {
		return count, errors.Wrapf(ErrCorrupt, "queue %d has a loop", qid)
	}
	return count, nil
}
