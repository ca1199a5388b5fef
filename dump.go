// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"github.com/nxgtw/go-shf/internal/mpsc"
	"github.com/nxgtw/go-shf/internal/spinlock"
)

// QueueStats holds counters of a queue.
type QueueStats struct {
	ID        QueueID
	Name      string
	Size      int
	Head      ItemID
	Tail      ItemID
	Pushes    uint64
	Pulls     uint64
	Conflicts uint64
	// LockOwner is the pid holding the pull lock of the queue, or 0.
	LockOwner uint32
}

// Stats returns counters of all the queues, and of the free pool, which has id NoQueue.
func (hf *HashFile) Stats() ([]QueueStats, error) {
	v, err := hf.ready()
	if err != nil {
		return nil, err
	}
	l := v.Layout()
	result := make([]QueueStats, 0, l.QueueCount+1)
	for qid := uint32(0); qid <= l.QueueCount; qid++ {
		b := v.Queue(qid)
		q := mpsc.Open(b, v.Links())
		st := QueueStats{
			ID:        QueueID(qid),
			Name:      b.QueueName(),
			Size:      q.Size(),
			Head:      ItemID(q.Head()),
			Tail:      ItemID(q.Tail()),
			Pushes:    atomic.LoadUint64(&b.Pushes),
			Pulls:     atomic.LoadUint64(&b.Pulls),
			Conflicts: atomic.LoadUint64(&b.Conflicts),
			LockOwner: spinlock.Owner(&b.Lock),
		}
		if qid == l.FreePool() {
			st.ID = NoQueue
			st.Name = "free"
		}
		result = append(result, st)
	}
	return result, nil
}

// Dump writes a human readable table of the queues to w.
func (hf *HashFile) Dump(w io.Writer) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	fmt.Fprintf(buf, "hash file %s\n", hf.Path())
	l, err := hf.Layout()
	if err != nil {
		fmt.Fprintf(buf, "  queues: %v\n", err)
		_, err = buf.WriteTo(w)
		return err
	}
	fmt.Fprintf(buf, "  queues=%d items=%d item_size=%d nolock_max=%d region=%d creator=%d initializer=%d\n",
		l.QueueCount, l.SlotCount, l.ItemSize, l.NolockMax, l.RegionSize,
		atomic.LoadUint32(&hf.header.CreatorPid), atomic.LoadUint32(&hf.header.InitPid))
	stats, err := hf.Stats()
	if err != nil {
		return err
	}
	fmt.Fprintf(buf, "  %-6s %-24s %8s %10s %10s %12s %12s %10s %8s\n",
		"id", "name", "size", "head", "tail", "pushes", "pulls", "conflicts", "locker")
	for _, st := range stats {
		fmt.Fprintf(buf, "  %-6v %-24s %8d %10v %10v %12d %12d %10d %8d\n",
			st.ID, st.Name, st.Size, st.Head, st.Tail, st.Pushes, st.Pulls, st.Conflicts, st.LockOwner)
	}
	_, err = buf.WriteTo(w)
	return err
}
