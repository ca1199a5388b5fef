// Copyright 2016 Aleksandr Demakin. All rights reserved.

package layout

import (
	"unsafe"

	"github.com/nxgtw/go-shf/internal/allocator"
)

// View gives typed access to the sections of a mapped region.
// It holds raw pointers into the mapping, so it must not outlive it.
type View struct {
	base   unsafe.Pointer
	header *Header
	l      Layout
	queues unsafe.Pointer
	names  []uint32
	links  []uint32
	items  unsafe.Pointer
}

// HeaderAt returns the header placed at the beginning of data.
// data must be at least HeaderSize bytes long and 8-byte aligned.
func HeaderAt(data []byte) *Header {
	return (*Header)(allocator.ByteSliceData(data))
}

// NewView returns a view of data for the layout l.
// The caller must have checked, that l.Total <= len(data).
func NewView(data []byte, l Layout) *View {
	base := allocator.ByteSliceData(data)
	return &View{
		base:   base,
		header: (*Header)(base),
		l:      l,
		queues: allocator.AdvancePointer(base, uintptr(l.QueuesOff)),
		names:  allocator.Uint32SliceFromUnsafePointer(allocator.AdvancePointer(base, uintptr(l.NamesOff)), int(l.NameSlots)),
		links:  allocator.Uint32SliceFromUnsafePointer(allocator.AdvancePointer(base, uintptr(l.LinksOff)), int(l.LinkCount())),
		items:  allocator.AdvancePointer(base, uintptr(l.ItemsOff)),
	}
}

// Header returns the region header.
func (v *View) Header() *Header {
	return v.header
}

// Layout returns the layout the view was built for.
func (v *View) Layout() Layout {
	return v.l
}

// Queue returns the control block of the queue qid. qid may be the free pool.
func (v *View) Queue(qid uint32) *QueueBlock {
	return (*QueueBlock)(allocator.AdvancePointer(v.queues, uintptr(qid)*QueueBlockSize))
}

// Names returns the shared name index.
func (v *View) Names() []uint32 {
	return v.names
}

// Links returns the intrusive 'next' links of all slots and stubs.
func (v *View) Links() []uint32 {
	return v.links
}

// Item returns the payload of the slot idx.
func (v *View) Item(idx uint32) []byte {
	size := int(v.l.ItemSize)
	p := allocator.AdvancePointer(v.items, uintptr(idx)*uintptr(size))
	return allocator.ByteSliceFromUnsafePointer(p, size, size)
}

// QueueName returns the name stored in the block.
func (b *QueueBlock) QueueName() string {
	n := b.NameLen
	if n > MaxNameLen {
		n = MaxNameLen
	}
	return string(b.Name[:n])
}
