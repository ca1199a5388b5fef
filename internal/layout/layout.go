// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package layout describes the binary layout of a queue hash file.
// Every attaching process must agree on it bit-for-bit.
package layout

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/nxgtw/go-shf/internal/allocator"
)

const (
	// Magic marks a published header. It reads "SHFQUEUE" in little-endian memory.
	Magic uint64 = 0x4555455551464853
	// Version is the layout version.
	Version uint32 = 1
	// None is the reserved 'no item'/'no queue' index.
	None uint32 = 0xFFFFFFFF
	// MaxNameLen is the maximum length of a queue name in bytes.
	MaxNameLen = 64

	// HeaderSize is the size of the region header.
	HeaderSize = 256
	// QueueBlockSize is the size of a queue control block.
	QueueBlockSize = 128

	sectionAlign = 64
	minNameSlots = 8
)

// header states.
const (
	StateRaw uint32 = iota
	StateInitializing
	StateReady
)

// pull policies.
const (
	// PolicyLockless means pulls do not take the per-queue consumer lock.
	PolicyLockless uint32 = iota
	// PolicyConsumerLock means every pull is done under the per-queue consumer lock.
	PolicyConsumerLock
)

var (
	// ErrTooLarge is returned when the queues do not fit into the region.
	ErrTooLarge = errors.New("layout does not fit into the region")
	// ErrInvalid is returned for zero layout parameters.
	ErrInvalid = errors.New("invalid layout parameters")
)

// Header is placed at the beginning of the region.
type Header struct {
	Magic         uint64
	Version       uint32
	State         uint32
	RegionSize    uint64
	QueueCount    uint32
	ItemsPerQueue uint32
	ItemSize      uint32
	SlotCount     uint32
	NolockMax     uint32
	Policy        uint32
	NextQueue     uint32
	NameSlots     uint32
	TableLock     uint32
	CreatorPid    uint32
	QueuesOff     uint64
	NamesOff      uint64
	LinksOff      uint64
	ItemsOff      uint64
	// InitPid is the pid of the process, which runs or has run QNew.
	InitPid       uint32
	_             uint32
	_             [152]byte
}

// QueueBlock is a queue control block.
// Head holds a tag in its upper 32 bits and a link index in the lower ones.
type QueueBlock struct {
	Head      uint64
	Tail      uint32
	Lock      uint32
	Size      int32
	Stub      uint32
	Pushes    uint64
	Pulls     uint64
	Conflicts uint64
	NameLen   uint32
	_         uint32
	Name      [MaxNameLen]byte
	_         [8]byte
}

// Params are the caller-supplied layout parameters.
type Params struct {
	QueueCount    uint32
	ItemsPerQueue uint32
	ItemSize      uint32
	NolockMax     uint32
}

// Layout is a computed layout of a region.
type Layout struct {
	Params
	SlotCount uint32
	NameSlots uint32
	Policy    uint32
	QueuesOff uint64
	NamesOff  uint64
	LinksOff  uint64
	ItemsOff  uint64
	Total     uint64
}

// LinkCount returns the number of links: one per slot, plus one stub per queue and the free pool.
func (l Layout) LinkCount() uint32 {
	return l.SlotCount + l.QueueCount + 1
}

// StubOf returns the stub link index of the queue qid. qid == QueueCount is the free pool.
func (l Layout) StubOf(qid uint32) uint32 {
	return l.SlotCount + qid
}

// FreePool returns the index of the internal free pool queue.
func (l Layout) FreePool() uint32 {
	return l.QueueCount
}

// Compute calculates section offsets for the given parameters
// and checks, that they fit into regionSize bytes.
func Compute(p Params, regionSize uint64) (Layout, error) {
	if p.QueueCount == 0 || p.ItemsPerQueue == 0 || p.ItemSize == 0 || p.NolockMax == 0 {
		return Layout{}, ErrInvalid
	}
	slots := uint64(p.QueueCount) * uint64(p.ItemsPerQueue)
	if slots+uint64(p.QueueCount)+1 >= uint64(None) {
		return Layout{}, errors.Wrapf(ErrTooLarge, "%d slots overflow the index space", slots)
	}
	result := Layout{
		Params:    p,
		SlotCount: uint32(slots),
		NameSlots: nameSlotsFor(p.QueueCount),
		Policy:    PolicyLockless,
	}
	if p.NolockMax > 1 {
		result.Policy = PolicyConsumerLock
	}
	off := alignUp(HeaderSize)
	result.QueuesOff = off
	off = alignUp(off + uint64(p.QueueCount+1)*QueueBlockSize)
	result.NamesOff = off
	off = alignUp(off + uint64(result.NameSlots)*4)
	result.LinksOff = off
	off = alignUp(off + uint64(result.LinkCount())*4)
	result.ItemsOff = off
	result.Total = off + slots*uint64(p.ItemSize)
	if result.Total > regionSize {
		return Layout{}, errors.Wrapf(ErrTooLarge, "need %d bytes, region has %d", result.Total, regionSize)
	}
	return result, nil
}

// FromHeader restores the layout published in a header.
func FromHeader(h *Header) Layout {
	return Layout{
		Params: Params{
			QueueCount:    h.QueueCount,
			ItemsPerQueue: h.ItemsPerQueue,
			ItemSize:      h.ItemSize,
			NolockMax:     h.NolockMax,
		},
		SlotCount: h.SlotCount,
		NameSlots: h.NameSlots,
		Policy:    h.Policy,
		QueuesOff: h.QueuesOff,
		NamesOff:  h.NamesOff,
		LinksOff:  h.LinksOff,
		ItemsOff:  h.ItemsOff,
		Total:     h.ItemsOff + uint64(h.SlotCount)*uint64(h.ItemSize),
	}
}

// Store writes the layout into the header. It does not touch Magic and State.
func (l Layout) Store(h *Header) {
	h.QueueCount = l.QueueCount
	h.ItemsPerQueue = l.ItemsPerQueue
	h.ItemSize = l.ItemSize
	h.SlotCount = l.SlotCount
	h.NolockMax = l.NolockMax
	h.Policy = l.Policy
	h.NameSlots = l.NameSlots
	h.QueuesOff = l.QueuesOff
	h.NamesOff = l.NamesOff
	h.LinksOff = l.LinksOff
	h.ItemsOff = l.ItemsOff
}

// nameSlotsFor returns a power of two at least twice as large as the number of queues.
func nameSlotsFor(queues uint32) uint32 {
	n := uint32(minNameSlots)
	for uint64(n) < 2*uint64(queues) && n < 1<<31 {
		n <<= 1
	}
	return n
}

func alignUp(v uint64) uint64 {
	return allocator.AlignUp(v, sectionAlign)
}

var (
	_ [HeaderSize - unsafe.Sizeof(Header{})]byte
	_ [unsafe.Sizeof(Header{}) - HeaderSize]byte
	_ [QueueBlockSize - unsafe.Sizeof(QueueBlock{})]byte
	_ [unsafe.Sizeof(QueueBlock{}) - QueueBlockSize]byte
)
