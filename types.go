// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"fmt"

	"github.com/nxgtw/go-shf/internal/layout"
)

// ItemID is an index of an item slot.
type ItemID uint32

// QueueID is an index of a queue.
type QueueID uint32

const (
	// NoItem is the sentinel for 'no such item'. It is 0xFFFFFFFF on the wire.
	NoItem = ItemID(layout.None)
	// NoQueue is the sentinel for 'no such queue'. It is 0xFFFFFFFF on the wire.
	NoQueue = QueueID(layout.None)
)

// Valid returns true, if id is not the sentinel.
func (id ItemID) Valid() bool {
	return id != NoItem
}

func (id ItemID) String() string {
	if !id.Valid() {
		return "none"
	}
	return fmt.Sprintf("%08x", uint32(id))
}

// Valid returns true, if id is not the sentinel.
func (id QueueID) Valid() bool {
	return id != NoQueue
}

func (id QueueID) String() string {
	if !id.Valid() {
		return "none"
	}
	return fmt.Sprintf("q%d", uint32(id))
}

// Layout describes queues and slots of a hash file.
type Layout struct {
	QueueCount    uint32
	ItemsPerQueue uint32
	ItemSize      uint32
	SlotCount     uint32
	// NolockMax is the number of concurrent pullers a queue is declared for.
	// If it is greater than one, pulls are made under a per-queue lock.
	NolockMax uint32
	// RegionSize is the size of the mapping.
	RegionSize uint64
}

// Locked returns true, if pulls take the per-queue lock.
func (l Layout) Locked() bool {
	return l.NolockMax > 1
}
