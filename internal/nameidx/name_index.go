// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package nameidx implements an open-addressed queue name index
// living in shared memory.
package nameidx

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
)

// ErrFull is returned, when there are no free entries in the index.
var ErrFull = errors.New("name index is full")

// Index maps queue names to queue ids.
// Each entry is either 0 (free) or qid+1.
// The number of entries must be a power of two.
// Inserts must be serialized by the caller, lookups are lock-free.
type Index struct {
	entries []uint32
	mask    uint64
}

// New returns an index over the given entries.
func New(entries []uint32) *Index {
	return &Index{entries: entries, mask: uint64(len(entries) - 1)}
}

// Lookup finds the queue id for the name.
// nameOf must return the name of an already published queue.
func (idx *Index) Lookup(name string, nameOf func(qid uint32) string) (uint32, bool) {
	pos := xxhash.Sum64String(name) & idx.mask
	for i := 0; i < len(idx.entries); i++ {
		e := atomic.LoadUint32(&idx.entries[pos])
		if e == 0 {
			return 0, false
		}
		if nameOf(e-1) == name {
			return e - 1, true
		}
		pos = (pos + 1) & idx.mask
	}
	return 0, false
}

// Insert adds a name->qid mapping. The queue name must be stored before the call,
// as the entry becomes visible to lookups immediately.
func (idx *Index) Insert(name string, qid uint32) error {
	pos := xxhash.Sum64String(name) & idx.mask
	for i := 0; i < len(idx.entries); i++ {
		if atomic.LoadUint32(&idx.entries[pos]) == 0 {
			atomic.StoreUint32(&idx.entries[pos], qid+1)
			return nil
		}
		pos = (pos + 1) & idx.mask
	}
	return ErrFull
}

// Len returns the number of used entries.
func (idx *Index) Len() int {
	var result int
	for i := range idx.entries {
		if atomic.LoadUint32(&idx.entries[i]) != 0 {
			result++
		}
	}
	return result
}
