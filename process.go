// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"sync"

	"go.uber.org/zap"
)

// The process-wide hash file. At most one is attached at a time,
// attaching again without Delete or Detach fails with ErrAlreadyAttached.
var (
	currentMu sync.RWMutex
	current   *HashFile
)

func setCurrent(open func() (*HashFile, error)) error {
	currentMu.Lock()
	defer currentMu.Unlock()
	if current.IsAttached() {
		return ErrAlreadyAttached
	}
	hf, err := open()
	if err != nil {
		return err
	}
	current = hf
	return nil
}

// Current returns the process-wide hash file, or nil.
func Current() *HashFile {
	currentMu.RLock()
	defer currentMu.RUnlock()
	if !current.IsAttached() {
		return nil
	}
	return current
}

func withCurrent() (*HashFile, error) {
	if hf := Current(); hf != nil {
		return hf, nil
	}
	return nil, ErrNotAttached
}

// AttachProcess creates a new hash file and makes it the process-wide one.
func AttachProcess(path, name string, size int64) error {
	return setCurrent(func() (*HashFile, error) {
		return Attach(path, name, size)
	})
}

// AttachExistingProcess opens an existing hash file and makes it the process-wide one.
func AttachExistingProcess(path, name string) error {
	return setCurrent(func() (*HashFile, error) {
		return AttachExisting(path, name)
	})
}

// IsAttached returns true, if the process has an attached hash file.
func IsAttached() bool {
	return Current() != nil
}

// Detach closes the process-wide hash file leaving the file in place.
func Detach() error {
	currentMu.Lock()
	defer currentMu.Unlock()
	if !current.IsAttached() {
		return ErrNotAttached
	}
	err := current.Close()
	current = nil
	return err
}

// Delete removes the process-wide hash file.
func Delete() error {
	currentMu.Lock()
	defer currentMu.Unlock()
	if !current.IsAttached() {
		return ErrNotAttached
	}
	err := current.Delete()
	current = nil
	return err
}

// QNew creates queues in the process-wide hash file.
func QNew(queueCount, itemsPerQueue, itemSize, nolockMax uint32) error {
	hf, err := withCurrent()
	if err != nil {
		return err
	}
	return hf.QNew(queueCount, itemsPerQueue, itemSize, nolockMax)
}

// QNewName names the next queue of the process-wide hash file.
// It returns 0xFFFFFFFF on failure.
func QNewName(name string) uint32 {
	hf, err := withCurrent()
	if err == nil {
		var qid QueueID
		if qid, err = hf.QNewName(name); err == nil {
			return uint32(qid)
		}
	}
	logger().Debug("failed to name a queue", zap.String("name", name), zap.Error(err))
	return uint32(NoQueue)
}

// QGetName resolves a queue name in the process-wide hash file.
// It returns 0xFFFFFFFF, if there is no such queue.
func QGetName(name string) uint32 {
	hf, err := withCurrent()
	if err != nil {
		return uint32(NoQueue)
	}
	qid, err := hf.QGetName(name)
	if err != nil {
		return uint32(NoQueue)
	}
	return uint32(qid)
}

// QPushHeadPullTail moves an item in the process-wide hash file.
// It returns the moved item, or 0xFFFFFFFF, if the source queue is empty or the call has failed.
func QPushHeadPullTail(dest, expectedPrevHead, source uint32) uint32 {
	hf, err := withCurrent()
	if err != nil {
		logger().Debug("transfer without an attached hash file")
		return uint32(NoItem)
	}
	return hf.QPushHeadPullTailU32(dest, expectedPrevHead, source)
}
