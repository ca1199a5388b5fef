// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nxgtw/go-shf/internal/mpsc"
)

// QPushHeadPullTail moves the oldest item of the source queue onto the head of dest.
// It returns the moved item, which is the new head of dest.
// If source is empty, nothing is changed and NoItem is returned with no error,
// which is the normal 'no work' signal.
//
// expectedPrevHead is the head of dest, as the caller last saw it, or NoItem.
// If dest's head has moved, the push is retried with the actual head,
// so the item is never lost.
func (hf *HashFile) QPushHeadPullTail(dest QueueID, expectedPrevHead ItemID, source QueueID) (ItemID, error) {
	v, err := hf.ready()
	if err != nil {
		return NoItem, err
	}
	if err = checkQueue(v, dest); err != nil {
		return NoItem, err
	}
	if err = checkQueue(v, source); err != nil {
		return NoItem, err
	}
	if dest == source {
		return NoItem, errors.Wrapf(ErrInvalidQueueID, "source and destination are the same queue %v", dest)
	}
	n := hf.pull(v, uint32(source))
	if n == mpsc.None {
		return NoItem, nil
	}
	hf.push(v, uint32(dest), uint32(expectedPrevHead), n)
	if ce := hf.logger().Check(zap.DebugLevel, "item moved"); ce != nil {
		ce.Write(zap.Stringer("from", source), zap.Stringer("to", dest), zap.Stringer("item", ItemID(n)))
	}
	return ItemID(n), nil
}

// QPushHeadPullTailU32 is QPushHeadPullTail with raw ids.
// It returns 0xFFFFFFFF, if the source is empty or the call has failed.
// Failures are logged at debug level, as the call is usually made in a polling loop.
func (hf *HashFile) QPushHeadPullTailU32(dest, expectedPrevHead, source uint32) uint32 {
	id, err := hf.QPushHeadPullTail(QueueID(dest), ItemID(expectedPrevHead), QueueID(source))
	if err != nil {
		if ce := hf.logger().Check(zap.DebugLevel, "transfer failed"); ce != nil {
			ce.Write(zap.Uint32("from", source), zap.Uint32("to", dest), zap.Error(err))
		}
		return uint32(NoItem)
	}
	return uint32(id)
}
