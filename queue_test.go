// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nxgtw/go-shf/internal/layout"
)

func TestQNewOnce(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()
	hf, err := Attach(dir, testFileName, testRegionSize)
	require.NoError(t, err)
	defer hf.Delete()
	a.False(hf.QIsReady())
	_, err = hf.QNewName("early")
	a.Equal(ErrNotInitialized, errors.Cause(err))

	a.Equal(ErrInvalidLayout, errors.Cause(hf.QNew(0, 1, 1, 1)))
	a.Equal(ErrLayoutTooLarge, errors.Cause(hf.QNew(3, 10, 1<<20, 1)))
	a.False(hf.QIsReady())

	a.NoError(hf.QNew(3, 10, 4096, 1))
	a.True(hf.QIsReady())
	a.Equal(ErrAlreadyInitialized, errors.Cause(hf.QNew(3, 10, 4096, 1)))

	hf2, err := AttachExisting(dir, testFileName)
	require.NoError(t, err)
	defer hf2.Close()
	a.True(hf2.QIsReady())
	a.Equal(ErrAlreadyInitialized, errors.Cause(hf2.QNew(1, 1, 1, 1)))

	free, err := hf.FreeCount()
	a.NoError(err)
	a.Equal(30, free)
}

func TestQNewName(t *testing.T) {
	a := assert.New(t)
	hf := newTestFile(t, 3, 10, 4096, 1)
	ids := make(map[QueueID]bool)
	for _, name := range []string{"one", "two", "three"} {
		qid, err := hf.QNewName(name)
		a.NoError(err)
		a.True(qid.Valid())
		a.NotEqual(uint32(0xFFFFFFFF), uint32(qid))
		a.False(ids[qid])
		ids[qid] = true
		queueName, err := hf.QueueName(qid)
		a.NoError(err)
		a.Equal(name, queueName)
	}
	qid, err := hf.QNewName("four")
	a.Equal(NoQueue, qid)
	a.Equal(ErrQueueTableFull, errors.Cause(err))

	count, err := hf.QueueCount()
	a.NoError(err)
	a.Equal(3, count)
}

func TestQNewNameErrors(t *testing.T) {
	a := assert.New(t)
	hf := newTestFile(t, 3, 1, 8, 1)
	_, err := hf.QNewName("taken")
	a.NoError(err)
	qid, err := hf.QNewName("taken")
	a.Equal(NoQueue, qid)
	a.Equal(ErrNameTaken, errors.Cause(err))
	_, err = hf.QNewName("")
	a.Equal(ErrInvalidName, errors.Cause(err))
	_, err = hf.QNewName(strings.Repeat("x", MaxQueueNameLen+1))
	a.Equal(ErrInvalidName, errors.Cause(err))
	qid, err = hf.QNewName(strings.Repeat("x", MaxQueueNameLen))
	a.NoError(err)
	a.Equal(QueueID(1), qid)
}

func TestQGetName(t *testing.T) {
	a := assert.New(t)
	hf := newTestFile(t, 16, 1, 8, 1)
	for i := 0; i < 16; i++ {
		qid, err := hf.QNewName(fmt.Sprintf("queue-%02d", i))
		require.NoError(t, err)
		a.Equal(QueueID(i), qid)
	}
	hf2, err := AttachExisting(filepath.Dir(hf.Path()), testFileName)
	require.NoError(t, err)
	defer hf2.Close()
	for i := 15; i >= 0; i-- {
		qid, err := hf2.QGetName(fmt.Sprintf("queue-%02d", i))
		a.NoError(err)
		a.Equal(QueueID(i), qid)
	}
	_, err = hf2.QGetName("queue-16")
	a.Equal(ErrNameNotFound, errors.Cause(err))
	qid, err := hf2.QGetName("queue-03")
	a.NoError(err)
	a.Equal(QueueID(3), qid)
}

func TestItemsAreLabelled(t *testing.T) {
	a := assert.New(t)
	hf := newTestFile(t, 2, 4, 16, 1)
	for i := 0; i < 8; i++ {
		data, err := hf.Item(ItemID(i))
		a.NoError(err)
		a.Len(data, 16)
		a.Equal(fmt.Sprintf("%08x", i), string(data[:8]))
	}
	_, err := hf.Item(8)
	a.Equal(ErrInvalidItemID, errors.Cause(err))
	_, err = hf.Item(NoItem)
	a.Equal(ErrInvalidItemID, errors.Cause(err))

	small := newTestFile(t, 1, 1, 4, 1)
	data, err := small.Item(0)
	a.NoError(err)
	a.Equal([]byte{0, 0, 0, 0}, data)
}

func TestAllocPushPull(t *testing.T) {
	a := assert.New(t)
	hf := newTestFile(t, 2, 2, 8, 1)
	for i := 0; i < 4; i++ {
		id, err := hf.QAlloc(0)
		a.NoError(err)
		a.Equal(ItemID(i), id)
		head, err := hf.Head(0)
		a.NoError(err)
		a.Equal(id, head)
	}
	id, err := hf.QAlloc(0)
	a.NoError(err)
	a.Equal(NoItem, id)
	size, _ := hf.Size(0)
	a.Equal(4, size)
	tail, _ := hf.Tail(0)
	a.Equal(ItemID(0), tail)

	id, err = hf.PullTail(0)
	a.NoError(err)
	a.Equal(ItemID(0), id)
	census, err := hf.Verify()
	a.NoError(err)
	a.Equal(1, census.InFlight)

	data, _ := hf.Item(id)
	copy(data, "payload!")
	pushed, err := hf.PushHead(1, NoItem, id)
	a.NoError(err)
	a.Equal(id, pushed)
	head, _ := hf.Head(1)
	a.Equal(id, head)
	id, _ = hf.PullTail(1)
	data, _ = hf.Item(id)
	a.Equal("payload!", string(data))
	a.NoError(hf.QFree(id))

	free, _ := hf.FreeCount()
	a.Equal(1, free)
	census, err = hf.Verify()
	a.NoError(err)
	a.Equal(0, census.InFlight)
	a.Equal(1, census.Free)
	a.Equal([]int{3, 0}, census.Queues)

	_, err = hf.PushHead(2, NoItem, 0)
	a.Equal(ErrInvalidQueueID, errors.Cause(err))
	_, err = hf.PushHead(1, NoItem, 4)
	a.Equal(ErrInvalidItemID, errors.Cause(err))
	_, err = hf.PullTail(NoQueue)
	a.Equal(ErrInvalidQueueID, errors.Cause(err))
	_, err = hf.QAlloc(5)
	a.Equal(ErrInvalidQueueID, errors.Cause(err))
	a.Equal(ErrInvalidItemID, errors.Cause(hf.QFree(NoItem)))
}

func TestLockedPulls(t *testing.T) {
	a := assert.New(t)
	hf := newTestFile(t, 1, 4, 8, 3)
	l, err := hf.Layout()
	a.NoError(err)
	a.True(l.Locked())
	for i := 0; i < 4; i++ {
		_, err = hf.QAlloc(0)
		a.NoError(err)
	}
	for i := 0; i < 4; i++ {
		id, err := hf.PullTail(0)
		a.NoError(err)
		a.Equal(ItemID(i), id)
	}
	v, _ := hf.queues()
	a.Zero(v.Queue(0).Lock)
}

func TestDeadLockOwnerIsForced(t *testing.T) {
	a := assert.New(t)
	old := currentConfig()
	cfg := old
	cfg.LockSpinMax = 10
	SetConfig(cfg)
	defer SetConfig(old)

	hf := newTestFile(t, 1, 2, 8, 2)
	_, err := hf.QAlloc(0)
	a.NoError(err)
	v, err := hf.queues()
	require.NoError(t, err)
	// a pid, which can't belong to a running process.
	v.Queue(0).Lock = 0x7FFFFFF0
	id, err := hf.PullTail(0)
	a.NoError(err)
	a.Equal(ItemID(0), id)
	a.Zero(v.Queue(0).Lock)
}

func TestQNewTakesOverDeadInitializer(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()
	hf, err := Attach(dir, testFileName, testRegionSize)
	require.NoError(t, err)
	defer hf.Delete()
	// the initializer has died in the middle of QNew.
	hf.header.InitPid = 0x7FFFFFF0
	hf.header.State = layout.StateInitializing
	a.False(hf.QIsReady())

	hf2, err := AttachExisting(dir, testFileName)
	require.NoError(t, err)
	defer hf2.Close()
	require.NoError(t, hf2.QNew(2, 2, 8, 1))
	a.True(hf.QIsReady())
	a.Equal(hf2.locker.Pid(), hf.header.InitPid)
	qid, err := hf.QNewName("after-takeover")
	a.NoError(err)
	a.Equal(QueueID(0), qid)
	census, err := hf.Verify()
	a.NoError(err)
	a.Equal(4, census.Free)
	a.Equal(ErrAlreadyInitialized, errors.Cause(hf.QNew(2, 2, 8, 1)))
}

func TestQNewWaitsForLiveInitializer(t *testing.T) {
	a := assert.New(t)
	hf, err := Attach(t.TempDir(), testFileName, testRegionSize)
	require.NoError(t, err)
	defer hf.Delete()
	hf.header.InitPid = uint32(os.Getppid())
	hf.header.State = layout.StateInitializing
	a.Equal(ErrAlreadyInitialized, errors.Cause(hf.QNew(2, 2, 8, 1)))
	a.False(hf.QIsReady())
	a.Equal(uint32(os.Getppid()), hf.header.InitPid)
}

func TestQNewReleasesInitializerOnError(t *testing.T) {
	a := assert.New(t)
	hf, err := Attach(t.TempDir(), testFileName, testRegionSize)
	require.NoError(t, err)
	defer hf.Delete()
	a.Equal(ErrLayoutTooLarge, errors.Cause(hf.QNew(3, 10, 1<<20, 1)))
	a.Zero(hf.header.InitPid)
	a.Equal(layout.StateRaw, hf.header.State)
	a.NoError(hf.QNew(1, 1, 8, 1))
}
