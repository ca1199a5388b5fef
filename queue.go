// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"runtime"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nxgtw/go-shf/internal/layout"
	"github.com/nxgtw/go-shf/internal/mpsc"
	"github.com/nxgtw/go-shf/internal/nameidx"
)

// MaxQueueNameLen is the maximum length of a queue name in bytes.
const MaxQueueNameLen = layout.MaxNameLen

const hexDigits = "0123456789abcdef"

// QNew creates queueCount queues and a slab of queueCount*itemsPerQueue items of itemSize bytes.
// It can be called once per hash file by any attached process.
// If the process, which started QNew, has died before finishing it, the next call takes over.
// nolockMax is the number of processes, which may pull from the same queue concurrently.
// If it is 1, pulls are lock-free. Otherwise every pull takes a per-queue lock.
// All the items are placed into an internal free pool, see QAlloc.
func (hf *HashFile) QNew(queueCount, itemsPerQueue, itemSize, nolockMax uint32) error {
	if !hf.IsAttached() {
		return ErrNotAttached
	}
	h := hf.header
	if atomic.LoadUint32(&h.State) == layout.StateReady {
		return ErrAlreadyInitialized
	}
	// InitPid is never released after success. It stays as the initializer's record.
	deadPid, forced, ok := hf.locker.TryLockOrForce(&h.InitPid)
	if !ok || atomic.LoadUint32(&h.State) == layout.StateReady {
		return ErrAlreadyInitialized
	}
	if forced {
		hf.logger().Warn("taking over queues initialization from a dead process", zap.Uint32("pid", deadPid))
	}
	atomic.StoreUint32(&h.State, layout.StateInitializing)
	params := layout.Params{
		QueueCount:    queueCount,
		ItemsPerQueue: itemsPerQueue,
		ItemSize:      itemSize,
		NolockMax:     nolockMax,
	}
	l, err := layout.Compute(params, uint64(hf.region.Size()))
	if err != nil {
		atomic.StoreUint32(&h.State, layout.StateRaw)
		hf.locker.Unlock(&h.InitPid)
		return errors.Wrap(err, "failed to compute queues layout")
	}
	l.Store(h)
	atomic.StoreUint32(&h.NextQueue, 0)
	atomic.StoreUint32(&h.TableLock, 0)
	v := layout.NewView(hf.region.Data(), l)
	clear(v.Names())
	links := v.Links()
	for qid := uint32(0); qid <= l.QueueCount; qid++ {
		mpsc.Init(v.Queue(qid), links, l.StubOf(qid))
	}
	free := mpsc.Open(v.Queue(l.FreePool()), links)
	for idx := uint32(0); idx < l.SlotCount; idx++ {
		labelItem(v.Item(idx), idx)
		free.Push(idx, mpsc.None)
	}
	atomic.StoreUint32(&h.State, layout.StateReady)
	hf.view.Store(v)
	hf.logger().Info("queues created",
		zap.Uint32("queues", l.QueueCount),
		zap.Uint32("items", l.SlotCount),
		zap.Uint32("item_size", l.ItemSize),
		zap.Uint32("nolock_max", l.NolockMax),
		zap.Uint64("bytes", l.Total))
	return nil
}

// labelItem writes the hex id of an item into its first 8 bytes.
func labelItem(data []byte, idx uint32) {
	if len(data) < 8 {
		return
	}
	for i := 7; i >= 0; i-- {
		data[i] = hexDigits[idx&0xF]
		idx >>= 4
	}
}

// QIsReady returns true, if the queues have been created.
func (hf *HashFile) QIsReady() bool {
	if !hf.IsAttached() {
		return false
	}
	_, err := hf.queues()
	return err == nil
}

// QNewName assigns the name to the next unused queue and returns its id.
// It returns NoQueue and ErrNameTaken, if the name is used, or ErrQueueTableFull,
// if all the queues have names.
func (hf *HashFile) QNewName(name string) (QueueID, error) {
	v, err := hf.ready()
	if err != nil {
		return NoQueue, err
	}
	if len(name) == 0 || len(name) > layout.MaxNameLen {
		return NoQueue, errors.Wrapf(ErrInvalidName, "name length %d", len(name))
	}
	h := v.Header()
	hf.lock(&h.TableLock, "table")
	qid, err := hf.newName(v, name)
	hf.locker.Unlock(&h.TableLock)
	if err != nil {
		return NoQueue, err
	}
	hf.names.Set(name, qid)
	hf.logger().Debug("queue named", zap.String("name", name), zap.Stringer("qid", qid))
	return qid, nil
}

func (hf *HashFile) newName(v *layout.View, name string) (QueueID, error) {
	h := v.Header()
	idx := nameidx.New(v.Names())
	if _, ok := idx.Lookup(name, hf.nameOf(v)); ok {
		return NoQueue, errors.Wrapf(ErrNameTaken, "queue %q", name)
	}
	qid := atomic.LoadUint32(&h.NextQueue)
	if qid >= v.Layout().QueueCount {
		return NoQueue, ErrQueueTableFull
	}
	b := v.Queue(qid)
	b.NameLen = uint32(copy(b.Name[:], name))
	if err := idx.Insert(name, qid); err != nil {
		return NoQueue, errors.Wrap(ErrCorrupt, err.Error())
	}
	atomic.StoreUint32(&h.NextQueue, qid+1)
	return QueueID(qid), nil
}

func (hf *HashFile) nameOf(v *layout.View) func(qid uint32) string {
	return func(qid uint32) string {
		if qid >= v.Layout().QueueCount {
			return ""
		}
		return v.Queue(qid).QueueName()
	}
}

// QGetName returns the id of the named queue.
func (hf *HashFile) QGetName(name string) (QueueID, error) {
	if qid, ok := hf.names.Get(name); ok && hf.IsAttached() {
		return qid, nil
	}
	v, err := hf.ready()
	if err != nil {
		return NoQueue, err
	}
	qid, ok := nameidx.New(v.Names()).Lookup(name, hf.nameOf(v))
	if !ok {
		return NoQueue, errors.Wrapf(ErrNameNotFound, "queue %q", name)
	}
	hf.names.Set(name, QueueID(qid))
	return QueueID(qid), nil
}

// QueueName returns the name of the queue, or "" if it has not been named.
func (hf *HashFile) QueueName(qid QueueID) (string, error) {
	v, err := hf.ready()
	if err != nil {
		return "", err
	}
	if err = checkQueue(v, qid); err != nil {
		return "", err
	}
	return v.Queue(uint32(qid)).QueueName(), nil
}

// QueueCount returns the number of named queues.
func (hf *HashFile) QueueCount() (int, error) {
	v, err := hf.ready()
	if err != nil {
		return 0, err
	}
	return int(atomic.LoadUint32(&v.Header().NextQueue)), nil
}

// Size returns the number of items in the queue.
func (hf *HashFile) Size(qid QueueID) (int, error) {
	q, err := hf.queue(qid)
	if err != nil {
		return 0, err
	}
	return q.Size(), nil
}

// Head returns the most recently pushed item of the queue, or NoItem if it is empty.
func (hf *HashFile) Head(qid QueueID) (ItemID, error) {
	q, err := hf.queue(qid)
	if err != nil {
		return NoItem, err
	}
	return ItemID(q.Head()), nil
}

// Tail returns the oldest item of the queue, or NoItem if it is empty.
func (hf *HashFile) Tail(qid QueueID) (ItemID, error) {
	q, err := hf.queue(qid)
	if err != nil {
		return NoItem, err
	}
	return ItemID(q.Tail()), nil
}

// Item returns the payload of the item. The slice references shared memory
// and must not be used after the item is passed to another process.
func (hf *HashFile) Item(id ItemID) ([]byte, error) {
	v, err := hf.ready()
	if err != nil {
		return nil, err
	}
	if err = checkItem(v, id); err != nil {
		return nil, err
	}
	return v.Item(uint32(id)), nil
}

// PullTail removes the oldest item from the queue. The caller owns the item
// until it pushes it to a queue with PushHead or returns it with QFree.
// It returns NoItem and no error, if the queue is empty.
func (hf *HashFile) PullTail(qid QueueID) (ItemID, error) {
	v, err := hf.ready()
	if err != nil {
		return NoItem, err
	}
	if err = checkQueue(v, qid); err != nil {
		return NoItem, err
	}
	return ItemID(hf.pull(v, uint32(qid))), nil
}

// PushHead pushes an owned item onto the head of the queue and returns it.
// expectedPrevHead is the head the caller believes the queue has, or NoItem.
// A wrong belief costs a retry, the item is pushed anyway.
func (hf *HashFile) PushHead(qid QueueID, expectedPrevHead, id ItemID) (ItemID, error) {
	v, err := hf.ready()
	if err != nil {
		return NoItem, err
	}
	if err = checkQueue(v, qid); err != nil {
		return NoItem, err
	}
	if err = checkItem(v, id); err != nil {
		return NoItem, err
	}
	hf.push(v, uint32(qid), uint32(expectedPrevHead), uint32(id))
	return id, nil
}

// QAlloc takes an item from the free pool and pushes it onto the queue.
// It returns NoItem, if the pool is empty.
func (hf *HashFile) QAlloc(qid QueueID) (ItemID, error) {
	v, err := hf.ready()
	if err != nil {
		return NoItem, err
	}
	if err = checkQueue(v, qid); err != nil {
		return NoItem, err
	}
	n := hf.pull(v, v.Layout().FreePool())
	if n == mpsc.None {
		return NoItem, nil
	}
	hf.push(v, uint32(qid), mpsc.None, n)
	return ItemID(n), nil
}

// QFree returns an owned item to the free pool.
func (hf *HashFile) QFree(id ItemID) error {
	v, err := hf.ready()
	if err != nil {
		return err
	}
	if err = checkItem(v, id); err != nil {
		return err
	}
	hf.push(v, v.Layout().FreePool(), mpsc.None, uint32(id))
	return nil
}

// FreeCount returns the number of items in the free pool.
func (hf *HashFile) FreeCount() (int, error) {
	v, err := hf.ready()
	if err != nil {
		return 0, err
	}
	return mpsc.Open(v.Queue(v.Layout().FreePool()), v.Links()).Size(), nil
}

func (hf *HashFile) ready() (*layout.View, error) {
	if !hf.IsAttached() {
		return nil, ErrNotAttached
	}
	return hf.queues()
}

func (hf *HashFile) queue(qid QueueID) (mpsc.Queue, error) {
	v, err := hf.ready()
	if err != nil {
		return mpsc.Queue{}, err
	}
	if err = checkQueue(v, qid); err != nil {
		return mpsc.Queue{}, err
	}
	return mpsc.Open(v.Queue(uint32(qid)), v.Links()), nil
}

func checkQueue(v *layout.View, qid QueueID) error {
	if uint32(qid) >= v.Layout().QueueCount {
		return errors.Wrapf(ErrInvalidQueueID, "queue %v", qid)
	}
	return nil
}

func checkItem(v *layout.View, id ItemID) error {
	if uint32(id) >= v.Layout().SlotCount {
		return errors.Wrapf(ErrInvalidItemID, "item %v", id)
	}
	return nil
}

// pullLocked returns true, if pulls from qid must be serialized.
// The free pool is shared by all the processes, so it is always locked.
func pullLocked(l layout.Layout, qid uint32) bool {
	return l.Policy == layout.PolicyConsumerLock || qid == l.FreePool()
}

// pull removes the oldest node from the queue, or returns mpsc.None.
// If a producer is linking a node at the moment, pull retries for a while.
func (hf *HashFile) pull(v *layout.View, qid uint32) uint32 {
	b := v.Queue(qid)
	q := mpsc.Open(b, v.Links())
	locked := pullLocked(v.Layout(), qid)
	if locked {
		hf.lock(&b.Lock, "queue")
	}
	// defer is not used due to performance reasons.
	n := mpsc.None
	for spins := 0; ; spins++ {
		var res mpsc.PopResult
		if n, res = q.Pop(); res != mpsc.Busy || spins >= hf.cfg.TransferSpins {
			break
		}
		runtime.Gosched()
	}
	if locked {
		hf.locker.Unlock(&b.Lock)
	}
	return n
}

func (hf *HashFile) push(v *layout.View, qid, expected, n uint32) {
	q := mpsc.Open(v.Queue(qid), v.Links())
	if _, conflicts := q.Push(n, expected); conflicts > 0 {
		if ce := hf.logger().Check(zap.DebugLevel, "head moved during push"); ce != nil {
			ce.Write(zap.Uint32("qid", qid), zap.Uint32("item", n), zap.Int("conflicts", conflicts))
		}
	}
}

func (hf *HashFile) lock(word *uint32, what string) {
	if owner, forced := hf.locker.Lock(word); forced {
		hf.logger().Warn("forced a lock held by a dead process", zap.String("lock", what), zap.Uint32("pid", owner))
	}
}
