// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nxgtw/go-shf/internal/layout"
	"github.com/nxgtw/go-shf/internal/spinlock"
	"github.com/nxgtw/go-shf/region"
)

// open modes.
const (
	O_OPEN_OR_CREATE = region.O_OPEN_OR_CREATE
	O_CREATE_ONLY    = region.O_CREATE_ONLY
	O_OPEN_ONLY      = region.O_OPEN_ONLY
)

const hashFilePerm = 0666

// HashFile is a process-local handle of a queue hash file.
// All methods, except Close and Delete, are safe for concurrent use.
type HashFile struct {
	region   *region.Region
	header   *layout.Header
	view     atomic.Pointer[layout.View]
	attached atomic.Bool
	locker   *spinlock.Locker
	names    cmap.ConcurrentMap[string, QueueID]
	cfg      Config
	log      atomic.Pointer[fileLogger]
}

// fileLogger is the package logger with the fields of a hash file.
type fileLogger struct {
	base *zap.Logger
	l    *zap.Logger
}

// Open opens or creates a hash file.
//	path - directory of the file. "" means the configured directory, or the shm directory.
//	name - file name. should not contain '/'.
//	mode - one of O_OPEN_OR_CREATE, O_CREATE_ONLY, O_OPEN_ONLY.
//	size - total mapped size. it is used only on creation, 0 means the configured default.
func Open(path, name string, mode int, size int64) (*HashFile, error) {
	cfg := currentConfig()
	if len(path) == 0 {
		path = cfg.Dir
	}
	if size <= 0 {
		size = cfg.RegionSize
	}
	if size < layout.HeaderSize {
		return nil, errors.Wrapf(ErrLayoutTooLarge, "region size %d is less than header size", size)
	}
	r, err := openRegion(path, name, mode, size, cfg.AttachWait)
	if err != nil {
		return nil, err
	}
	hf := newHashFile(r, cfg)
	if r.Created() {
		hf.publishHeader()
	} else if err = hf.waitHeader(cfg.AttachWait); err != nil {
		r.Close()
		return nil, err
	}
	hf.attached.Store(true)
	hf.logger().Debug("attached", zap.Bool("created", r.Created()), zap.Int("size", r.Size()))
	return hf, nil
}

// Attach creates a new hash file. It fails with ErrAlreadyExists, if it exists.
func Attach(path, name string, size int64) (*HashFile, error) {
	return Open(path, name, O_CREATE_ONLY, size)
}

// AttachExisting opens an existing hash file. It fails with ErrNotFound, if it does not exist.
// It never changes the layout of the file.
func AttachExisting(path, name string) (*HashFile, error) {
	return Open(path, name, O_OPEN_ONLY, 0)
}

// Destroy removes a hash file without attaching to it.
func Destroy(path, name string) error {
	if len(path) == 0 {
		path = currentConfig().Dir
	}
	return region.Destroy(path, name)
}

func openRegion(path, name string, mode int, size int64, wait time.Duration) (*region.Region, error) {
	var r *region.Region
	op := func() error {
		var err error
		r, err = region.Open(path, name, mode, hashFilePerm, size)
		if errors.Cause(err) == region.ErrEmpty {
			return err
		}
		return backoff.Permanent(err)
	}
	err := backoff.Retry(op, attachBackoff(wait))
	if err == nil {
		return r, nil
	}
	cause := errors.Cause(err)
	switch {
	case os.IsExist(cause):
		return nil, errors.Wrap(ErrAlreadyExists, err.Error())
	case os.IsNotExist(cause):
		return nil, errors.Wrap(ErrNotFound, err.Error())
	case cause == region.ErrEmpty:
		return nil, errors.Wrap(ErrBadHeader, err.Error())
	}
	return nil, err
}

func attachBackoff(wait time.Duration) backoff.BackOff {
	if wait <= 0 {
		return &backoff.StopBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = wait
	return b
}

func newHashFile(r *region.Region, cfg Config) *HashFile {
	return &HashFile{
		region: r,
		header: layout.HeaderAt(r.Data()),
		locker: spinlock.New(spinlock.WithSpinMax(cfg.LockSpinMax)),
		names:  cmap.New[QueueID](),
		cfg:    cfg,
	}
}

// logger returns the package logger bound to the file.
// It follows SetLogger calls made after the file was opened.
func (hf *HashFile) logger() *zap.Logger {
	base := logger()
	if fl := hf.log.Load(); fl != nil && fl.base == base {
		return fl.l
	}
	fl := &fileLogger{base: base, l: base.With(zap.String("path", hf.region.Path()))}
	hf.log.Store(fl)
	return fl.l
}

// publishHeader initializes a freshly created file. Magic is stored last,
// so attachers never see a partial header.
func (hf *HashFile) publishHeader() {
	h := hf.header
	h.Version = layout.Version
	h.RegionSize = uint64(hf.region.Size())
	h.CreatorPid = hf.locker.Pid()
	atomic.StoreUint32(&h.State, layout.StateRaw)
	atomic.StoreUint64(&h.Magic, layout.Magic)
}

func (hf *HashFile) waitHeader(wait time.Duration) error {
	if hf.region.Size() < layout.HeaderSize {
		return errors.Wrapf(ErrBadHeader, "file size %d is too small", hf.region.Size())
	}
	h := hf.header
	op := func() error {
		if atomic.LoadUint64(&h.Magic) != layout.Magic {
			return errors.Wrap(ErrBadHeader, "header is not published")
		}
		return nil
	}
	if err := backoff.Retry(op, attachBackoff(wait)); err != nil {
		return err
	}
	if h.Version != layout.Version {
		return errors.Wrapf(ErrBadHeader, "unsupported version %d", h.Version)
	}
	if h.RegionSize != uint64(hf.region.Size()) {
		return errors.Wrapf(ErrBadHeader, "header size %d does not match file size %d", h.RegionSize, hf.region.Size())
	}
	_, err := hf.queues()
	if err != nil && errors.Cause(err) != ErrNotInitialized {
		return err
	}
	return nil
}

// queues returns the view of the queue sections. The view is built on first use,
// after the queues have been created by any attached process.
func (hf *HashFile) queues() (*layout.View, error) {
	if v := hf.view.Load(); v != nil {
		return v, nil
	}
	if hf.region.Data() == nil {
		return nil, ErrNotAttached
	}
	h := hf.header
	if atomic.LoadUint32(&h.State) != layout.StateReady {
		return nil, ErrNotInitialized
	}
	l := layout.FromHeader(h)
	if l.Total > uint64(hf.region.Size()) || l.NameSlots == 0 || l.NameSlots&(l.NameSlots-1) != 0 {
		return nil, errors.Wrap(ErrBadHeader, "layout does not match the file")
	}
	v := layout.NewView(hf.region.Data(), l)
	hf.view.CompareAndSwap(nil, v)
	return hf.view.Load(), nil
}

// IsAttached returns true, if the handle has a mapped region. It has no side effects.
func (hf *HashFile) IsAttached() bool {
	return hf != nil && hf.attached.Load()
}

// Path returns the full path of the backing file.
func (hf *HashFile) Path() string {
	return hf.region.Path()
}

// Created returns true, if this handle created the file.
func (hf *HashFile) Created() bool {
	return hf.region.Created()
}

// Layout returns the layout of the queues. It fails with ErrNotInitialized before QNew.
func (hf *HashFile) Layout() (Layout, error) {
	if !hf.IsAttached() {
		return Layout{}, ErrNotAttached
	}
	v, err := hf.queues()
	if err != nil {
		return Layout{}, err
	}
	l := v.Layout()
	return Layout{
		QueueCount:    l.QueueCount,
		ItemsPerQueue: l.ItemsPerQueue,
		ItemSize:      l.ItemSize,
		SlotCount:     l.SlotCount,
		NolockMax:     l.NolockMax,
		RegionSize:    hf.header.RegionSize,
	}, nil
}

// Flush synchronizes the mapping with the backing file.
func (hf *HashFile) Flush() error {
	if !hf.IsAttached() {
		return ErrNotAttached
	}
	return hf.region.Flush(false)
}

// Close detaches from the hash file. The file stays in place for other processes.
func (hf *HashFile) Close() error {
	if !hf.attached.CompareAndSwap(true, false) {
		return nil
	}
	hf.view.Store(nil)
	hf.logger().Debug("detached")
	return errors.Wrap(hf.region.Close(), "failed to close the region")
}

// Delete detaches from the hash file and removes it, so that future attach calls start fresh.
// Other attached processes are not notified, they must not use the file afterwards.
func (hf *HashFile) Delete() error {
	if !hf.attached.CompareAndSwap(true, false) {
		return ErrNotAttached
	}
	hf.view.Store(nil)
	hf.logger().Debug("deleted")
	return errors.Wrap(hf.region.Destroy(), "failed to delete the region")
}
