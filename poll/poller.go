// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package poll implements a consumer loop over a hash file queue.
// Items pulled from a source queue are handled on a worker pool
// and pushed to the queue chosen by the handler.
package poll

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	shf "github.com/nxgtw/go-shf"
)

const (
	// DefaultWorkers is the default number of concurrent handlers.
	DefaultWorkers = 4
	// DefaultMaxIdle is the default maximum sleep of an idle poller.
	DefaultMaxIdle = 50 * time.Millisecond
)

// Handler processes an item. data is the item's payload in shared memory.
// It returns the queue the item must be pushed to.
// If it returns shf.NoQueue, the item is returned to the free pool.
type Handler func(ctx context.Context, item shf.ItemID, data []byte) shf.QueueID

// Poller pulls items from a queue.
type Poller struct {
	hf      *shf.HashFile
	source  shf.QueueID
	workers int
	minIdle time.Duration
	maxIdle time.Duration
	log     *zap.Logger
}

// Option is a Poller option.
type Option func(p *Poller)

// WithWorkers sets the number of concurrent handlers.
func WithWorkers(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithIdle sets the bounds of the sleep between polls of an empty queue.
func WithIdle(min, max time.Duration) Option {
	return func(p *Poller) {
		if min > 0 && max >= min {
			p.minIdle, p.maxIdle = min, max
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

// New returns a poller of the source queue.
// The queue must have a single consumer, unless the file was created with nolockMax > 1.
func New(hf *shf.HashFile, source shf.QueueID, opts ...Option) (*Poller, error) {
	if !hf.IsAttached() {
		return nil, shf.ErrNotAttached
	}
	if _, err := hf.Size(source); err != nil {
		return nil, errors.Wrap(err, "invalid source queue")
	}
	p := &Poller{
		hf:      hf,
		source:  source,
		workers: DefaultWorkers,
		minIdle: time.Millisecond,
		maxIdle: DefaultMaxIdle,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With(zap.Stringer("source", source))
	return p, nil
}

// Run polls the source queue until ctx is done. Then it waits for running handlers
// and returns nil. It returns an error, if the hash file fails.
func (p *Poller) Run(ctx context.Context, h Handler) error {
	pool, err := ants.NewPool(p.workers)
	if err != nil {
		return errors.Wrap(err, "failed to create a worker pool")
	}
	defer pool.Release()
	var wg sync.WaitGroup
	defer wg.Wait()

	idle := backoff.NewExponentialBackOff()
	idle.InitialInterval = p.minIdle
	idle.MaxInterval = p.maxIdle
	idle.MaxElapsedTime = 0
	idle.Reset()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		if ctx.Err() != nil {
			return nil
		}
		item, err := p.hf.PullTail(p.source)
		if err != nil {
			return errors.Wrap(err, "failed to pull an item")
		}
		if !item.Valid() {
			timer.Reset(idle.NextBackOff())
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}
			continue
		}
		idle.Reset()
		wg.Add(1)
		err = pool.Submit(func() {
			defer wg.Done()
			p.handle(ctx, h, item)
		})
		if err != nil {
			wg.Done()
			p.requeue(item)
			return errors.Wrap(err, "failed to submit an item")
		}
	}
}

func (p *Poller) handle(ctx context.Context, h Handler, item shf.ItemID) {
	data, err := p.hf.Item(item)
	if err != nil {
		p.log.Error("failed to access an item", zap.Stringer("item", item), zap.Error(err))
		return
	}
	dest := h(ctx, item, data)
	if !dest.Valid() {
		if err = p.hf.QFree(item); err != nil {
			p.log.Error("failed to free an item", zap.Stringer("item", item), zap.Error(err))
		}
		return
	}
	if _, err = p.hf.PushHead(dest, shf.NoItem, item); err != nil {
		p.log.Error("failed to push an item", zap.Stringer("item", item), zap.Stringer("dest", dest), zap.Error(err))
		p.requeue(item)
	}
}

func (p *Poller) requeue(item shf.ItemID) {
	if _, err := p.hf.PushHead(p.source, shf.NoItem, item); err != nil {
		p.log.Error("item lost", zap.Stringer("item", item), zap.Error(err))
	}
}
