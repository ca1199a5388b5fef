// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"sync/atomic"

	"github.com/heptiolabs/healthcheck"
	"github.com/pkg/errors"

	"github.com/nxgtw/go-shf/internal/layout"
)

// HealthCheck returns a check, which fails if the hash file is detached
// or its header is damaged. It can be registered with healthcheck.Handler.
func (hf *HashFile) HealthCheck() healthcheck.Check {
	return func() error {
		if !hf.IsAttached() {
			return ErrNotAttached
		}
		h := hf.header
		if atomic.LoadUint64(&h.Magic) != layout.Magic || h.Version != layout.Version {
			return ErrBadHeader
		}
		if state := atomic.LoadUint32(&h.State); state > layout.StateReady {
			return errors.Wrapf(ErrBadHeader, "unknown state %d", state)
		}
		return nil
	}
}

// RegisterHealthChecks adds liveness and readiness checks of the hash file to the handler.
// Readiness fails until the queues are created.
func (hf *HashFile) RegisterHealthChecks(handler healthcheck.Handler, name string) {
	handler.AddLivenessCheck(name, hf.HealthCheck())
	handler.AddReadinessCheck(name+"-queues", func() error {
		if !hf.QIsReady() {
			return ErrNotInitialized
		}
		return nil
	})
}
