// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf

import (
	"github.com/nxgtw/go-shf/internal/layout"
	"github.com/pkg/errors"
)

// Errors returned by the package. They may be wrapped, use errors.Cause to compare.
var (
	ErrAlreadyExists      = errors.New("hash file already exists")
	ErrNotFound           = errors.New("hash file not found")
	ErrLayoutTooLarge     = layout.ErrTooLarge
	ErrInvalidLayout      = layout.ErrInvalid
	ErrAlreadyInitialized = errors.New("queues are already initialized")
	ErrNotInitialized     = errors.New("queues are not initialized")
	ErrInvalidQueueID     = errors.New("invalid queue id")
	ErrInvalidItemID      = errors.New("invalid item id")
	ErrNameTaken          = errors.New("queue name is already taken")
	ErrNameNotFound       = errors.New("queue name not found")
	ErrInvalidName        = errors.New("invalid queue name")
	ErrQueueTableFull     = errors.New("queue table is full")
	ErrAlreadyAttached    = errors.New("already attached")
	ErrNotAttached        = errors.New("not attached")
	ErrBadHeader          = errors.New("bad hash file header")
	ErrCorrupt            = errors.New("queue links are corrupt")
)
