// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package region maps named shared memory files into the process' address space.
package region

import (
	"os"
	"path/filepath"

	"github.com/nxgtw/go-shf/internal/common"
	"github.com/pkg/errors"
)

// open modes.
const (
	O_OPEN_OR_CREATE = common.O_OPEN_OR_CREATE
	O_CREATE_ONLY    = common.O_CREATE_ONLY
	O_OPEN_ONLY      = common.O_OPEN_ONLY
)

// ErrEmpty is returned when an existing file has not been sized by its creator yet.
var ErrEmpty = errors.New("shared memory file is empty")

// Region is a shared memory file mapped for reading and writing.
type Region struct {
	path    string
	data    []byte
	created bool
}

// Path returns a full path of the object for the given directory and name.
// An empty dir means the system shared memory directory.
func Path(dir, name string) (string, error) {
	if err := common.CheckObjectName(name); err != nil {
		return "", err
	}
	if len(dir) == 0 {
		var err error
		if dir, err = ShmDirectory(); err != nil {
			return "", err
		}
	}
	return filepath.Join(dir, name), nil
}

// Open opens or creates a shared memory file and maps it.
//	dir - directory of the file. "" means the system shared memory directory.
//	name - file name. should not contain '/' and exceed 255 symbols.
//	mode - open mode. see O_* constants.
//	size - file size. it is used only if the file is created.
func Open(dir, name string, mode int, perm os.FileMode, size int64) (*Region, error) {
	path, err := Path(dir, name)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build a region path")
	}
	var file *os.File
	creator := func(create bool) error {
		var err error
		if create {
			file, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, perm)
		} else {
			file, err = os.OpenFile(path, os.O_RDWR, perm)
		}
		return err
	}
	created, err := common.OpenOrCreate(creator, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	result := &Region{path: path, created: created}
	defer func() {
		file.Close()
		if err == nil {
			return
		}
		if created {
			os.Remove(path)
		}
	}()
	if created {
		if size <= 0 {
			err = errors.Errorf("invalid region size %d", size)
			return nil, err
		}
		if err = file.Truncate(size); err != nil {
			err = errors.Wrap(err, "failed to truncate a region")
			return nil, err
		}
	} else {
		var info os.FileInfo
		if info, err = file.Stat(); err != nil {
			err = errors.Wrap(err, "failed to stat a region")
			return nil, err
		}
		if size = info.Size(); size == 0 {
			err = ErrEmpty
			return nil, err
		}
	}
	if result.data, err = mmap(file, int(size)); err != nil {
		return nil, err
	}
	return result, nil
}

// Destroy removes a shared memory file. It does not return an error, if it does not exist.
func Destroy(dir, name string) error {
	path, err := Path(dir, name)
	if err != nil {
		return err
	}
	if err = os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %q", path)
	}
	return nil
}

// Data returns the mapped memory. It is nil after Close.
func (r *Region) Data() []byte {
	return r.data
}

// Size returns the size of the mapping.
func (r *Region) Size() int {
	return len(r.data)
}

// Created returns true, if the file was created by Open.
func (r *Region) Created() bool {
	return r.created
}

// Path returns a full path of the backing file.
func (r *Region) Path() string {
	return r.path
}

// Flush synchronizes the mapping with the backing file.
func (r *Region) Flush(async bool) error {
	if r.data == nil {
		return nil
	}
	return msync(r.data, async)
}

// Close unmaps the memory. The file stays in place.
func (r *Region) Close() error {
	if r.data == nil {
		return nil
	}
	err := munmap(r.data)
	r.data = nil
	return err
}

// Destroy unmaps the memory and removes the backing file.
func (r *Region) Destroy() error {
	errClose := r.Close()
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to remove %q", r.path)
	}
	return errClose
}
