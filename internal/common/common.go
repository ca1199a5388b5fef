// Copyright 2016 Aleksandr Demakin. All rights reserved.

package common

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// flags for opening/creation of objects
const (
	O_OPEN_OR_CREATE = 0x00000001
	O_CREATE_ONLY    = 0x00000002
	O_OPEN_ONLY      = 0x00000004
)

const maxNameLen = 255

// OpenOrCreate calls creator according to the mode.
// creator(true) must create a new object failing with an os.IsExist error if it exists,
// creator(false) must open an existing object failing with an os.IsNotExist error if it does not.
// It returns true, if the object was created.
func OpenOrCreate(creator func(bool) error, mode int) (bool, error) {
	switch mode {
	case O_OPEN_ONLY:
		return false, creator(false)
	case O_CREATE_ONLY:
		err := creator(true)
		if err != nil {
			return false, err
		}
		return true, nil
	case O_OPEN_OR_CREATE:
		const attempts = 16
		var err error
		for attempt := 0; attempt < attempts; attempt++ {
			if err = creator(true); !os.IsExist(errors.Cause(err)) {
				return err == nil, err
			}
			if err = creator(false); !os.IsNotExist(errors.Cause(err)) {
				return false, err
			}
		}
		return false, err
	default:
		return false, errors.Errorf("unknown open mode %d", mode)
	}
}

// CheckObjectName returns an error, if the name can't be used as a file name
// inside a directory.
func CheckObjectName(name string) error {
	if len(name) == 0 || len(name) >= maxNameLen || strings.ContainsAny(name, "/\x00") || name == "." || name == ".." {
		return errors.Errorf("invalid object name %q", name)
	}
	return nil
}
