// Copyright 2016 Aleksandr Demakin. All rights reserved.

package common

import (
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestOpenOrCreate(t *testing.T) {
	a := assert.New(t)
	exists := false
	var calls []bool
	creator := func(create bool) error {
		calls = append(calls, create)
		if create {
			if exists {
				return errors.Wrap(os.ErrExist, "create")
			}
			exists = true
			return nil
		}
		if !exists {
			return errors.Wrap(os.ErrNotExist, "open")
		}
		return nil
	}
	created, err := OpenOrCreate(creator, O_OPEN_ONLY)
	a.False(created)
	a.True(os.IsNotExist(errors.Cause(err)))

	created, err = OpenOrCreate(creator, O_OPEN_OR_CREATE)
	a.NoError(err)
	a.True(created)

	created, err = OpenOrCreate(creator, O_CREATE_ONLY)
	a.False(created)
	a.True(os.IsExist(errors.Cause(err)))

	calls = nil
	created, err = OpenOrCreate(creator, O_OPEN_OR_CREATE)
	a.NoError(err)
	a.False(created)
	a.Equal([]bool{true, false}, calls)

	_, err = OpenOrCreate(creator, 0)
	a.Error(err)
}

func TestCheckObjectName(t *testing.T) {
	a := assert.New(t)
	a.NoError(CheckObjectName("shf-queues"))
	a.Error(CheckObjectName(""))
	a.Error(CheckObjectName("a/b"))
	a.Error(CheckObjectName(".."))
	a.Error(CheckObjectName(string(make([]byte, 300))))
}
