// Copyright 2016 Aleksandr Demakin. All rights reserved.

//go:build unix

package region

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func mmap(file *os.File, size int) ([]byte, error) {
	data, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrap(err, "mmap failed")
	}
	return data, nil
}

func munmap(data []byte) error {
	return errors.Wrap(unix.Munmap(data), "munmap failed")
}

func msync(data []byte, async bool) error {
	flag := unix.MS_SYNC
	if async {
		flag = unix.MS_ASYNC
	}
	return errors.Wrap(unix.Msync(data, flag), "msync failed")
}
