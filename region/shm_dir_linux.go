// Copyright 2016 Aleksandr Demakin. All rights reserved.

//go:build linux

package region

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	defaultShmPath   = "/dev/shm"
	cShmfsSuperMagic = 0x01021994
	cRamfsMagic      = 0x858458f6
)

var (
	shmPathOnce sync.Once
	shmPath     string
)

// mountRecord is a line of /proc/mounts or /etc/fstab.
type mountRecord struct {
	fsname string
	dir    string
	fstype string
}

// ShmDirectory returns the directory of the tmpfs used for shared memory.
func ShmDirectory() (string, error) {
	shmPathOnce.Do(locateShmFs)
	if len(shmPath) == 0 {
		return "", errors.New("error locating the shared memory path")
	}
	return shmPath, nil
}

// glibc/sysdeps/unix/sysv/linux/shm-directory.c
func locateShmFs() {
	if checkShmPath(defaultShmPath) {
		shmPath = defaultShmPath
	} else {
		shmPath = shmFsFromMounts()
	}
}

func checkShmPath(path string) bool {
	if len(path) == 0 {
		return false
	}
	var statfs unix.Statfs_t
	if err := unix.Statfs(path, &statfs); err != nil {
		return false
	}
	return isShmFs(int64(statfs.Type))
}

func isShmFs(fsType int64) bool {
	return fsType == cShmfsSuperMagic || fsType == cRamfsMagic
}

func shmFsFromMounts() string {
	for _, source := range []string{"/proc/mounts", "/etc/fstab"} {
		file, err := os.Open(source)
		if err != nil {
			continue
		}
		result := shmFsFromReader(file, checkShmPath)
		file.Close()
		if len(result) > 0 {
			return result
		}
	}
	return ""
}

func shmFsFromReader(r io.Reader, check func(string) bool) string {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		record, ok := parseMountRecord(scanner.Text())
		if !ok {
			continue
		}
		if record.fstype != "tmpfs" && record.fstype != "shm" {
			continue
		}
		if dir := strings.TrimSuffix(record.dir, "/"); check(dir) {
			return dir
		}
	}
	return ""
}

func parseMountRecord(line string) (mountRecord, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 || strings.HasPrefix(fields[0], "#") {
		return mountRecord{}, false
	}
	return mountRecord{fsname: fields[0], dir: fields[1], fstype: fields[2]}, true
}
