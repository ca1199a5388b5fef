// Copyright 2016 Aleksandr Demakin. All rights reserved.

//go:build unix && !linux

package region

import "os"

// ShmDirectory returns the directory for shared memory files.
// There is no tmpfs convention here, so the temp directory is used.
func ShmDirectory() (string, error) {
	return os.TempDir(), nil
}
