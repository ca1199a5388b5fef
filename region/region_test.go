// Copyright 2016 Aleksandr Demakin. All rights reserved.

package region

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRegionName = "shf-region-test"

func TestOpenModes(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()
	_, err := Open(dir, testRegionName, O_OPEN_ONLY, 0666, 0)
	a.True(os.IsNotExist(errors.Cause(err)))

	r, err := Open(dir, testRegionName, O_CREATE_ONLY, 0666, 4096)
	require.NoError(t, err)
	a.True(r.Created())
	a.Equal(4096, r.Size())
	a.Equal(filepath.Join(dir, testRegionName), r.Path())

	_, err = Open(dir, testRegionName, O_CREATE_ONLY, 0666, 4096)
	a.True(os.IsExist(errors.Cause(err)))

	r2, err := Open(dir, testRegionName, O_OPEN_OR_CREATE, 0666, 8192)
	require.NoError(t, err)
	a.False(r2.Created())
	a.Equal(4096, r2.Size())

	r.Data()[100] = 42
	a.Equal(byte(42), r2.Data()[100])
	a.NoError(r.Flush(false))

	a.NoError(r2.Close())
	a.Nil(r2.Data())
	a.NoError(r2.Close())
	a.NoError(r.Destroy())
	_, err = os.Stat(filepath.Join(dir, testRegionName))
	a.True(os.IsNotExist(err))
}

func TestOpenEmptyFile(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()
	f, err := os.Create(filepath.Join(dir, testRegionName))
	require.NoError(t, err)
	f.Close()
	_, err = Open(dir, testRegionName, O_OPEN_ONLY, 0666, 0)
	a.Equal(ErrEmpty, errors.Cause(err))
	_, err = os.Stat(filepath.Join(dir, testRegionName))
	a.NoError(err)
}

func TestCreateInvalidSizeCleansUp(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()
	_, err := Open(dir, testRegionName, O_CREATE_ONLY, 0666, 0)
	a.Error(err)
	_, err = os.Stat(filepath.Join(dir, testRegionName))
	a.True(os.IsNotExist(err))
}

func TestDestroy(t *testing.T) {
	a := assert.New(t)
	dir := t.TempDir()
	a.NoError(Destroy(dir, testRegionName))
	r, err := Open(dir, testRegionName, O_CREATE_ONLY, 0666, 4096)
	require.NoError(t, err)
	a.NoError(r.Close())
	a.NoError(Destroy(dir, testRegionName))
	_, err = Open(dir, testRegionName, O_OPEN_ONLY, 0666, 0)
	a.True(os.IsNotExist(errors.Cause(err)))
	a.Error(Destroy(dir, "a/b"))
}

func TestPathDefaultsToShmDirectory(t *testing.T) {
	dir, err := ShmDirectory()
	if err != nil {
		t.Skip("no shared memory directory")
	}
	path, err := Path("", testRegionName)
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, testRegionName), path)
}
