// Copyright 2016 Aleksandr Demakin. All rights reserved.

package shf_testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBytesToStringAndBack(t *testing.T) {
	a := assert.New(t)
	data := []struct {
		in  []byte
		out string
	}{
		{in: nil, out: ""},
		{in: []byte{0}, out: "00"},
		{in: []byte{1, 0x0A, 0xFF}, out: "010AFF"},
	}
	for _, d := range data {
		a.Equal(d.out, BytesToString(d.in))
		back, err := StringToBytes(d.out)
		a.NoError(err)
		a.Equal(len(d.in), len(back))
		if len(d.in) > 0 {
			a.Equal(d.in, back)
		}
	}
	_, err := StringToBytes("ABC")
	a.Error(err)
	_, err = StringToBytes("ZZ")
	a.Error(err)
}

func TestWaitForAppResultChan(t *testing.T) {
	a := assert.New(t)
	ch := make(chan TestAppResult, 1)
	_, ok := WaitForAppResultChan(ch, time.Millisecond)
	a.False(ok)
	ch <- TestAppResult{Output: "done"}
	result, ok := WaitForAppResultChan(ch, time.Second)
	a.True(ok)
	a.Equal("done", result.Output)
}
