// Copyright 2016 Aleksandr Demakin. All rights reserved.

package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/pkg/errors"

	shf "github.com/nxgtw/go-shf"
	"github.com/nxgtw/go-shf/internal/test"
)

var (
	dir     = flag.String("dir", "", "directory of the hash file")
	objName = flag.String("object", "", "hash file name")
	timeout = flag.Duration("timeout", 30*time.Second, "maximum time to wait for items")
)

const usage = `  test program for hash file queues.
available commands:
  create queues items item_size nolock_max {queue names}
  alloc queue n
    moves n items from the free pool to the queue
  transfer source dest n
    moves n items from the source queue to the dest queue
  write queue {data}
    writes data to the tail item of the queue and pushes it back
  verify {expected sizes}
    checks queue links and sizes
  dump
  destroy
data should be passed as a continuous string of 2-symbol hex byte values like '01020A'
`

func parseUint32s(args []string) ([]uint32, error) {
	result := make([]uint32, 0, len(args))
	for _, arg := range args {
		value, err := strconv.ParseUint(arg, 10, 32)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid number %q", arg)
		}
		result = append(result, uint32(value))
	}
	return result, nil
}

func create() error {
	if flag.NArg() < 5 {
		return errors.New("create: must provide at least four arguments")
	}
	params, err := parseUint32s(flag.Args()[1:5])
	if err != nil {
		return err
	}
	if err = shf.AttachProcess(*dir, *objName, shf.DefaultRegionSize); err != nil {
		return err
	}
	defer shf.Detach()
	if err = shf.QNew(params[0], params[1], params[2], params[3]); err != nil {
		return err
	}
	for _, name := range flag.Args()[5:] {
		if qid := shf.QNewName(name); qid == uint32(shf.NoQueue) {
			return errors.Errorf("failed to name queue %q", name)
		}
	}
	return nil
}

func queueByName(name string) (uint32, error) {
	qid := shf.QGetName(name)
	if qid == uint32(shf.NoQueue) {
		return 0, errors.Errorf("queue %q not found", name)
	}
	return qid, nil
}

func alloc() error {
	if flag.NArg() != 3 {
		return errors.New("alloc: must provide exactly two arguments")
	}
	qid, err := queueByName(flag.Arg(1))
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(flag.Arg(2))
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		id, err := shf.Current().QAlloc(shf.QueueID(qid))
		if err != nil {
			return err
		}
		if !id.Valid() {
			return errors.Errorf("the free pool is empty after %d items", i)
		}
	}
	return nil
}

func transfer() error {
	if flag.NArg() != 4 {
		return errors.New("transfer: must provide exactly three arguments")
	}
	source, err := queueByName(flag.Arg(1))
	if err != nil {
		return err
	}
	dest, err := queueByName(flag.Arg(2))
	if err != nil {
		return err
	}
	n, err := strconv.Atoi(flag.Arg(3))
	if err != nil {
		return err
	}
	deadline := time.Now().Add(*timeout)
	expected := uint32(shf.NoItem)
	for moved := 0; moved < n; {
		id := shf.QPushHeadPullTail(dest, expected, source)
		if id == uint32(shf.NoItem) {
			if time.Now().After(deadline) {
				return errors.Errorf("moved %d items of %d", moved, n)
			}
			runtime.Gosched()
			continue
		}
		expected = id
		moved++
	}
	fmt.Printf("moved %d items\n", n)
	return nil
}

func write() error {
	if flag.NArg() != 3 {
		return errors.New("write: must provide exactly two arguments")
	}
	qid, err := queueByName(flag.Arg(1))
	if err != nil {
		return err
	}
	data, err := shf_testing.StringToBytes(flag.Arg(2))
	if err != nil {
		return err
	}
	hf := shf.Current()
	id, err := hf.PullTail(shf.QueueID(qid))
	if err != nil {
		return err
	}
	if !id.Valid() {
		return errors.Errorf("queue %q is empty", flag.Arg(1))
	}
	item, err := hf.Item(id)
	if err != nil {
		return err
	}
	copy(item, data)
	_, err = hf.PushHead(shf.QueueID(qid), shf.NoItem, id)
	return err
}

func verify() error {
	expected, err := parseUint32s(flag.Args()[1:])
	if err != nil {
		return err
	}
	census, err := shf.Current().Verify()
	if err != nil {
		return err
	}
	if len(expected) > 0 && len(expected) != len(census.Queues) {
		return errors.Errorf("expected %d queues, got %d", len(expected), len(census.Queues))
	}
	for i, size := range expected {
		if census.Queues[i] != int(size) {
			return errors.Errorf("queue %d: expected %d items, got %d", i, size, census.Queues[i])
		}
	}
	fmt.Printf("%+v\n", census)
	return nil
}

func runCommand() error {
	command := flag.Arg(0)
	switch command {
	case "create":
		return create()
	case "destroy":
		return shf.Destroy(*dir, *objName)
	}
	if err := shf.AttachExistingProcess(*dir, *objName); err != nil {
		return err
	}
	defer shf.Detach()
	switch command {
	case "alloc":
		return alloc()
	case "transfer":
		return transfer()
	case "write":
		return write()
	case "verify":
		return verify()
	case "dump":
		return shf.Current().Dump(os.Stdout)
	default:
		return errors.Errorf("unknown command %q", command)
	}
}

func main() {
	flag.Parse()
	if len(*objName) == 0 || flag.NArg() == 0 {
		fmt.Print(usage)
		flag.Usage()
		os.Exit(1)
	}
	if err := runCommand(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
