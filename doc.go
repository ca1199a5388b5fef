// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package shf implements a multi-process queue hash file:
// a named shared memory region, which carries a fixed set of named FIFO queues.
// Items are fixed-size slots of a slab allocated once, when the queues are created.
// Processes move items between queues with QPushHeadPullTail,
// which does not take locks for pushes.
//
// A typical flow is:
//	hf, err := shf.Attach("", "jobs", 0)
//	err = hf.QNew(2, 1024, 4096, 1)
//	todo, _ := hf.QNewName("todo")
//	done, _ := hf.QNewName("done")
//	item, err := hf.QPushHeadPullTail(done, shf.NoItem, todo)
//
// Deleting a region does not wait for other attached processes,
// collaborating processes must agree on the deletion time themselves.
//
// The package works on unix systems only.
package shf
