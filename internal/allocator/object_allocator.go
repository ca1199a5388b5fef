// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package allocator contains helpers to place plain objects into
// a memory mapped region and to address them with offsets.
package allocator

import (
	"fmt"
	"reflect"
	"unsafe"
)

// ByteSliceData returns a pointer to the data of the given byte slice.
func ByteSliceData(slice []byte) unsafe.Pointer {
	if cap(slice) == 0 {
		return nil
	}
	return unsafe.Pointer(unsafe.SliceData(slice))
}

// AdvancePointer adds shift value to 'p' pointer.
func AdvancePointer(p unsafe.Pointer, shift uintptr) unsafe.Pointer {
	return unsafe.Add(p, shift)
}

// ByteSliceFromUnsafePointer returns a slice of bytes with given length and capacity.
// Memory pointed by the unsafe.Pointer is used for the slice.
func ByteSliceFromUnsafePointer(memory unsafe.Pointer, length, capacity int) []byte {
	return unsafe.Slice((*byte)(memory), capacity)[:length]
}

// Uint32SliceFromUnsafePointer returns a slice of uint32 of the given length,
// which uses the memory at 'memory'. The memory must be 4-byte aligned.
func Uint32SliceFromUnsafePointer(memory unsafe.Pointer, length int) []uint32 {
	return unsafe.Slice((*uint32)(memory), length)
}

// AlignUp rounds 'value' up to the nearest multiple of 'align', which must be a power of two.
func AlignUp(value, align uint64) uint64 {
	return (value + align - 1) &^ (align - 1)
}

// CheckObjectReferences checks if an object of type can be safely copied byte by byte,
// and thus can be placed into shared memory.
// the object must not contain any reference types like
// maps, strings, and so on.
// slices or pointers can be at the top level only
func CheckObjectReferences(object interface{}) error {
	return checkType(reflect.ValueOf(object).Type(), 0)
}

func checkType(t reflect.Type, depth int) error {
	kind := t.Kind()
	if kind == reflect.Array {
		return checkType(t.Elem(), depth+1)
	}
	if kind == reflect.Slice {
		if depth != 0 {
			return fmt.Errorf("unexpected slice type")
		}
		return checkType(t.Elem(), depth+1)
	}
	if kind == reflect.Ptr {
		if depth != 0 {
			return fmt.Errorf("unexpected pointer type")
		}
		return checkType(t.Elem(), depth+1)
	}
	if kind == reflect.Struct {
		for i := 0; i < t.NumField(); i++ {
			field := t.Field(i)
			if err := checkType(field.Type, depth+1); err != nil {
				return fmt.Errorf("field %s: %v", field.Name, err)
			}
		}
		return nil
	}
	return checkNumericType(kind)
}

func checkNumericType(kind reflect.Kind) error {
	if kind >= reflect.Bool && kind <= reflect.Complex128 {
		return nil
	}
	return fmt.Errorf("unsupported type %q", kind.String())
}
