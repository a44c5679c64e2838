// Copyright 2025 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package handle maps Go objects to opaque integer handles that can be handed
// across the C boundary and validated when they come back.
//
// Unlike [runtime/cgo.Handle], a lookup never panics: unknown, foreign, freed
// or mistyped handles are reported as errors. Handles are never reused, so a
// stale handle stays invalid even after many allocations.
package handle

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
	"sync"
)

// Handle is an opaque reference to an object held by a [Registry].
// The zero Handle is the null handle.
type Handle uintptr

const (
	tagBits = bits.UintSize / 4
	seqBits = bits.UintSize - tagBits
	seqMask = uintptr(1)<<seqBits - 1
)

var (
	// ErrNullHandle is returned when the null handle is looked up.
	ErrNullHandle = errors.New("null handle")
	// ErrMalformedHandle is returned when a handle was not issued by the registry,
	// has been released, or refers to an object of a different type.
	ErrMalformedHandle = errors.New("malformed handle")
)

// Registry holds the objects referenced by live handles.
// It is safe for concurrent use.
type Registry struct {
	tag uintptr

	mu      sync.RWMutex
	lastSeq uintptr
	objects map[Handle]any
}

// NewRegistry creates an empty registry with a fresh random tag.
func NewRegistry() *Registry {
	var b [8]byte
	// crypto/rand.Read never returns an error on supported platforms.
	rand.Read(b[:])
	tag := uintptr(binary.LittleEndian.Uint64(b[:])) & (uintptr(1)<<tagBits - 1)
	if tag == 0 {
		// A zero tag would make the first handles look like small integers.
		tag = 1
	}
	return &Registry{tag: tag, objects: make(map[Handle]any)}
}

func (r *Registry) tagOf(h Handle) uintptr {
	return uintptr(h) >> seqBits
}

// Register stores obj and returns a new handle for it.
func (r *Registry) Register(obj any) Handle {
	if obj == nil {
		panic("handle: Register called with nil object")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastSeq = (r.lastSeq + 1) & seqMask
	if r.lastSeq == 0 {
		panic("handle: sequence space exhausted")
	}
	h := Handle(r.tag<<seqBits | r.lastSeq)
	r.objects[h] = obj
	return h
}

func (r *Registry) check(h Handle) error {
	if h == 0 {
		return ErrNullHandle
	}
	if r.tagOf(h) != r.tag {
		return fmt.Errorf("%w: foreign tag", ErrMalformedHandle)
	}
	return nil
}

// Lookup returns the object referenced by h, which must be of type T.
func Lookup[T any](r *Registry, h Handle) (T, error) {
	var zero T
	if err := r.check(h); err != nil {
		return zero, err
	}
	r.mu.RLock()
	obj, ok := r.objects[h]
	r.mu.RUnlock()
	if !ok {
		return zero, fmt.Errorf("%w: unknown or released", ErrMalformedHandle)
	}
	v, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrMalformedHandle, obj, zero)
	}
	return v, nil
}

// Take is like [Lookup], but also releases h if the lookup succeeds.
// It is used for objects that can only be consumed once.
func Take[T any](r *Registry, h Handle) (T, error) {
	var zero T
	if err := r.check(h); err != nil {
		return zero, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.objects[h]
	if !ok {
		return zero, fmt.Errorf("%w: unknown or released", ErrMalformedHandle)
	}
	v, ok := obj.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %T, want %T", ErrMalformedHandle, obj, zero)
	}
	delete(r.objects, h)
	return v, nil
}

// Release invalidates h. The referenced object is left to the garbage collector.
func (r *Registry) Release(h Handle) error {
	if err := r.check(h); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[h]; !ok {
		return fmt.Errorf("%w: unknown or released", ErrMalformedHandle)
	}
	delete(r.objects, h)
	return nil
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.objects)
}
