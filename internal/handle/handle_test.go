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

package handle

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type thing struct{ name string }
type other struct{}

func TestRegisterLookup(t *testing.T) {
	r := NewRegistry()
	obj := &thing{"a"}
	h := r.Register(obj)
	require.NotZero(t, h)

	got, err := Lookup[*thing](r, h)
	require.NoError(t, err)
	require.Same(t, obj, got)
	require.Equal(t, 1, r.Len())
}

func TestLookupNull(t *testing.T) {
	r := NewRegistry()
	_, err := Lookup[*thing](r, 0)
	require.ErrorIs(t, err, ErrNullHandle)
}

func TestLookupWrongType(t *testing.T) {
	r := NewRegistry()
	h := r.Register(&thing{})
	_, err := Lookup[*other](r, h)
	require.ErrorIs(t, err, ErrMalformedHandle)
}

func TestLookupForeignRegistry(t *testing.T) {
	r1 := NewRegistry()
	r2 := NewRegistry()
	// Force distinct tags so the check is deterministic.
	r2.tag = r1.tag ^ 1
	h := r1.Register(&thing{})
	_, err := Lookup[*thing](r2, h)
	require.ErrorIs(t, err, ErrMalformedHandle)
}

func TestLookupGarbage(t *testing.T) {
	r := NewRegistry()
	_, err := Lookup[*thing](r, Handle(0x1234))
	require.ErrorIs(t, err, ErrMalformedHandle)
}

func TestReleaseInvalidates(t *testing.T) {
	r := NewRegistry()
	h := r.Register(&thing{})
	require.NoError(t, r.Release(h))
	_, err := Lookup[*thing](r, h)
	require.ErrorIs(t, err, ErrMalformedHandle)
	require.ErrorIs(t, r.Release(h), ErrMalformedHandle)
	require.Zero(t, r.Len())
}

func TestHandlesAreNotReused(t *testing.T) {
	r := NewRegistry()
	seen := make(map[Handle]bool)
	for i := 0; i < 1000; i++ {
		h := r.Register(&thing{})
		require.False(t, seen[h])
		seen[h] = true
		require.NoError(t, r.Release(h))
	}
}

func TestTake(t *testing.T) {
	r := NewRegistry()
	h := r.Register(&thing{"once"})

	_, err := Take[*other](r, h)
	require.ErrorIs(t, err, ErrMalformedHandle)
	// A failed take leaves the handle alive.
	require.Equal(t, 1, r.Len())

	got, err := Take[*thing](r, h)
	require.NoError(t, err)
	require.Equal(t, "once", got.name)

	_, err = Take[*thing](r, h)
	require.ErrorIs(t, err, ErrMalformedHandle)
}

func TestConcurrentRegister(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	handles := make([]Handle, 64)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = r.Register(&thing{})
		}(i)
	}
	wg.Wait()
	unique := make(map[Handle]struct{})
	for _, h := range handles {
		unique[h] = struct{}{}
	}
	require.Len(t, unique, len(handles))
}
