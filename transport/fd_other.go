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

//go:build !unix

package transport

import (
	"errors"
	"fmt"
)

// FD is a [Stream] over a raw file descriptor. Not supported on this platform.
type FD struct {
	fd int
}

var _ Stream = (*FD)(nil)

// NewFD always fails on this platform.
func NewFD(fd int) (*FD, error) {
	return nil, fmt.Errorf("file descriptor %d: %w", fd, errors.ErrUnsupported)
}

// Fd returns the file descriptor.
func (f *FD) Fd() int { return f.fd }

func (f *FD) Read(p []byte) (int, error) { return 0, errors.ErrUnsupported }

func (f *FD) Write(p []byte) (int, error) { return 0, errors.ErrUnsupported }

func (f *FD) Close() error { return errors.ErrUnsupported }
