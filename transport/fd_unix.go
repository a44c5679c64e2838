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

//go:build unix

package transport

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// FD is a [Stream] over a raw file descriptor. Reads and writes are issued
// directly with read(2) and write(2), bypassing the Go netpoller, so that the
// descriptor's blocking mode is whatever the owner configured.
type FD struct {
	fd        int
	closeOnce sync.Once
	closeErr  error
}

var _ Stream = (*FD)(nil)

// NewFD takes ownership of fd. The descriptor is closed by [FD.Close].
func NewFD(fd int) (*FD, error) {
	if fd < 0 {
		return nil, fmt.Errorf("invalid file descriptor %d", fd)
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0); err != nil {
		return nil, fmt.Errorf("file descriptor %d: %w", fd, os.NewSyscallError("fcntl", err))
	}
	return &FD{fd: fd}, nil
}

// Fd returns the file descriptor.
func (f *FD) Fd() int {
	return f.fd
}

func isAgain(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

func (f *FD) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(f.fd, p)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil && isAgain(err):
			return 0, wouldBlock(os.NewSyscallError("read", err))
		case err != nil:
			return 0, os.NewSyscallError("read", err)
		case n == 0:
			return 0, io.EOF
		}
		return n, nil
	}
}

// Write writes all of p unless the descriptor would block or fails, in which
// case it returns how much was written along with the error.
func (f *FD) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := unix.Write(f.fd, p[written:])
		if n > 0 {
			written += n
		}
		switch {
		case err == unix.EINTR:
			continue
		case err != nil && isAgain(err):
			return written, wouldBlock(os.NewSyscallError("write", err))
		case err != nil:
			return written, os.NewSyscallError("write", err)
		case n == 0:
			return written, io.ErrShortWrite
		}
	}
	return written, nil
}

// Close closes the descriptor. Subsequent calls return the first result.
func (f *FD) Close() error {
	f.closeOnce.Do(func() {
		if err := unix.Close(f.fd); err != nil {
			f.closeErr = os.NewSyscallError("close", err)
		}
	})
	return f.closeErr
}
