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
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func socketPair(t *testing.T) (*FD, *FD) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	a, err := NewFD(fds[0])
	require.NoError(t, err)
	b, err := NewFD(fds[1])
	require.NoError(t, err)
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestFDReadWrite(t *testing.T) {
	a, b := socketPair(t)
	n, err := a.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 16)
	n, err = b.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestFDEOF(t *testing.T) {
	a, b := socketPair(t)
	require.NoError(t, a.Close())
	n, err := b.Read(make([]byte, 8))
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
}

func TestFDNonBlockingRead(t *testing.T) {
	a, _ := socketPair(t)
	require.NoError(t, unix.SetNonblock(a.Fd(), true))
	n, err := a.Read(make([]byte, 8))
	require.Zero(t, n)
	require.ErrorIs(t, err, ErrWouldBlock)
	require.True(t, IsWouldBlock(err))
}

func TestFDCloseTwice(t *testing.T) {
	a, _ := socketPair(t)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestNewFDInvalid(t *testing.T) {
	_, err := NewFD(-1)
	require.Error(t, err)

	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	require.NoError(t, unix.Close(fds[0]))
	require.NoError(t, unix.Close(fds[1]))
	_, err = NewFD(fds[0])
	require.ErrorIs(t, err, unix.EBADF)
}
