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

/*
Package transport has the byte streams that carry TLS records for a connection.

A [Stream] may be blocking or non-blocking. A non-blocking stream reports that
it cannot make progress with an error that matches [ErrWouldBlock], and the
caller is expected to retry the same operation later.

Use [NewFD] to attach a caller-owned socket descriptor, keeping whatever
blocking mode the descriptor already has, and [NewConnStream] to attach a
[net.Conn].
*/
package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
)

// Stream is a bidirectional byte stream. Closing it releases the underlying resource.
type Stream interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrWouldBlock is matched by errors of non-blocking streams that cannot make
// progress without waiting.
var ErrWouldBlock = errors.New("operation would block")

// IsWouldBlock reports whether err means the operation should be retried once
// the stream is ready.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock) || errors.Is(err, syscall.EAGAIN) || errors.Is(err, os.ErrDeadlineExceeded)
}

func wouldBlock(err error) error {
	return fmt.Errorf("%w: %w", ErrWouldBlock, err)
}

// ConnStream adapts a [net.Conn] to a [Stream]. Deadline expiry is reported as
// [ErrWouldBlock], so a caller can emulate non-blocking I/O with deadlines.
type ConnStream struct {
	conn net.Conn
}

var _ Stream = (*ConnStream)(nil)

// NewConnStream returns a [Stream] that reads from and writes to conn.
func NewConnStream(conn net.Conn) *ConnStream {
	return &ConnStream{conn: conn}
}

// Conn returns the wrapped connection.
func (s *ConnStream) Conn() net.Conn {
	return s.conn
}

func (s *ConnStream) Read(p []byte) (int, error) {
	n, err := s.conn.Read(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		err = wouldBlock(err)
	}
	return n, err
}

func (s *ConnStream) Write(p []byte) (int, error) {
	n, err := s.conn.Write(p)
	if err != nil && errors.Is(err, os.ErrDeadlineExceeded) {
		err = wouldBlock(err)
	}
	return n, err
}

func (s *ConnStream) Close() error {
	return s.conn.Close()
}
