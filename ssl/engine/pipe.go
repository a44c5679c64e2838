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

package engine

import (
	"bytes"
	"io"
	"net"
	"sync"
	"time"
)

// pipe is the [net.Conn] the TLS engine runs over. Inbound ciphertext is fed by
// the caller, outbound ciphertext accumulates until drained.
// A Read with nothing buffered parks the engine instead of blocking.
type pipe struct {
	park func()

	mu     sync.Mutex
	in     bytes.Buffer
	out    bytes.Buffer
	closed bool
}

var _ net.Conn = (*pipe)(nil)

func (p *pipe) Read(b []byte) (int, error) {
	for {
		p.mu.Lock()
		if p.in.Len() > 0 {
			n, _ := p.in.Read(b)
			p.mu.Unlock()
			return n, nil
		}
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return 0, ErrClosed
		}
		p.park()
	}
}

func (p *pipe) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	return p.out.Write(b)
}

func (p *pipe) Close() error {
	p.close()
	return nil
}

func (p *pipe) feed(b []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.in.Write(b)
}

func (p *pipe) drain(w io.Writer) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.out.Len() == 0 {
		return 0, nil
	}
	n, err := w.Write(p.out.Bytes())
	if n > 0 {
		p.out.Next(n)
	}
	if n == 0 && err == nil {
		err = io.ErrShortWrite
	}
	return n, err
}

func (p *pipe) pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Len()
}

func (p *pipe) buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.in.Len()
}

func (p *pipe) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func (p *pipe) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type pipeAddr struct{}

func (pipeAddr) Network() string { return "pipe" }
func (pipeAddr) String() string  { return "pipe" }

func (p *pipe) LocalAddr() net.Addr                { return pipeAddr{} }
func (p *pipe) RemoteAddr() net.Addr               { return pipeAddr{} }
func (p *pipe) SetDeadline(t time.Time) error      { return nil }
func (p *pipe) SetReadDeadline(t time.Time) error  { return nil }
func (p *pipe) SetWriteDeadline(t time.Time) error { return nil }
