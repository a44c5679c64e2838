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
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"sync"
)

const (
	maxPlaintext = 16 * 1024
	// Largest TLS record: header plus maximum ciphertext expansion.
	maxRecord = 5 + maxPlaintext + 2048
)

// tlsSession drives a [tls.Conn] from a dedicated goroutine that runs in
// lockstep with the caller. The goroutine is resumed by step and parks itself
// when it needs ciphertext that has not been fed yet.
//
// Fields below the channels are only touched by whichever side currently runs,
// and the channel handoff orders those accesses.
type tlsSession struct {
	conn *tls.Conn
	pipe *pipe

	resume chan struct{}
	yield  chan struct{}

	done        bool
	err         error
	handshaking bool
	peerClosed  bool
	state       tls.ConnectionState

	plainMu   sync.Mutex
	plaintext bytes.Buffer

	readBuf []byte
}

var _ Session = (*tlsSession)(nil)

// NewClient starts a client handshake. The ClientHello is pending when it returns.
func NewClient(cfg *tls.Config) (Session, error) {
	return start(cfg, true)
}

// NewServer starts a server handshake, waiting for a ClientHello.
func NewServer(cfg *tls.Config) (Session, error) {
	return start(cfg, false)
}

func start(cfg *tls.Config, isClient bool) (Session, error) {
	if cfg == nil {
		return nil, errors.New("nil TLS config")
	}
	s := &tlsSession{
		resume:      make(chan struct{}),
		yield:       make(chan struct{}),
		handshaking: true,
	}
	s.pipe = &pipe{park: s.park}
	if isClient {
		s.conn = tls.Client(s.pipe, cfg)
	} else {
		s.conn = tls.Server(s.pipe, cfg)
	}
	go s.run()
	s.step()
	if s.done && s.err != nil {
		return nil, s.err
	}
	return s, nil
}

// step hands control to the engine goroutine until it parks or exits.
func (s *tlsSession) step() {
	s.resume <- struct{}{}
	<-s.yield
}

// park hands control back to the caller. Runs on the engine goroutine.
func (s *tlsSession) park() {
	s.yield <- struct{}{}
	<-s.resume
}

func (s *tlsSession) run() {
	defer func() {
		if r := recover(); r != nil {
			s.err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
		s.done = true
		s.yield <- struct{}{}
	}()
	<-s.resume

	if err := s.conn.Handshake(); err != nil {
		s.err = err
		return
	}
	// ConnectionState takes the handshake lock, so it must be read here.
	s.state = s.conn.ConnectionState()
	s.handshaking = false

	buf := make([]byte, maxPlaintext)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.plainMu.Lock()
			s.plaintext.Write(buf[:n])
			s.plainMu.Unlock()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.peerClosed = true
			} else {
				s.err = err
			}
			return
		}
	}
}

func (s *tlsSession) Read(p []byte) (int, error) {
	s.plainMu.Lock()
	defer s.plainMu.Unlock()
	if s.plaintext.Len() == 0 {
		return 0, s.err
	}
	return s.plaintext.Read(p)
}

func (s *tlsSession) Write(p []byte) (int, error) {
	if s.handshaking {
		return 0, ErrHandshakeNotComplete
	}
	if s.pipe.isClosed() {
		return 0, ErrClosed
	}
	return s.conn.Write(p)
}

// Flush is a no-op: [tls.Conn.Write] seals records immediately.
func (s *tlsSession) Flush() error {
	return nil
}

func (s *tlsSession) ReadTLS(r io.Reader) (int, error) {
	if s.readBuf == nil {
		s.readBuf = make([]byte, maxRecord)
	}
	n, err := r.Read(s.readBuf)
	if n > 0 {
		s.pipe.feed(s.readBuf[:n])
	}
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

func (s *tlsSession) WriteTLS(w io.Writer) (int, error) {
	return s.pipe.drain(w)
}

func (s *tlsSession) WantsRead() bool {
	return !s.done
}

func (s *tlsSession) WantsWrite() bool {
	return s.pipe.pending() > 0
}

func (s *tlsSession) IsHandshaking() bool {
	return s.handshaking
}

func (s *tlsSession) ProcessNewPackets() error {
	if !s.done && s.pipe.buffered() > 0 {
		s.step()
	}
	return s.err
}

func (s *tlsSession) NegotiatedCipherSuite() (uint16, bool) {
	if s.handshaking {
		return 0, false
	}
	return s.state.CipherSuite, true
}

func (s *tlsSession) ProtocolVersion() (uint16, bool) {
	if s.handshaking {
		return 0, false
	}
	return s.state.Version, true
}

func (s *tlsSession) DidResume() bool {
	return !s.handshaking && s.state.DidResume
}

func (s *tlsSession) ReceivedCloseNotify() bool {
	return s.peerClosed
}

func (s *tlsSession) SendCloseNotify() error {
	if s.handshaking {
		return ErrHandshakeNotComplete
	}
	return s.conn.CloseWrite()
}

func (s *tlsSession) Close() error {
	if s.pipe.isClosed() {
		return nil
	}
	s.pipe.close()
	if !s.done {
		// Let the engine observe the closed pipe and exit.
		s.step()
	}
	return nil
}
