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

package ssl

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/Jigsaw-Code/outline-ssl/ssl/engine"
	"github.com/Jigsaw-Code/outline-ssl/transport"
	"github.com/stretchr/testify/require"
)

// scriptedSession completes its handshake after reading `needed` bytes, and
// queues `reply` once it has processed its first input.
type scriptedSession struct {
	handshaking bool
	needed      int
	received    bytes.Buffer
	pending     bytes.Buffer
	reply       []byte
	final       []byte
	processErr  error
	alert       []byte
	reads       int
}

var _ engine.Session = (*scriptedSession)(nil)

func (s *scriptedSession) Read(p []byte) (int, error)  { return 0, nil }
func (s *scriptedSession) Write(p []byte) (int, error) { return s.pending.Write(p) }
func (s *scriptedSession) Flush() error                { return nil }

func (s *scriptedSession) ReadTLS(r io.Reader) (int, error) {
	s.reads++
	buf := make([]byte, 4)
	n, err := r.Read(buf)
	s.received.Write(buf[:n])
	if errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

func (s *scriptedSession) WriteTLS(w io.Writer) (int, error) {
	n, err := w.Write(s.pending.Bytes())
	s.pending.Next(n)
	return n, err
}

func (s *scriptedSession) WantsRead() bool  { return true }
func (s *scriptedSession) WantsWrite() bool { return s.pending.Len() > 0 }
func (s *scriptedSession) IsHandshaking() bool {
	return s.handshaking
}

func (s *scriptedSession) ProcessNewPackets() error {
	if s.processErr != nil {
		s.pending.Write(s.alert)
		return s.processErr
	}
	if s.reply != nil {
		s.pending.Write(s.reply)
		s.reply = nil
	}
	if s.received.Len() >= s.needed {
		s.handshaking = false
		s.pending.Write(s.final)
	}
	return nil
}

func (s *scriptedSession) NegotiatedCipherSuite() (uint16, bool) { return 0, !s.handshaking }
func (s *scriptedSession) ProtocolVersion() (uint16, bool)       { return 0, !s.handshaking }
func (s *scriptedSession) DidResume() bool                       { return false }
func (s *scriptedSession) ReceivedCloseNotify() bool             { return false }
func (s *scriptedSession) SendCloseNotify() error                { return nil }
func (s *scriptedSession) Close() error                          { return nil }

type fakeWire struct {
	in  *bytes.Reader
	out bytes.Buffer
}

func (w *fakeWire) Read(p []byte) (int, error)  { return w.in.Read(p) }
func (w *fakeWire) Write(p []byte) (int, error) { return w.out.Write(p) }

type blockingWire struct{}

func (blockingWire) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("%w: test", transport.ErrWouldBlock)
}
func (blockingWire) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("%w: test", transport.ErrWouldBlock)
}

func TestCompleteIOHandshake(t *testing.T) {
	s := &scriptedSession{handshaking: true, needed: 8, final: []byte("fin")}
	s.pending.WriteString("hello")
	wire := &fakeWire{in: bytes.NewReader([]byte("serverhi"))}

	rd, wr, err := completeIO(s, wire, true)
	require.NoError(t, err)
	require.Equal(t, 8, rd)
	// The final flight is flushed before returning.
	require.Equal(t, 8, wr)
	require.Equal(t, "hellofin", wire.out.String())
	require.False(t, s.IsHandshaking())
}

func TestCompleteIOFlushOnly(t *testing.T) {
	s := &scriptedSession{}
	s.pending.WriteString("data")
	wire := &fakeWire{in: bytes.NewReader([]byte("unread"))}

	rd, wr, err := completeIO(s, wire, false)
	require.NoError(t, err)
	require.Zero(t, rd)
	require.Equal(t, 4, wr)
	require.Zero(t, s.reads)

	// Nothing pending: returns without reading.
	_, wr, err = completeIO(s, wire, false)
	require.NoError(t, err)
	require.Zero(t, wr)
	require.Zero(t, s.reads)
}

func TestCompleteIOUnexpectedEOF(t *testing.T) {
	s := &scriptedSession{handshaking: true, needed: 100}
	wire := &fakeWire{in: bytes.NewReader([]byte("short"))}
	_, _, err := completeIO(s, wire, true)
	require.Equal(t, CodeIOUnexpectedEOF, CodeOf(err))
}

func TestCompleteIODrainsAlertOnError(t *testing.T) {
	s := &scriptedSession{
		handshaking: true,
		needed:      4,
		processErr:  errors.New("tls: bad record MAC"),
		alert:       []byte("ALERT"),
	}
	wire := &fakeWire{in: bytes.NewReader([]byte("junk"))}
	_, _, err := completeIO(s, wire, true)
	require.Equal(t, CodeTLSDecryptError, CodeOf(err))
	require.Equal(t, "ALERT", wire.out.String())
}

func TestCompleteIOWouldBlock(t *testing.T) {
	s := &scriptedSession{handshaking: true, needed: 4}
	_, _, err := completeIO(s, blockingWire{}, true)
	require.Equal(t, CodeWantRead, CodeOf(err))

	s.pending.WriteString("hello")
	_, _, err = completeIO(s, blockingWire{}, true)
	require.Equal(t, CodeWantWrite, CodeOf(err))
}

func TestHandshakeStateString(t *testing.T) {
	require.Equal(t, "handshaking", stateHandshaking.String())
	require.Equal(t, "complete", stateComplete.String())
	require.Equal(t, "failed", stateFailed.String())
}
