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
Package engine exposes a TLS protocol engine as a [Session] that never performs I/O itself.

Ciphertext is moved in and out explicitly with [Session.ReadTLS] and
[Session.WriteTLS], and [Session.ProcessNewPackets] advances the protocol state
machine over whatever has been fed in. Plaintext is exchanged with
[Session.Read] and [Session.Write]. This lets the caller decide how to block,
retry, or give up on the transport.

The implementation runs [crypto/tls] over an in-memory pipe. Its goroutine only
runs while the caller is inside a Session method, so a Session behaves as if it
were single-threaded.
*/
package engine

import (
	"errors"
	"io"
)

var (
	// ErrPanic wraps a panic recovered inside the engine.
	ErrPanic = errors.New("panic in TLS engine")
	// ErrHandshakeNotComplete is returned by operations that need an established session.
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrClosed is returned after [Session.Close].
	ErrClosed = errors.New("session closed")
)

// Session is a TLS endpoint that exchanges bytes through explicit calls.
type Session interface {
	// Read copies decrypted application data into p. It returns 0 and no error
	// when no data is buffered, or the error that stopped the session once
	// buffered data is exhausted.
	Read(p []byte) (int, error)
	// Write encrypts p into pending records. It fails before the handshake completes.
	Write(p []byte) (int, error)
	// Flush pushes any buffered plaintext into pending records.
	Flush() error

	// ReadTLS reads one chunk of ciphertext from r. A return of 0 and no error
	// means r reached EOF.
	ReadTLS(r io.Reader) (int, error)
	// WriteTLS writes pending records to w with a single Write call.
	WriteTLS(w io.Writer) (int, error)
	// WantsRead reports whether the engine can make use of more ciphertext.
	WantsRead() bool
	// WantsWrite reports whether there are pending records to write.
	WantsWrite() bool
	// IsHandshaking reports whether the handshake has not completed yet.
	IsHandshaking() bool
	// ProcessNewPackets processes the ciphertext fed with ReadTLS. Errors are
	// fatal and sticky. Pending records, such as alerts, may still be written.
	ProcessNewPackets() error

	// NegotiatedCipherSuite returns the IANA cipher suite ID, if negotiated.
	NegotiatedCipherSuite() (uint16, bool)
	// ProtocolVersion returns the negotiated protocol version, if negotiated.
	ProtocolVersion() (uint16, bool)
	// DidResume reports whether the session was resumed from an earlier one.
	DidResume() bool
	// ReceivedCloseNotify reports whether the peer closed the session with a
	// close_notify alert.
	ReceivedCloseNotify() bool

	// SendCloseNotify queues a close_notify alert.
	SendCloseNotify() error
	// Close releases the engine. The session cannot be used afterwards.
	Close() error
}
