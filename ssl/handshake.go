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
	"errors"
	"io"

	"github.com/Jigsaw-Code/outline-ssl/ssl/engine"
	"github.com/Jigsaw-Code/outline-ssl/transport"
)

type handshakeState int

const (
	stateHandshaking handshakeState = iota
	stateComplete
	stateFailed
)

func (s handshakeState) String() string {
	switch s {
	case stateHandshaking:
		return "handshaking"
	case stateComplete:
		return "complete"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// transportError maps a transport failure. Would-block becomes the retry code
// for the direction that blocked.
func transportError(err error, retry Code) *Error {
	if transport.IsWouldBlock(err) {
		return NewError(retry, err)
	}
	return NewError(CodeOf(err), err)
}

// writePending writes every pending record to w.
func writePending(s engine.Session, w io.Writer) (int, error) {
	total := 0
	for s.WantsWrite() {
		n, err := s.WriteTLS(w)
		total += n
		if err != nil {
			return total, transportError(err, CodeWantWrite)
		}
	}
	return total, nil
}

// completeIO moves records between s and rw. With untilHandshaked it returns
// once the handshake completes and its final flight has been written. Otherwise
// it only flushes pending records and never reads.
func completeIO(s engine.Session, rw io.ReadWriter, untilHandshaked bool) (rdlen, wrlen int, err error) {
	state := stateHandshaking
	if !s.IsHandshaking() {
		state = stateComplete
	}
	eof := false
	for {
		n, err := writePending(s, rw)
		wrlen += n
		if err != nil {
			return rdlen, wrlen, err
		}
		if !untilHandshaked || state == stateComplete {
			return rdlen, wrlen, nil
		}

		if !eof && s.WantsRead() {
			n, err := s.ReadTLS(rw)
			if err != nil {
				return rdlen, wrlen, transportError(err, CodeWantRead)
			}
			if n == 0 {
				eof = true
			} else {
				rdlen += n
				if err := s.ProcessNewPackets(); err != nil {
					// Best effort: the peer should learn why we are giving up.
					_, _ = writePending(s, rw)
					return rdlen, wrlen, AsError(err)
				}
			}
		}

		switch {
		case !s.IsHandshaking():
			// Loop once more to flush the final flight.
			state = stateComplete
		case eof:
			return rdlen, wrlen, NewError(CodeIOUnexpectedEOF, io.ErrUnexpectedEOF)
		case !s.WantsRead() && !s.WantsWrite():
			return rdlen, wrlen, NewError(CodeTLSGeneral, errors.New("handshake stalled"))
		}
	}
}
