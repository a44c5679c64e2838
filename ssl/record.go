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
)

func (c *Conn) requireIO() error {
	if c.session == nil {
		return NewError(CodeBadFuncArg, errors.New("no TLS session"))
	}
	if c.transport == nil {
		return NewError(CodeBadFuncArg, errors.New("no transport attached"))
	}
	return nil
}

// fail records err as the last error and returns it.
func (c *Conn) fail(err *Error) error {
	c.lastErr = err.Code
	return err
}

// Read reads decrypted application data into p.
//
// It returns io.EOF both when the peer sent close_notify, in which case
// LastError reports [CodeZeroReturn], and when the transport ended without one,
// in which case [Conn.EOF] is true. On a non-blocking transport it may fail
// with [CodeWantRead] or [CodeWantWrite].
func (c *Conn) Read(p []byte) (int, error) {
	if err := c.requireIO(); err != nil {
		return 0, err
	}
	s := c.session
	for {
		if c.lastErr.IsTransient() {
			c.lastErr = CodeNone
		}
		n, err := s.Read(p)
		if err != nil {
			return 0, c.fail(AsError(err))
		}
		if n > 0 {
			c.lastErr = CodeNone
			return n, nil
		}
		if len(p) == 0 {
			return 0, nil
		}

		switch {
		case s.WantsWrite():
			if _, err := writePending(s, c.transport); err != nil {
				return 0, c.fail(AsError(err))
			}
		case s.WantsRead():
			n, err := s.ReadTLS(c.transport)
			if err != nil {
				return 0, c.fail(transportError(err, CodeWantRead))
			}
			if n == 0 {
				if s.IsHandshaking() {
					return 0, c.fail(NewError(CodeIOUnexpectedEOF, io.ErrUnexpectedEOF))
				}
				c.eof = true
				return 0, io.EOF
			}
			if err := s.ProcessNewPackets(); err != nil {
				_, _ = writePending(s, c.transport)
				return 0, c.fail(AsError(err))
			}
		case s.ReceivedCloseNotify():
			c.lastErr = CodeZeroReturn
			return 0, io.EOF
		default:
			return 0, c.fail(NewError(CodeTLSGeneral, errors.New("session ended without close_notify")))
		}
	}
}

// Write encrypts p and writes it to the transport. If the transport would
// block after p was accepted, Write still reports len(p) and LastError reports
// [CodeWantWrite]; the records are written by the next Write, Flush or Read.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.requireIO(); err != nil {
		return 0, err
	}
	if c.lastErr.IsTransient() {
		c.lastErr = CodeNone
	}
	n, err := c.session.Write(p)
	if err != nil {
		return 0, c.fail(AsError(err))
	}
	if _, _, err := completeIO(c.session, c.transport, false); err != nil {
		e := AsError(err)
		if e.Code.IsTransient() && n > 0 {
			c.lastErr = e.Code
			return n, nil
		}
		return n, c.fail(e)
	}
	return n, nil
}

// Flush writes any pending records to the transport.
func (c *Conn) Flush() error {
	if err := c.requireIO(); err != nil {
		return err
	}
	if err := c.session.Flush(); err != nil {
		return c.fail(AsError(err))
	}
	if _, _, err := completeIO(c.session, c.transport, false); err != nil {
		return c.fail(AsError(err))
	}
	return nil
}

// Shutdown sends close_notify to the peer without waiting for its reply.
func (c *Conn) Shutdown() error {
	if err := c.requireSession(); err != nil {
		return err
	}
	if err := c.session.SendCloseNotify(); err != nil {
		return c.fail(AsError(err))
	}
	if c.transport == nil {
		return nil
	}
	if _, _, err := completeIO(c.session, c.transport, false); err != nil {
		// The alert stays queued. There is nothing else to wait for.
		c.log.Debug("Failed to flush close_notify", "err", err)
	}
	return nil
}
