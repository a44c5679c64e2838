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

package capi

import (
	"errors"
	"io"

	"github.com/Jigsaw-Code/outline-ssl/internal/handle"
	"github.com/Jigsaw-Code/outline-ssl/ssl"
	"github.com/Jigsaw-Code/outline-ssl/transport"
)

// connEntry is the object behind a connection handle. The context and cipher
// handles it hands out are owned by the connection and freed with it.
type connEntry struct {
	conn   *ssl.Conn
	ctx    handle.Handle
	cipher handle.Handle
}

// attachedFD returns the descriptor of the attached transport, or -1.
func (c *connEntry) attachedFD() int {
	if fd, ok := c.conn.Transport().(*transport.FD); ok {
		return fd.Fd()
	}
	return -1
}

func (lib *Library) releaseOwned(h *handle.Handle) {
	if *h != 0 {
		// The caller may have freed it already.
		_ = lib.handles.Release(*h)
		*h = 0
	}
}

// SSLNew creates a connection from a context handle.
func (lib *Library) SSLNew(ctx handle.Handle) handle.Handle {
	return withContext(lib, ctx, 0, func(ctx *ssl.Context) (handle.Handle, error) {
		return lib.handles.Register(&connEntry{conn: ssl.NewConn(ctx)}), nil
	})
}

// SSLFree closes the connection and its transport, and frees every handle it
// owns.
func (lib *Library) SSLFree(h handle.Handle) {
	withConn(lib, h, struct{}{}, func(c *connEntry) (struct{}, error) {
		if err := lib.handles.Release(h); err != nil {
			return struct{}{}, err
		}
		lib.releaseOwned(&c.ctx)
		lib.releaseOwned(&c.cipher)
		if fd := c.attachedFD(); fd >= 0 {
			lib.fds.release(fd, h)
		}
		if err := c.conn.Close(); err != nil {
			lib.log.Debug("Failed to close connection", "err", err)
		}
		return struct{}{}, nil
	})
}

// GetSSLCTX returns a handle to the connection's context. The handle stays
// valid until the connection is freed, even if the original context handle is
// freed first.
func (lib *Library) GetSSLCTX(h handle.Handle) handle.Handle {
	return withConn(lib, h, 0, func(c *connEntry) (handle.Handle, error) {
		if c.ctx != 0 {
			if _, err := handle.Lookup[*ssl.Context](lib.handles, c.ctx); err == nil {
				return c.ctx, nil
			}
		}
		c.ctx = lib.handles.Register(c.conn.Context())
		return c.ctx, nil
	})
}

// SetSSLCTX moves the connection to another context. It returns ctx.
func (lib *Library) SetSSLCTX(h, ctx handle.Handle) handle.Handle {
	return withConn(lib, h, 0, func(c *connEntry) (handle.Handle, error) {
		next, err := handle.Lookup[*ssl.Context](lib.handles, ctx)
		if err != nil {
			return 0, err
		}
		c.conn.SetContext(next)
		lib.releaseOwned(&c.ctx)
		return ctx, nil
	})
}

// SetTLSExtHostName sets the server name for SNI and certificate
// verification.
func (lib *Library) SetTLSExtHostName(h handle.Handle, name *string) int {
	return withConn(lib, h, ResultFailure, func(c *connEntry) (int, error) {
		if name == nil {
			return ResultFailure, ssl.NewError(ssl.CodeBadFuncArg, errors.New("null host name"))
		}
		if err := c.conn.SetHostname(*name); err != nil {
			return ResultFailure, err
		}
		return ResultSuccess, nil
	})
}

// SetFD attaches the connected socket fd, taking ownership of it. A
// descriptor can be attached to only one connection at a time.
func (lib *Library) SetFD(h handle.Handle, fd int) int {
	return withConn(lib, h, ResultFailure, func(c *connEntry) (int, error) {
		prev := c.attachedFD()
		if prev == fd {
			return ResultSuccess, nil
		}
		if err := lib.fds.claim(fd, h); err != nil {
			return ResultFailure, err
		}
		t, err := transport.NewFD(fd)
		if err != nil {
			lib.fds.release(fd, h)
			return ResultFailure, ssl.NewError(ssl.CodeBadFuncArg, err)
		}
		if err := c.conn.SetTransport(t); err != nil {
			lib.fds.release(fd, h)
			return ResultFailure, err
		}
		if prev >= 0 {
			// SetTransport closed it.
			lib.fds.release(prev, h)
		}
		return ResultSuccess, nil
	})
}

// GetFD returns the attached file descriptor, or -1.
func (lib *Library) GetFD(h handle.Handle) int {
	return withConn(lib, h, -1, func(c *connEntry) (int, error) {
		fd := c.attachedFD()
		if fd < 0 {
			return -1, ssl.NewError(ssl.CodeBadFuncArg, errors.New("no file descriptor attached"))
		}
		return fd, nil
	})
}

func (lib *Library) SetConnectState(h handle.Handle) {
	withConn(lib, h, struct{}{}, func(c *connEntry) (struct{}, error) {
		c.conn.SetConnectState()
		return struct{}{}, nil
	})
}

func (lib *Library) SetAcceptState(h handle.Handle) {
	withConn(lib, h, struct{}{}, func(c *connEntry) (struct{}, error) {
		c.conn.SetAcceptState()
		return struct{}{}, nil
	})
}

// handshakeResult maps the outcome of a handshake call to its return value.
func handshakeResult(err error) (int, error) {
	if err == nil {
		return ResultSuccess, nil
	}
	if ssl.CodeOf(err).IsTransient() {
		return ResultError, nil
	}
	return ResultFailure, err
}

// DoHandshake runs the handshake for the role set with [Library.SetConnectState]
// or [Library.SetAcceptState].
func (lib *Library) DoHandshake(h handle.Handle) int {
	return withConn(lib, h, ResultFailure, func(c *connEntry) (int, error) {
		return handshakeResult(c.conn.Handshake())
	})
}

// Connect runs a client handshake. It returns [ResultError] when a
// non-blocking socket is not ready.
func (lib *Library) Connect(h handle.Handle) int {
	return withConn(lib, h, ResultFailure, func(c *connEntry) (int, error) {
		return handshakeResult(c.conn.Connect())
	})
}

// Accept runs a server handshake. It returns [ResultError] when a
// non-blocking socket is not ready.
func (lib *Library) Accept(h handle.Handle) int {
	return withConn(lib, h, ResultFailure, func(c *connEntry) (int, error) {
		return handshakeResult(c.conn.Accept())
	})
}

// ioResult maps the outcome of a read or write to its return value: the byte
// count, 0 at end of stream, or [ResultError] when the call should be retried.
func ioResult(n int, err error) (int, error) {
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		return 0, nil
	case ssl.CodeOf(err).IsTransient():
		return ResultError, nil
	}
	return ResultFailure, err
}

// Read reads decrypted data into buf. A nil buf stands for a null pointer.
func (lib *Library) Read(h handle.Handle, buf []byte) int {
	return withConn(lib, h, ResultFailure, func(c *connEntry) (int, error) {
		if buf == nil {
			return ResultFailure, ssl.NewError(ssl.CodeBadFuncArg, errors.New("null buffer"))
		}
		return ioResult(c.conn.Read(buf))
	})
}

// Write encrypts and sends buf. A nil buf stands for a null pointer.
func (lib *Library) Write(h handle.Handle, buf []byte) int {
	return withConn(lib, h, ResultFailure, func(c *connEntry) (int, error) {
		if buf == nil {
			return ResultFailure, ssl.NewError(ssl.CodeBadFuncArg, errors.New("null buffer"))
		}
		return ioResult(c.conn.Write(buf))
	})
}

// Shutdown sends close_notify without waiting for the peer's.
func (lib *Library) Shutdown(h handle.Handle) int {
	return withConn(lib, h, ResultFailure, func(c *connEntry) (int, error) {
		if err := c.conn.Shutdown(); err != nil {
			return ResultFailure, err
		}
		return ResultSuccess, nil
	})
}

// GetError returns the error code of the last call on the connection, given
// that call's return value.
func (lib *Library) GetError(h handle.Handle, ret int) int {
	return withConn(lib, h, ResultFailure, func(c *connEntry) (int, error) {
		return int(c.conn.LastError(ret)), nil
	})
}

// GetVersion returns the negotiated protocol, "TLS1.2" or "TLS1.3".
func (lib *Library) GetVersion(h handle.Handle) string {
	return withConn(lib, h, "", func(c *connEntry) (string, error) {
		v, err := c.conn.ProtocolVersion()
		if err != nil {
			return "", err
		}
		return versionName(v), nil
	})
}

// SessionReused returns 1 if the handshake resumed a cached session.
func (lib *Library) SessionReused(h handle.Handle) int {
	return withConn(lib, h, ResultFailure, func(c *connEntry) (int, error) {
		resumed, err := c.conn.DidResume()
		if err != nil {
			return ResultFailure, err
		}
		if resumed {
			return 1, nil
		}
		return 0, nil
	})
}
