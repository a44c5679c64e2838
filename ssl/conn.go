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
	"log/slog"
	"sync"

	"github.com/Jigsaw-Code/outline-ssl/ssl/engine"
	"github.com/Jigsaw-Code/outline-ssl/transport"
)

type role int

const (
	roleUnset role = iota
	roleClient
	roleServer
)

func (r role) String() string {
	switch r {
	case roleClient:
		return "client"
	case roleServer:
		return "server"
	}
	return "unset"
}

// Conn is a TLS connection over a caller-supplied [transport.Stream].
//
// A Conn is not safe for concurrent use. Callers that share it across threads
// claim it with [Conn.TryAcquire] around each call.
type Conn struct {
	busy sync.Mutex

	ctx       *Context
	config    *contextConfig
	hostname  string
	transport transport.Stream
	role      role
	state     handshakeState

	// pending is a session whose handshake stopped on a non-blocking transport.
	pending engine.Session
	session engine.Session

	lastErr Code
	eof     bool
	log     *slog.Logger
}

// NewConn creates a connection configured from a snapshot of ctx.
func NewConn(ctx *Context) *Conn {
	return &Conn{
		ctx:    ctx,
		config: ctx.snapshot(),
		log:    ctx.logger,
	}
}

// TryAcquire claims exclusive use of c. It returns false if c is in use.
func (c *Conn) TryAcquire() bool {
	return c.busy.TryLock()
}

// Release ends a claim made with [Conn.TryAcquire].
func (c *Conn) Release() {
	c.busy.Unlock()
}

// Context returns the context the connection is attached to.
func (c *Conn) Context() *Context {
	return c.ctx
}

// SetContext attaches c to ctx and takes a new configuration snapshot. A session
// that already exists keeps its configuration.
func (c *Conn) SetContext(ctx *Context) {
	c.ctx = ctx
	c.config = ctx.snapshot()
	c.log = ctx.logger
}

// SetHostname sets the server name used for SNI and certificate verification.
func (c *Conn) SetHostname(name string) error {
	if err := validateHostname(name); err != nil {
		return NewError(CodeBadFuncArg, err)
	}
	c.hostname = name
	return nil
}

// Hostname returns the server name, or "" if unset.
func (c *Conn) Hostname() string {
	return c.hostname
}

// SetTransport attaches t, closing any transport attached before.
func (c *Conn) SetTransport(t transport.Stream) error {
	if t == nil {
		return NewError(CodeBadFuncArg, errors.New("nil transport"))
	}
	if c.transport != nil && c.transport != t {
		if err := c.transport.Close(); err != nil {
			c.log.Debug("Failed to close replaced transport", "err", err)
		}
	}
	c.transport = t
	return nil
}

// Transport returns the attached transport, or nil.
func (c *Conn) Transport() transport.Stream {
	return c.transport
}

// SetConnectState makes [Conn.Handshake] act as a client.
func (c *Conn) SetConnectState() {
	c.role = roleClient
}

// SetAcceptState makes [Conn.Handshake] act as a server.
func (c *Conn) SetAcceptState() {
	c.role = roleServer
}

// Handshake runs [Conn.Connect] or [Conn.Accept] according to the role set.
func (c *Conn) Handshake() error {
	switch c.role {
	case roleClient:
		return c.Connect()
	case roleServer:
		return c.Accept()
	}
	return NewError(CodeBadFuncArg, errors.New("connection role not set"))
}

// Connect performs a client handshake. On a non-blocking transport it may fail
// with [CodeWantRead] or [CodeWantWrite], and should be called again once the
// transport is ready.
func (c *Conn) Connect() error {
	if err := c.checkRestart(); err != nil {
		return err
	}
	c.role = roleClient
	if c.session != nil {
		return nil
	}
	if c.pending == nil {
		if c.hostname == "" {
			return NewError(CodeBadFuncArg, errors.New("no hostname set"))
		}
		if c.transport == nil {
			return NewError(CodeBadFuncArg, errors.New("no transport attached"))
		}
		s, err := engine.NewClient(c.config.clientTLSConfig(c.hostname, c.ctx.clientCache))
		if err != nil {
			return c.failHandshake(AsError(err))
		}
		c.pending = s
	}
	return c.finishHandshake()
}

// Accept performs a server handshake. See [Conn.Connect] for non-blocking use.
func (c *Conn) Accept() error {
	if err := c.checkRestart(); err != nil {
		return err
	}
	c.role = roleServer
	if c.session != nil {
		return nil
	}
	if c.pending == nil {
		if c.transport == nil {
			return NewError(CodeBadFuncArg, errors.New("no transport attached"))
		}
		s, err := engine.NewServer(c.config.serverTLSConfig(c.ctx.serverCache))
		if err != nil {
			return c.failHandshake(AsError(err))
		}
		c.pending = s
	}
	return c.finishHandshake()
}

// checkRestart rejects a new handshake once one has failed. The transport may
// hold a partial flight, so the connection cannot be reused.
func (c *Conn) checkRestart() error {
	if c.state == stateFailed {
		return NewError(CodeBadFuncArg, errors.New("handshake already failed on this connection"))
	}
	return nil
}

func (c *Conn) finishHandshake() error {
	c.state = stateHandshaking
	_, _, err := completeIO(c.pending, c.transport, true)
	if err != nil {
		e := AsError(err)
		if e.Code.IsTransient() {
			c.lastErr = e.Code
			return e
		}
		c.pending.Close()
		c.pending = nil
		return c.failHandshake(e)
	}
	c.session, c.pending = c.pending, nil
	c.state = stateComplete
	c.lastErr = CodeNone
	version, _ := c.session.ProtocolVersion()
	suite, _ := c.session.NegotiatedCipherSuite()
	c.log.Debug("TLS handshake complete", "role", c.role, "version", Version(version),
		"cipher", Cipher{suite}.Name(), "resumed", c.session.DidResume())
	return nil
}

func (c *Conn) failHandshake(e *Error) error {
	c.state = stateFailed
	c.lastErr = e.Code
	c.log.Debug("TLS handshake failed", "role", c.role, "code", e.Code, "site", e.Site, "err", e.Err)
	return e
}

// LastError returns the error of the last operation, given its C return value.
func (c *Conn) LastError(ret int) Code {
	if ret > 0 {
		return CodeNone
	}
	return c.lastErr
}

// EOF reports whether the transport reached end of stream after the handshake.
func (c *Conn) EOF() bool {
	return c.eof
}

func (c *Conn) requireSession() error {
	if c.session == nil {
		return NewError(CodeBadFuncArg, errors.New("no TLS session"))
	}
	return nil
}

// CurrentCipher returns the negotiated cipher suite.
func (c *Conn) CurrentCipher() (Cipher, error) {
	if err := c.requireSession(); err != nil {
		return Cipher{}, err
	}
	suite, ok := c.session.NegotiatedCipherSuite()
	if !ok {
		return Cipher{}, NewError(CodeTLSHandshakeNotComplete, nil)
	}
	return Cipher{id: suite}, nil
}

// ProtocolVersion returns the negotiated protocol version.
func (c *Conn) ProtocolVersion() (Version, error) {
	if err := c.requireSession(); err != nil {
		return 0, err
	}
	v, ok := c.session.ProtocolVersion()
	if !ok {
		return 0, NewError(CodeTLSHandshakeNotComplete, nil)
	}
	return Version(v), nil
}

// DidResume reports whether the handshake resumed a cached session.
func (c *Conn) DidResume() (bool, error) {
	if err := c.requireSession(); err != nil {
		return false, err
	}
	return c.session.DidResume(), nil
}

// Close releases the session and closes the transport.
func (c *Conn) Close() error {
	var errs []error
	for _, s := range []engine.Session{c.pending, c.session} {
		if s != nil {
			errs = append(errs, s.Close())
		}
	}
	c.pending, c.session = nil, nil
	if c.transport != nil {
		errs = append(errs, c.transport.Close())
		c.transport = nil
	}
	return errors.Join(errs...)
}
