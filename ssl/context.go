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
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Jigsaw-Code/outline-ssl/ssl/pemfile"
)

// VerifyMode controls peer certificate verification.
type VerifyMode int

const (
	// VerifyNone disables server certificate verification on clients.
	VerifyNone VerifyMode = 0
	// VerifyPeer verifies the server certificate on clients. This is the default.
	VerifyPeer VerifyMode = 1
	// VerifyFailIfNoPeerCert, combined with VerifyPeer, makes servers require
	// and verify client certificates.
	VerifyFailIfNoPeerCert VerifyMode = 2
)

// contextConfig is an immutable configuration snapshot. Mutations copy it.
type contextConfig struct {
	versions   []Version
	certs      []*x509.Certificate
	key        crypto.Signer
	identity   *tls.Certificate
	roots      *x509.CertPool
	verifyMode VerifyMode
	cacheMode  SessionCacheMode
	keyLog     io.Writer
}

// Context holds configuration shared by the connections created from it.
// It is safe for concurrent use. Connections take a snapshot of the
// configuration when created, so later changes only affect new connections.
type Context struct {
	mu     sync.Mutex
	config atomic.Pointer[contextConfig]

	clientCache *clientSessionCache
	serverCache *serverSessionCache
	logger      *slog.Logger
}

// ContextOption customizes a new [Context].
type ContextOption func(*Context)

// WithLogger sets the logger for the context and its connections.
func WithLogger(logger *slog.Logger) ContextOption {
	return func(c *Context) {
		c.logger = logger
	}
}

// NewContext creates a context restricted to the versions of m.
// The method is consumed and cannot be used again.
func NewContext(m *Method, opts ...ContextOption) (*Context, error) {
	if m == nil {
		return nil, NewError(CodeBadFuncArg, errors.New("nil method"))
	}
	if err := m.claim(); err != nil {
		return nil, err
	}
	roots, err := x509.SystemCertPool()
	if err != nil {
		roots = x509.NewCertPool()
	}
	c := &Context{
		clientCache: newClientSessionCache(clientCacheSize),
		serverCache: newServerSessionCache(serverCacheSize),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.config.Store(&contextConfig{
		versions:   m.versions,
		roots:      roots,
		verifyMode: VerifyPeer,
		cacheMode:  SessionCacheBoth,
	})
	return c, nil
}

func (c *Context) snapshot() *contextConfig {
	return c.config.Load()
}

// update applies fn to a copy of the current configuration and publishes it
// if fn succeeds.
func (c *Context) update(fn func(cfg *contextConfig) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := *c.config.Load()
	if err := fn(&next); err != nil {
		return err
	}
	c.config.Store(&next)
	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewError(CodeOf(err), err)
	}
	return data, nil
}

// newIdentity pairs the chain with the key if the key matches the leaf.
func newIdentity(certs []*x509.Certificate, key crypto.Signer) *tls.Certificate {
	if len(certs) == 0 || key == nil || !pemfile.Matches(certs[0], key) {
		return nil
	}
	id := &tls.Certificate{PrivateKey: key, Leaf: certs[0]}
	for _, cert := range certs {
		id.Certificate = append(id.Certificate, cert.Raw)
	}
	return id
}

// UseCertificateChain sets the certificate chain from PEM data, leaf first.
func (c *Context) UseCertificateChain(pemData []byte) error {
	certs, err := pemfile.ParseCertificates(pemData)
	if err != nil {
		return NewError(CodeTLSMalformedCertificate, err)
	}
	return c.update(func(cfg *contextConfig) error {
		cfg.certs = certs
		cfg.identity = newIdentity(certs, cfg.key)
		return nil
	})
}

// UseCertificateChainFile is like [Context.UseCertificateChain], reading from a file.
func (c *Context) UseCertificateChainFile(path string) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	return c.UseCertificateChain(data)
}

// UsePrivateKey sets the private key from PEM data.
func (c *Context) UsePrivateKey(pemData []byte) error {
	key, err := pemfile.ParsePrivateKey(pemData)
	if err != nil {
		return NewError(CodeTLSMalformedKey, err)
	}
	return c.update(func(cfg *contextConfig) error {
		cfg.key = key
		cfg.identity = newIdentity(cfg.certs, key)
		return nil
	})
}

// UsePrivateKeyFile is like [Context.UsePrivateKey], reading from a file.
func (c *Context) UsePrivateKeyFile(path string) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	return c.UsePrivateKey(data)
}

// CheckPrivateKey verifies that the private key matches the leaf certificate.
func (c *Context) CheckPrivateKey() error {
	cfg := c.snapshot()
	if len(cfg.certs) == 0 {
		return NewError(CodeBadFuncArg, errors.New("no certificate set"))
	}
	if cfg.key == nil {
		return NewError(CodeBadFuncArg, errors.New("no private key set"))
	}
	switch cfg.key.(type) {
	case *rsa.PrivateKey, *ecdsa.PrivateKey, ed25519.PrivateKey:
	default:
		return NewError(CodeTLSMalformedKey, fmt.Errorf("unsupported key type %T", cfg.key))
	}
	if !pemfile.Matches(cfg.certs[0], cfg.key) {
		return NewError(CodeTLSCertKeyMismatch, nil)
	}
	return nil
}

// SetVerify sets the verification mode.
func (c *Context) SetVerify(mode VerifyMode) error {
	if mode&^(VerifyPeer|VerifyFailIfNoPeerCert) != 0 {
		return NewError(CodeBadFuncArg, fmt.Errorf("invalid verify mode %d", mode))
	}
	return c.update(func(cfg *contextConfig) error {
		cfg.verifyMode = mode
		return nil
	})
}

// VerifyMode returns the verification mode.
func (c *Context) VerifyMode() VerifyMode {
	return c.snapshot().verifyMode
}

// LoadVerifyLocations adds the PEM certificates to the trusted roots. They are
// also used to verify client certificates.
func (c *Context) LoadVerifyLocations(pemData []byte) error {
	certs, err := pemfile.ParseCertificates(pemData)
	if err != nil {
		return NewError(CodeTLSMalformedCertificate, err)
	}
	return c.update(func(cfg *contextConfig) error {
		roots := cfg.roots.Clone()
		for _, cert := range certs {
			roots.AddCert(cert)
		}
		cfg.roots = roots
		return nil
	})
}

// LoadVerifyLocationsFile is like [Context.LoadVerifyLocations], reading from a file.
func (c *Context) LoadVerifyLocationsFile(path string) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	return c.LoadVerifyLocations(data)
}

// SetSessionCacheMode sets which roles cache sessions and returns the previous mode.
func (c *Context) SetSessionCacheMode(mode SessionCacheMode) (SessionCacheMode, error) {
	if mode&^SessionCacheBoth != 0 {
		return 0, NewError(CodeBadFuncArg, fmt.Errorf("invalid session cache mode %d", mode))
	}
	var prev SessionCacheMode
	err := c.update(func(cfg *contextConfig) error {
		prev = cfg.cacheMode
		cfg.cacheMode = mode
		return nil
	})
	return prev, err
}

// SessionCacheMode returns the session cache mode.
func (c *Context) SessionCacheMode() SessionCacheMode {
	return c.snapshot().cacheMode
}

// SetKeyLogWriter makes new connections log their secrets to w in NSS key log
// format. Use only for debugging.
func (c *Context) SetKeyLogWriter(w io.Writer) {
	c.update(func(cfg *contextConfig) error {
		cfg.keyLog = w
		return nil
	})
}

// Versions returns the protocol versions of the context.
func (c *Context) Versions() []Version {
	return slices.Clone(c.snapshot().versions)
}

// Logger returns the context logger.
func (c *Context) Logger() *slog.Logger {
	return c.logger
}

func (cfg *contextConfig) clientTLSConfig(hostname string, cache tls.ClientSessionCache) *tls.Config {
	minVersion, maxVersion := versionRange(cfg.versions)
	tc := &tls.Config{
		ServerName:         hostname,
		RootCAs:            cfg.roots,
		MinVersion:         minVersion,
		MaxVersion:         maxVersion,
		InsecureSkipVerify: cfg.verifyMode&VerifyPeer == 0,
		KeyLogWriter:       cfg.keyLog,
	}
	if cfg.cacheMode&SessionCacheClient != 0 {
		tc.ClientSessionCache = cache
	}
	if cfg.identity != nil {
		tc.Certificates = []tls.Certificate{*cfg.identity}
	}
	return tc
}

func (cfg *contextConfig) serverTLSConfig(cache *serverSessionCache) *tls.Config {
	minVersion, maxVersion := versionRange(cfg.versions)
	tc := &tls.Config{
		MinVersion:   minVersion,
		MaxVersion:   maxVersion,
		KeyLogWriter: cfg.keyLog,
	}
	if cfg.identity != nil {
		tc.Certificates = []tls.Certificate{*cfg.identity}
	}
	if cfg.verifyMode == VerifyPeer|VerifyFailIfNoPeerCert {
		tc.ClientAuth = tls.RequireAndVerifyClientCert
		tc.ClientCAs = cfg.roots
	}
	if cfg.cacheMode&SessionCacheServer != 0 {
		tc.WrapSession = cache.wrap
		tc.UnwrapSession = cache.unwrap
	} else {
		tc.SessionTicketsDisabled = true
	}
	return tc
}
