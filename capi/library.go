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
Package capi implements the OpenSSL-compatible C entry points in Go.

Objects cross the boundary as [handle.Handle] values issued by the [Library]
registry, and every entry point checks the handle it receives before use. None
of the functions report errors directly. A failed call returns a sentinel
([ResultFailure], [ResultError] or a zero handle) and queues the error, which
the caller retrieves with [Library.ErrGetError] or, for I/O calls,
[Library.GetError].

The cgo shim in cmd/libssl maps each exported C symbol to one method here.
*/
package capi

import (
	"log/slog"
	"os"

	"github.com/Jigsaw-Code/outline-ssl/internal/handle"
	"github.com/Jigsaw-Code/outline-ssl/ssl"
)

// Return values shared by the integer entry points.
const (
	ResultSuccess = 1
	ResultFailure = 0
	// ResultError means the call should be retried. See [Library.GetError].
	ResultError = -1
)

// Library holds the state of one instance of the C library. A process using
// the shared library has exactly one.
type Library struct {
	handles *handle.Registry
	errors  *ErrorQueue
	fds     fdTable
	log     *slog.Logger
	config  Config
	keyLog  *os.File
}

// Option configures a [Library].
type Option func(*Library)

// WithLogger replaces the logger built from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(lib *Library) {
		lib.log = logger
	}
}

// New creates a library instance. By default it logs to stderr.
func New(cfg Config, opts ...Option) *Library {
	lib := &Library{
		handles: handle.NewRegistry(),
		errors:  &ErrorQueue{},
		config:  cfg,
	}
	for _, opt := range opts {
		opt(lib)
	}
	if lib.log == nil {
		lib.log = NewLogger(os.Stderr, cfg)
	}
	if cfg.KeyLogFile != "" {
		f, err := os.OpenFile(cfg.KeyLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			lib.log.Warn("Failed to open key log file", "path", cfg.KeyLogFile, "err", err)
		} else {
			lib.log.Warn("Writing TLS secrets to key log file", "path", cfg.KeyLogFile)
			lib.keyLog = f
		}
	}
	return lib
}

// Close releases resources held outside the handle registry.
func (lib *Library) Close() error {
	if lib.keyLog == nil {
		return nil
	}
	return lib.keyLog.Close()
}

// Config returns the configuration the library was created with.
func (lib *Library) Config() Config {
	return lib.config
}

// Errors returns the queue of failed calls.
func (lib *Library) Errors() *ErrorQueue {
	return lib.errors
}

// LiveHandles returns the number of handles not yet freed.
func (lib *Library) LiveHandles() int {
	return lib.handles.Len()
}

// LibraryInit exists for OpenSSL compatibility and always succeeds.
func (lib *Library) LibraryInit() int {
	return guard(lib, ResultFailure, func() (int, error) { return ResultSuccess, nil })
}

// AddSSLAlgorithms exists for OpenSSL compatibility and always succeeds.
func (lib *Library) AddSSLAlgorithms() int {
	return guard(lib, ResultFailure, func() (int, error) { return ResultSuccess, nil })
}

// LoadErrorStrings exists for OpenSSL compatibility. Error names are always
// available.
func (lib *Library) LoadErrorStrings() {
	guard(lib, struct{}{}, func() (struct{}, error) { return struct{}{}, nil })
}

// LoadCryptoStrings exists for OpenSSL compatibility.
func (lib *Library) LoadCryptoStrings() {
	lib.LoadErrorStrings()
}

// ErrGetError removes the oldest queued error and returns its code, or 0 if
// the queue is empty.
func (lib *Library) ErrGetError() uint64 {
	return guard(lib, 0, func() (uint64, error) {
		e, ok := lib.errors.Pop()
		if !ok {
			return 0, nil
		}
		return uint64(e.Code), nil
	})
}

// ErrPeekError returns the code of the oldest queued error without removing it.
func (lib *Library) ErrPeekError() uint64 {
	return guard(lib, 0, func() (uint64, error) {
		e, ok := lib.errors.Peek()
		if !ok {
			return 0, nil
		}
		return uint64(e.Code), nil
	})
}

// ErrPeekLastError returns the code of the newest queued error without
// removing it.
func (lib *Library) ErrPeekLastError() uint64 {
	return guard(lib, 0, func() (uint64, error) {
		e, ok := lib.errors.PeekLast()
		if !ok {
			return 0, nil
		}
		return uint64(e.Code), nil
	})
}

// ErrClearError empties the error queue.
func (lib *Library) ErrClearError() {
	guard(lib, struct{}{}, func() (struct{}, error) {
		lib.errors.Clear()
		return struct{}{}, nil
	})
}

// ErrReasonErrorString returns a description of code.
func (lib *Library) ErrReasonErrorString(code uint64) string {
	return guard(lib, "", func() (string, error) {
		return ssl.Code(code).String(), nil
	})
}
