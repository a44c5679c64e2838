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
	"fmt"
	"runtime/debug"

	"github.com/Jigsaw-Code/outline-ssl/internal/handle"
	"github.com/Jigsaw-Code/outline-ssl/ssl"
	"github.com/Jigsaw-Code/outline-ssl/ssl/engine"
)

// guard runs op on behalf of a boundary call. Errors, including recovered
// panics, are queued and turn into failure. Transient codes are left to the
// connection's last error.
func guard[T any](lib *Library, failure T, op func() (T, error)) (ret T) {
	defer func() {
		if r := recover(); r != nil {
			lib.log.Error("Recovered panic at library boundary", "panic", r, "stack", string(debug.Stack()))
			lib.errors.Push(ssl.NewError(ssl.CodePanic, fmt.Errorf("%w: %v", engine.ErrPanic, r)))
			ret = failure
		}
	}()
	v, err := op()
	if err != nil {
		e := ssl.AsError(err)
		if !e.Code.IsTransient() {
			lib.log.Debug("Library call failed", "code", e.Code, "site", e.Site, "err", e.Err)
			lib.errors.Push(e)
		}
		return failure
	}
	return v
}

// withConn runs op with exclusive use of the connection behind h.
func withConn[T any](lib *Library, h handle.Handle, failure T, op func(c *connEntry) (T, error)) T {
	return guard(lib, failure, func() (T, error) {
		c, err := handle.Lookup[*connEntry](lib.handles, h)
		if err != nil {
			return failure, err
		}
		if !c.conn.TryAcquire() {
			return failure, ssl.NewError(ssl.CodeLock, errors.New("connection is in use by another call"))
		}
		defer c.conn.Release()
		return op(c)
	})
}

// withContext runs op on the context behind h.
func withContext[T any](lib *Library, h handle.Handle, failure T, op func(ctx *ssl.Context) (T, error)) T {
	return guard(lib, failure, func() (T, error) {
		ctx, err := handle.Lookup[*ssl.Context](lib.handles, h)
		if err != nil {
			return failure, err
		}
		return op(ctx)
	})
}
