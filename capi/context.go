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
	"os"
	"path/filepath"

	"github.com/Jigsaw-Code/outline-ssl/internal/handle"
	"github.com/Jigsaw-Code/outline-ssl/ssl"
)

// CtxNew creates a context from a method handle, consuming it.
func (lib *Library) CtxNew(method handle.Handle) handle.Handle {
	return guard(lib, 0, func() (handle.Handle, error) {
		m, err := handle.Take[*ssl.Method](lib.handles, method)
		if err != nil {
			return 0, err
		}
		ctx, err := ssl.NewContext(m, ssl.WithLogger(lib.log))
		if err != nil {
			return 0, err
		}
		if lib.keyLog != nil {
			ctx.SetKeyLogWriter(lib.keyLog)
		}
		return lib.handles.Register(ctx), nil
	})
}

// CtxFree frees a context handle. Connections created from it keep working.
func (lib *Library) CtxFree(h handle.Handle) {
	withContext(lib, h, struct{}{}, func(*ssl.Context) (struct{}, error) {
		return struct{}{}, lib.handles.Release(h)
	})
}

func requirePath(path *string) (string, error) {
	if path == nil {
		return "", ssl.NewError(ssl.CodeNullPointer, errors.New("null file name"))
	}
	return *path, nil
}

// CtxUseCertificateChainFile loads a PEM certificate chain, leaf first.
func (lib *Library) CtxUseCertificateChainFile(h handle.Handle, path *string) int {
	return withContext(lib, h, ResultFailure, func(ctx *ssl.Context) (int, error) {
		p, err := requirePath(path)
		if err != nil {
			return ResultFailure, err
		}
		if err := ctx.UseCertificateChainFile(p); err != nil {
			return ResultFailure, err
		}
		return ResultSuccess, nil
	})
}

// CtxUsePrivateKeyFile loads a PEM private key. Only PEM is supported, so
// format is not checked.
func (lib *Library) CtxUsePrivateKeyFile(h handle.Handle, path *string, format int) int {
	return withContext(lib, h, ResultFailure, func(ctx *ssl.Context) (int, error) {
		p, err := requirePath(path)
		if err != nil {
			return ResultFailure, err
		}
		if err := ctx.UsePrivateKeyFile(p); err != nil {
			return ResultFailure, err
		}
		return ResultSuccess, nil
	})
}

// CtxCheckPrivateKey checks that the private key matches the leaf certificate.
func (lib *Library) CtxCheckPrivateKey(h handle.Handle) int {
	return withContext(lib, h, ResultFailure, func(ctx *ssl.Context) (int, error) {
		if err := ctx.CheckPrivateKey(); err != nil {
			return ResultFailure, err
		}
		return ResultSuccess, nil
	})
}

// CtxSetVerify sets the peer verification mode. Verification callbacks are
// not supported.
func (lib *Library) CtxSetVerify(h handle.Handle, mode int) int {
	return withContext(lib, h, ResultFailure, func(ctx *ssl.Context) (int, error) {
		if err := ctx.SetVerify(ssl.VerifyMode(mode)); err != nil {
			return ResultFailure, err
		}
		return ResultSuccess, nil
	})
}

func (lib *Library) CtxGetVerifyMode(h handle.Handle) int {
	return withContext(lib, h, ResultFailure, func(ctx *ssl.Context) (int, error) {
		return int(ctx.VerifyMode()), nil
	})
}

// CtxLoadVerifyLocations adds trust anchors from a PEM file, from every
// certificate file in a directory, or both.
func (lib *Library) CtxLoadVerifyLocations(h handle.Handle, file, dir *string) int {
	return withContext(lib, h, ResultFailure, func(ctx *ssl.Context) (int, error) {
		if file == nil && dir == nil {
			return ResultFailure, ssl.NewError(ssl.CodeBadFuncArg, errors.New("no CA file or directory"))
		}
		if file != nil {
			if err := ctx.LoadVerifyLocationsFile(*file); err != nil {
				return ResultFailure, err
			}
		}
		if dir != nil {
			if err := lib.loadVerifyDir(ctx, *dir); err != nil {
				return ResultFailure, err
			}
		}
		return ResultSuccess, nil
	})
}

func (lib *Library) loadVerifyDir(ctx *ssl.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ssl.AsError(err)
	}
	loaded := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := ctx.LoadVerifyLocationsFile(path); err != nil {
			lib.log.Debug("Skipped CA file", "path", path, "err", err)
			continue
		}
		loaded++
	}
	if loaded == 0 {
		return ssl.NewError(ssl.CodeTLSMalformedCertificate, fmt.Errorf("no certificates found in %v", dir))
	}
	return nil
}

// CtxSetSessionCacheMode sets the session cache mode and returns the previous
// one.
func (lib *Library) CtxSetSessionCacheMode(h handle.Handle, mode int64) int64 {
	return withContext(lib, h, 0, func(ctx *ssl.Context) (int64, error) {
		prev, err := ctx.SetSessionCacheMode(ssl.SessionCacheMode(mode))
		if err != nil {
			return 0, err
		}
		return int64(prev), nil
	})
}

func (lib *Library) CtxGetSessionCacheMode(h handle.Handle) int64 {
	return withContext(lib, h, 0, func(ctx *ssl.Context) (int64, error) {
		return int64(ctx.SessionCacheMode()), nil
	})
}
