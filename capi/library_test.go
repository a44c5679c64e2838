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
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Jigsaw-Code/outline-ssl/internal/handle"
	"github.com/Jigsaw-Code/outline-ssl/internal/testcert"
	"github.com/Jigsaw-Code/outline-ssl/ssl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib := New(DefaultConfig(), WithLogger(slog.New(slog.DiscardHandler)))
	t.Cleanup(func() { lib.Close() })
	return lib
}

func strPtr(s string) *string { return &s }

func requireQueued(t *testing.T, lib *Library, want ssl.Code) {
	t.Helper()
	require.Equal(t, uint64(want), lib.ErrGetError(), "want %v", want)
}

func TestCompatibilityCalls(t *testing.T) {
	lib := newTestLibrary(t)
	require.Equal(t, ResultSuccess, lib.LibraryInit())
	require.Equal(t, ResultSuccess, lib.AddSSLAlgorithms())
	lib.LoadErrorStrings()
	lib.LoadCryptoStrings()
	require.Zero(t, lib.errors.Len())
}

func TestMethodSelectors(t *testing.T) {
	lib := newTestLibrary(t)
	for _, selector := range []func() handle.Handle{
		lib.TLSMethod, lib.TLSClientMethod, lib.TLSServerMethod,
		lib.TLSv12Method, lib.TLSv12ClientMethod, lib.TLSv12ServerMethod,
		lib.TLSv13Method, lib.TLSv13ClientMethod, lib.TLSv13ServerMethod,
	} {
		require.NotZero(t, selector())
	}
	for _, selector := range []func() handle.Handle{
		lib.SSLv3ClientMethod, lib.SSLv3ServerMethod,
		lib.SSLv23ClientMethod, lib.SSLv23ServerMethod,
		lib.TLSv1ClientMethod, lib.TLSv1ServerMethod,
		lib.TLSv11ClientMethod, lib.TLSv11ServerMethod,
	} {
		require.Zero(t, selector())
	}
	require.Zero(t, lib.errors.Len())
}

func TestMethodIsConsumedOnce(t *testing.T) {
	lib := newTestLibrary(t)
	m := lib.TLSv12ClientMethod()
	ctx := lib.CtxNew(m)
	require.NotZero(t, ctx)

	require.Zero(t, lib.CtxNew(m))
	requireQueued(t, lib, ssl.CodeMalformedObject)
}

func TestNullAndFreedHandles(t *testing.T) {
	lib := newTestLibrary(t)
	require.Zero(t, lib.CtxNew(0))
	requireQueued(t, lib, ssl.CodeNullPointer)
	require.Equal(t, ResultFailure, lib.Connect(0))
	requireQueued(t, lib, ssl.CodeNullPointer)

	ctx := lib.CtxNew(lib.TLSMethod())
	conn := lib.SSLNew(ctx)
	require.NotZero(t, conn)
	lib.SSLFree(conn)
	require.Equal(t, ResultFailure, lib.Connect(conn))
	requireQueued(t, lib, ssl.CodeMalformedObject)
	lib.SSLFree(conn)
	requireQueued(t, lib, ssl.CodeMalformedObject)

	lib.CtxFree(ctx)
	require.Equal(t, ResultFailure, lib.CtxCheckPrivateKey(ctx))
	requireQueued(t, lib, ssl.CodeMalformedObject)
	require.Zero(t, lib.SSLNew(ctx))
	requireQueued(t, lib, ssl.CodeMalformedObject)
	require.Zero(t, lib.LiveHandles())
}

func TestWrongHandleType(t *testing.T) {
	lib := newTestLibrary(t)
	m := lib.TLSMethod()
	require.Zero(t, lib.SSLNew(m))
	requireQueued(t, lib, ssl.CodeMalformedObject)

	ctx := lib.CtxNew(m)
	require.Equal(t, ResultFailure, lib.Read(ctx, make([]byte, 4)))
	requireQueued(t, lib, ssl.CodeMalformedObject)
	require.Empty(t, lib.CipherGetName(ctx))
	requireQueued(t, lib, ssl.CodeMalformedObject)
	require.Equal(t, " NONE ", lib.CipherGetVersion(ctx))
	requireQueued(t, lib, ssl.CodeMalformedObject)
}

func TestPanicIsCaught(t *testing.T) {
	lib := newTestLibrary(t)
	got := guard(lib, -7, func() (int, error) {
		var m map[string]int
		m["boom"]++
		return 1, nil
	})
	require.Equal(t, -7, got)
	e, ok := lib.errors.Pop()
	require.True(t, ok)
	require.Equal(t, ssl.CodePanic, e.Code)

	require.Equal(t, "failed", guard(lib, "failed", func() (string, error) { panic("boom") }))
	requireQueued(t, lib, ssl.CodePanic)
}

func TestGuardSkipsTransientCodes(t *testing.T) {
	lib := newTestLibrary(t)
	got := guard(lib, ResultError, func() (int, error) {
		return 0, ssl.NewError(ssl.CodeWantRead, nil)
	})
	require.Equal(t, ResultError, got)
	require.Zero(t, lib.errors.Len())

	guard(lib, 0, func() (int, error) { return 0, errors.New("plain error") })
	requireQueued(t, lib, ssl.CodeIOOther)
}

func TestIOPreconditions(t *testing.T) {
	lib := newTestLibrary(t)
	conn := lib.SSLNew(lib.CtxNew(lib.TLSMethod()))

	require.Equal(t, ResultFailure, lib.Read(conn, make([]byte, 8)))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Equal(t, ResultFailure, lib.Read(conn, nil))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Equal(t, ResultFailure, lib.Write(conn, nil))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Equal(t, ResultFailure, lib.Shutdown(conn))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Empty(t, lib.GetVersion(conn))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Zero(t, lib.GetCurrentCipher(conn))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Equal(t, -1, lib.GetFD(conn))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Equal(t, ResultFailure, lib.SetFD(conn, -1))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Equal(t, ResultFailure, lib.SetTLSExtHostName(conn, nil))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Equal(t, ResultFailure, lib.SetTLSExtHostName(conn, strPtr("not a host name")))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Equal(t, ResultSuccess, lib.SetTLSExtHostName(conn, strPtr("localhost")))
	require.Equal(t, ResultFailure, lib.DoHandshake(conn))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Zero(t, lib.ErrGetError())
}

func TestConnectionLock(t *testing.T) {
	lib := newTestLibrary(t)
	conn := lib.SSLNew(lib.CtxNew(lib.TLSMethod()))
	entry, err := handle.Lookup[*connEntry](lib.handles, conn)
	require.NoError(t, err)

	require.True(t, entry.conn.TryAcquire())
	require.Equal(t, ResultFailure, lib.Connect(conn))
	requireQueued(t, lib, ssl.CodeLock)
	lib.SSLFree(conn)
	requireQueued(t, lib, ssl.CodeLock)
	entry.conn.Release()

	lib.SSLFree(conn)
	require.Zero(t, lib.errors.Len())
}

func TestContextCalls(t *testing.T) {
	id := testcert.New(t, "localhost")
	files := id.WriteFiles(t)
	lib := newTestLibrary(t)
	ctx := lib.CtxNew(lib.TLSServerMethod())

	require.Equal(t, ResultFailure, lib.CtxCheckPrivateKey(ctx))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Equal(t, ResultFailure, lib.CtxUseCertificateChainFile(ctx, nil))
	requireQueued(t, lib, ssl.CodeNullPointer)
	missing := filepath.Join(t.TempDir(), "missing.pem")
	require.Equal(t, ResultFailure, lib.CtxUseCertificateChainFile(ctx, &missing))
	requireQueued(t, lib, ssl.CodeIONotFound)

	require.Equal(t, ResultSuccess, lib.CtxUseCertificateChainFile(ctx, &files.Chain))
	require.Equal(t, ResultSuccess, lib.CtxUsePrivateKeyFile(ctx, &files.Key, 1))
	require.Equal(t, ResultSuccess, lib.CtxCheckPrivateKey(ctx))

	require.Equal(t, int(ssl.VerifyPeer), lib.CtxGetVerifyMode(ctx))
	require.Equal(t, ResultSuccess, lib.CtxSetVerify(ctx, 0))
	require.Equal(t, 0, lib.CtxGetVerifyMode(ctx))
	require.Equal(t, ResultFailure, lib.CtxSetVerify(ctx, 0x40))
	requireQueued(t, lib, ssl.CodeBadFuncArg)

	require.Equal(t, int64(ssl.SessionCacheBoth), lib.CtxSetSessionCacheMode(ctx, int64(ssl.SessionCacheClient)))
	require.Equal(t, int64(ssl.SessionCacheClient), lib.CtxGetSessionCacheMode(ctx))
	require.Zero(t, lib.CtxSetSessionCacheMode(ctx, 9))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
}

func TestLoadVerifyLocations(t *testing.T) {
	id := testcert.New(t, "localhost")
	files := id.WriteFiles(t)
	lib := newTestLibrary(t)
	ctx := lib.CtxNew(lib.TLSMethod())

	require.Equal(t, ResultFailure, lib.CtxLoadVerifyLocations(ctx, nil, nil))
	requireQueued(t, lib, ssl.CodeBadFuncArg)
	require.Equal(t, ResultSuccess, lib.CtxLoadVerifyLocations(ctx, &files.Root, nil))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "root.pem"), id.RootPEM, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README"), []byte("not a certificate"), 0o600))
	require.Equal(t, ResultSuccess, lib.CtxLoadVerifyLocations(ctx, nil, &dir))

	empty := t.TempDir()
	require.Equal(t, ResultFailure, lib.CtxLoadVerifyLocations(ctx, nil, &empty))
	requireQueued(t, lib, ssl.CodeTLSMalformedCertificate)
}

func TestErrorQueue(t *testing.T) {
	var q ErrorQueue
	_, ok := q.Pop()
	require.False(t, ok)
	q.Push(nil)
	require.Zero(t, q.Len())

	q.Push(ssl.NewError(ssl.CodeBadFuncArg, nil))
	q.Push(ssl.NewError(ssl.CodeLock, nil))
	q.Push(ssl.NewError(ssl.CodePanic, nil))
	first, _ := q.Peek()
	last, _ := q.PeekLast()
	assert.Equal(t, ssl.CodeBadFuncArg, first.Code)
	assert.Equal(t, ssl.CodePanic, last.Code)

	for _, want := range []ssl.Code{ssl.CodeBadFuncArg, ssl.CodeLock, ssl.CodePanic} {
		e, ok := q.Pop()
		require.True(t, ok)
		require.Equal(t, want, e.Code)
	}
	q.Push(ssl.NewError(ssl.CodeLock, nil))
	q.Clear()
	require.Zero(t, q.Len())
}

func TestErrorCalls(t *testing.T) {
	lib := newTestLibrary(t)
	require.Zero(t, lib.ErrGetError())
	require.Zero(t, lib.ErrPeekError())
	require.Zero(t, lib.ErrPeekLastError())

	lib.CtxNew(0)
	lib.SSLNew(lib.TLSMethod())
	require.Equal(t, uint64(ssl.CodeNullPointer), lib.ErrPeekError())
	require.Equal(t, uint64(ssl.CodeMalformedObject), lib.ErrPeekLastError())
	require.Equal(t, "null pointer", lib.ErrReasonErrorString(lib.ErrGetError()))
	lib.ErrClearError()
	require.Zero(t, lib.ErrGetError())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(EnvLogLevel, "")
	t.Setenv(EnvKeyLogFile, "")
	cfg, err := LoadConfig(NewConfigSource())
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)

	t.Setenv(EnvLogLevel, "DEBUG")
	t.Setenv(EnvKeyLogFile, "/tmp/keys")
	cfg, err = LoadConfig(NewConfigSource())
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, cfg.LogLevel)
	require.Equal(t, "/tmp/keys", cfg.KeyLogFile)

	v := NewConfigSource()
	v.Set(keyLog, "off")
	cfg, err = LoadConfig(v)
	require.NoError(t, err)
	require.True(t, cfg.LogOff)

	v = NewConfigSource()
	v.Set(keyLog, "loud")
	cfg, err = LoadConfig(v)
	require.Error(t, err)
	require.Equal(t, slog.LevelError, cfg.LogLevel)
}

func TestKeyLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.log")
	cfg := DefaultConfig()
	cfg.KeyLogFile = path
	lib := New(cfg, WithLogger(slog.New(slog.DiscardHandler)))
	require.NotNil(t, lib.keyLog)
	require.Equal(t, path, lib.Config().KeyLogFile)
	require.NoError(t, lib.Close())
	_, err := os.Stat(path)
	require.NoError(t, err)
}
