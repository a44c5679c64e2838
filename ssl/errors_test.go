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
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strings"
	"syscall"
	"testing"

	"github.com/Jigsaw-Code/outline-ssl/internal/handle"
	"github.com/Jigsaw-Code/outline-ssl/ssl/engine"
	"github.com/Jigsaw-Code/outline-ssl/transport"
	"github.com/stretchr/testify/require"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Code
	}{
		{nil, CodeNone},
		{NewError(CodeBadFuncArg, nil), CodeBadFuncArg},
		{fmt.Errorf("wrapped: %w", NewError(CodeLock, nil)), CodeLock},
		{handle.ErrNullHandle, CodeNullPointer},
		{fmt.Errorf("%w: freed", handle.ErrMalformedHandle), CodeMalformedObject},
		{fmt.Errorf("%w: boom", engine.ErrPanic), CodePanic},
		{engine.ErrHandshakeNotComplete, CodeTLSHandshakeNotComplete},
		{&fs.PathError{Op: "open", Path: "x", Err: syscall.ENOENT}, CodeIONotFound},
		{&fs.PathError{Op: "open", Path: "x", Err: syscall.EACCES}, CodeIOPermissionDenied},
		{fmt.Errorf("%w: read", transport.ErrWouldBlock), CodeIOWouldBlock},
		{io.ErrUnexpectedEOF, CodeIOUnexpectedEOF},
		{syscall.ECONNRESET, CodeIOConnectionReset},
		{syscall.EPIPE, CodeIOBrokenPipe},
		{net.ErrClosed, CodeIONotConnected},
		{errors.New("something odd"), CodeIOOther},
		{x509.UnknownAuthorityError{}, CodeTLSUnknownIssuer},
		{x509.CertificateInvalidError{Reason: x509.Expired}, CodeTLSCertExpired},
		{x509.HostnameError{Certificate: &x509.Certificate{}, Host: "x"}, CodeTLSCertNotValidForName},
		{&net.OpError{Op: "remote error", Err: errors.New("tls: bad certificate")}, CodeTLSAlertReceived},
		{errors.New("tls: client offered only unsupported versions: [303]"), CodeTLSPeerIncompatible},
		{errors.New("tls: no certificates configured"), CodeTLSNoCertificatesPresented},
		{errors.New("tls: something new"), CodeTLSGeneral},
		{errors.New("tls: oversized record received with length 20000"), CodeTLSCorruptMessage},
		{errors.New("tls: received record with version 301 when expecting version 303"), CodeTLSCorruptMessage},
		{errors.New("tls: invalid signature by the server certificate: crypto/rsa: verification error"), CodeTLSGeneral},
		{errors.New("tls: invalid server key share"), CodeTLSGeneral},
	}
	for _, tc := range tests {
		require.Equal(t, tc.want, CodeOf(tc.err), "%v", tc.err)
	}
}

func TestErrorSite(t *testing.T) {
	err := NewError(CodeBadFuncArg, nil)
	require.True(t, strings.HasPrefix(err.Site, "errors_test.go:"), err.Site)
	require.Equal(t, "ssl: bad function argument", err.Error())

	cause := errors.New("cause")
	err = NewError(CodeIOOther, cause)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "cause")
}

func TestAsError(t *testing.T) {
	require.Nil(t, AsError(nil))
	e := NewError(CodeLock, nil)
	require.Same(t, e, AsError(fmt.Errorf("x: %w", e)))
	converted := AsError(syscall.ECONNREFUSED)
	require.Equal(t, CodeIOConnectionRefused, converted.Code)
	require.ErrorIs(t, converted, syscall.ECONNREFUSED)
}

func TestCodeString(t *testing.T) {
	require.Equal(t, "want read", CodeWantRead.String())
	require.Equal(t, "code 0xdead", Code(0xdead).String())
	require.True(t, CodeWantWrite.IsTransient())
	require.False(t, CodeZeroReturn.IsTransient())
}
