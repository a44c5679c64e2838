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
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/Jigsaw-Code/outline-ssl/internal/handle"
	"github.com/Jigsaw-Code/outline-ssl/ssl/engine"
	"github.com/Jigsaw-Code/outline-ssl/transport"
)

// Code is the numeric error code reported to C callers.
//
// The status codes share their values with OpenSSL's SSL_ERROR_* constants.
// Library codes live in 0xe0-0xef, I/O codes under 0x0200_0000 and TLS codes
// under 0x0300_0000.
type Code uint32

const (
	CodeNone       Code = 0
	CodeWantRead   Code = 2
	CodeWantWrite  Code = 3
	CodeZeroReturn Code = 6
)

const (
	CodeNullPointer Code = 0xe0 + iota
	CodeMalformedObject
	CodeBadFuncArg
	CodePanic
	CodeLock
)

const ioCodeBase Code = 0x0200_0000

const (
	CodeIONotFound Code = ioCodeBase + 1 + iota
	CodeIOPermissionDenied
	CodeIOConnectionRefused
	CodeIOConnectionReset
	CodeIOConnectionAborted
	CodeIONotConnected
	CodeIOAddrInUse
	CodeIOAddrNotAvailable
	CodeIOBrokenPipe
	CodeIOAlreadyExists
	CodeIOWouldBlock
	CodeIOInvalidInput
	CodeIOInvalidData
	CodeIOTimedOut
	CodeIOWriteZero
	CodeIOInterrupted
	CodeIOOther
	CodeIOUnexpectedEOF
)

const tlsCodeBase Code = 0x0300_0000

const (
	CodeTLSInappropriateMessage Code = tlsCodeBase + 1 + iota
	CodeTLSCorruptMessage
	CodeTLSNoCertificatesPresented
	CodeTLSDecryptError
	CodeTLSPeerIncompatible
	CodeTLSPeerMisbehaved
	CodeTLSAlertReceived
	CodeTLSGeneral
	CodeTLSHandshakeNotComplete
	CodeTLSMalformedCertificate
	CodeTLSMalformedKey
	CodeTLSCertKeyMismatch
	CodeTLSUnknownIssuer
	CodeTLSCertExpired
	CodeTLSCertNotValidForName
	CodeTLSBadCertificate
)

var codeNames = map[Code]string{
	CodeNone:                       "none",
	CodeWantRead:                   "want read",
	CodeWantWrite:                  "want write",
	CodeZeroReturn:                 "zero return",
	CodeNullPointer:                "null pointer",
	CodeMalformedObject:            "malformed object",
	CodeBadFuncArg:                 "bad function argument",
	CodePanic:                      "panic",
	CodeLock:                       "object in use",
	CodeIONotFound:                 "not found",
	CodeIOPermissionDenied:         "permission denied",
	CodeIOConnectionRefused:        "connection refused",
	CodeIOConnectionReset:          "connection reset",
	CodeIOConnectionAborted:        "connection aborted",
	CodeIONotConnected:             "not connected",
	CodeIOAddrInUse:                "address in use",
	CodeIOAddrNotAvailable:         "address not available",
	CodeIOBrokenPipe:               "broken pipe",
	CodeIOAlreadyExists:            "already exists",
	CodeIOWouldBlock:               "would block",
	CodeIOInvalidInput:             "invalid input",
	CodeIOInvalidData:              "invalid data",
	CodeIOTimedOut:                 "timed out",
	CodeIOWriteZero:                "write zero",
	CodeIOInterrupted:              "interrupted",
	CodeIOOther:                    "other I/O error",
	CodeIOUnexpectedEOF:            "unexpected EOF",
	CodeTLSInappropriateMessage:    "inappropriate message",
	CodeTLSCorruptMessage:          "corrupt message",
	CodeTLSNoCertificatesPresented: "no certificates presented",
	CodeTLSDecryptError:            "decrypt error",
	CodeTLSPeerIncompatible:        "peer incompatible",
	CodeTLSPeerMisbehaved:          "peer misbehaved",
	CodeTLSAlertReceived:           "alert received",
	CodeTLSGeneral:                 "general TLS error",
	CodeTLSHandshakeNotComplete:    "handshake not complete",
	CodeTLSMalformedCertificate:    "malformed certificate",
	CodeTLSMalformedKey:            "malformed private key",
	CodeTLSCertKeyMismatch:         "certificate and private key do not match",
	CodeTLSUnknownIssuer:           "unknown issuer",
	CodeTLSCertExpired:             "certificate expired",
	CodeTLSCertNotValidForName:     "certificate not valid for name",
	CodeTLSBadCertificate:          "bad certificate",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code 0x%x", uint32(c))
}

// IsTransient reports whether c asks the caller to retry once the transport is ready.
func (c Code) IsTransient() bool {
	return c == CodeWantRead || c == CodeWantWrite
}

// Error is an error record with a code and the source location that raised it.
type Error struct {
	Code Code
	// Site is the file:line that created the error, for diagnostics only.
	Site string
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "ssl: " + e.Code.String()
	}
	return fmt.Sprintf("ssl: %v: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an [Error] attributed to the caller's location.
func NewError(code Code, cause error) *Error {
	return newErrorAt(2, code, cause)
}

func newErrorAt(skip int, code Code, cause error) *Error {
	site := "unknown"
	if _, file, line, ok := runtime.Caller(skip); ok {
		site = fmt.Sprintf("%s:%d", filepath.Base(file), line)
	}
	return &Error{Code: code, Site: site, Err: cause}
}

// AsError converts err to an [*Error], classifying it if needed. It returns nil for a nil err.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newErrorAt(2, CodeOf(err), err)
}

// CodeOf classifies err. It returns [CodeNone] for nil.
func CodeOf(err error) Code {
	if err == nil {
		return CodeNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, handle.ErrNullHandle):
		return CodeNullPointer
	case errors.Is(err, handle.ErrMalformedHandle):
		return CodeMalformedObject
	case errors.Is(err, engine.ErrPanic):
		return CodePanic
	case errors.Is(err, engine.ErrHandshakeNotComplete):
		return CodeTLSHandshakeNotComplete
	}
	if code, ok := tlsCode(err); ok {
		return code
	}
	return ioCode(err)
}

func ioCode(err error) Code {
	switch {
	case transport.IsWouldBlock(err):
		return CodeIOWouldBlock
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return CodeIOUnexpectedEOF
	case errors.Is(err, io.ErrShortWrite):
		return CodeIOWriteZero
	case errors.Is(err, fs.ErrNotExist):
		return CodeIONotFound
	case errors.Is(err, fs.ErrPermission):
		return CodeIOPermissionDenied
	case errors.Is(err, fs.ErrExist):
		return CodeIOAlreadyExists
	case errors.Is(err, net.ErrClosed), errors.Is(err, engine.ErrClosed):
		return CodeIONotConnected
	case errors.Is(err, syscall.ECONNREFUSED):
		return CodeIOConnectionRefused
	case errors.Is(err, syscall.ECONNRESET):
		return CodeIOConnectionReset
	case errors.Is(err, syscall.ECONNABORTED):
		return CodeIOConnectionAborted
	case errors.Is(err, syscall.ENOTCONN):
		return CodeIONotConnected
	case errors.Is(err, syscall.EADDRINUSE):
		return CodeIOAddrInUse
	case errors.Is(err, syscall.EADDRNOTAVAIL):
		return CodeIOAddrNotAvailable
	case errors.Is(err, syscall.EPIPE):
		return CodeIOBrokenPipe
	case errors.Is(err, syscall.EINVAL), errors.Is(err, syscall.EBADF):
		return CodeIOInvalidInput
	case errors.Is(err, syscall.ETIMEDOUT):
		return CodeIOTimedOut
	case errors.Is(err, syscall.EINTR):
		return CodeIOInterrupted
	}
	return CodeIOOther
}

func tlsCode(err error) (Code, bool) {
	var (
		unknownAuthority x509.UnknownAuthorityError
		invalid          x509.CertificateInvalidError
		hostname         x509.HostnameError
		recordHeader     tls.RecordHeaderError
		verification     *tls.CertificateVerificationError
		opErr            *net.OpError
	)
	switch {
	case errors.As(err, &unknownAuthority):
		return CodeTLSUnknownIssuer, true
	case errors.As(err, &invalid):
		if invalid.Reason == x509.Expired {
			return CodeTLSCertExpired, true
		}
		return CodeTLSBadCertificate, true
	case errors.As(err, &hostname):
		return CodeTLSCertNotValidForName, true
	case errors.As(err, &verification):
		return CodeTLSBadCertificate, true
	case errors.As(err, &recordHeader):
		return CodeTLSCorruptMessage, true
	case errors.As(err, &opErr) && opErr.Op == "remote error":
		return CodeTLSAlertReceived, true
	}

	// crypto/tls reports most protocol failures as plain errors, so fall back to
	// their messages. All of them start with "tls: ".
	msg := err.Error()
	if !strings.Contains(msg, "tls: ") {
		return 0, false
	}
	switch {
	case strings.Contains(msg, "no certificates"):
		return CodeTLSNoCertificatesPresented, true
	case strings.Contains(msg, "unsupported versions"),
		strings.Contains(msg, "unsupported protocol version"),
		strings.Contains(msg, "protocol version not supported"),
		strings.Contains(msg, "no cipher suite supported"),
		strings.Contains(msg, "no mutually supported"),
		strings.Contains(msg, "handshake failure"):
		return CodeTLSPeerIncompatible, true
	case strings.Contains(msg, "bad record MAC"),
		strings.Contains(msg, "decrypt"):
		return CodeTLSDecryptError, true
	case strings.Contains(msg, "unexpected message"),
		strings.Contains(msg, "received unexpected handshake message"):
		return CodeTLSInappropriateMessage, true
	case strings.Contains(msg, "oversized record"),
		strings.Contains(msg, "first record does not look like a TLS handshake"),
		strings.Contains(msg, "received record with version"),
		strings.Contains(msg, "exceeds maximum of"),
		strings.Contains(msg, "decode error"),
		strings.Contains(msg, "record overflow"):
		return CodeTLSCorruptMessage, true
	case strings.Contains(msg, "peer"),
		strings.Contains(msg, "illegal parameter"):
		return CodeTLSPeerMisbehaved, true
	}
	return CodeTLSGeneral, true
}
