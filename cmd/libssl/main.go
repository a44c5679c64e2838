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

// Command libssl builds the OpenSSL-compatible C library:
//
//	go build -buildmode=c-shared -o libssl.so ./cmd/libssl
//
// The generated libssl.h declares every exported function. Objects are
// opaque uintptr_t handles and 0 is the null handle.
package main

/*
#include <stdint.h>  // uintptr_t

typedef uintptr_t SSL_METHOD;
typedef uintptr_t SSL_CTX;
typedef uintptr_t SSL;
typedef uintptr_t SSL_CIPHER;

#define SSL_SUCCESS 1
#define SSL_FAILURE 0
#define SSL_ERROR -1

#define SSL_ERROR_NONE 0
#define SSL_ERROR_WANT_READ 2
#define SSL_ERROR_WANT_WRITE 3
#define SSL_ERROR_ZERO_RETURN 6

#define SSL_FILETYPE_PEM 1

#define SSL_VERIFY_NONE 0
#define SSL_VERIFY_PEER 1
#define SSL_VERIFY_FAIL_IF_NO_PEER_CERT 2

#define SSL_SESS_CACHE_OFF 0
#define SSL_SESS_CACHE_CLIENT 1
#define SSL_SESS_CACHE_SERVER 2
#define SSL_SESS_CACHE_BOTH 3
*/
import "C"

import (
	"os"
	"sync"
	"unsafe"

	"github.com/Jigsaw-Code/outline-ssl/capi"
	"github.com/Jigsaw-Code/outline-ssl/internal/handle"
)

var lib = newLibrary()

func newLibrary() *capi.Library {
	cfg, err := capi.LoadConfig(capi.NewConfigSource())
	logger := capi.NewLogger(os.Stderr, cfg)
	if err != nil {
		logger.Warn("Ignoring invalid library configuration", "err", err)
	}
	return capi.New(cfg, capi.WithLogger(logger))
}

// cStrings interns the strings handed to C. They are never freed, and the set
// is small: cipher, version and error names.
var cStrings struct {
	sync.Mutex
	m map[string]*C.char
}

func cString(s string) *C.char {
	if s == "" {
		return nil
	}
	cStrings.Lock()
	defer cStrings.Unlock()
	if cs, ok := cStrings.m[s]; ok {
		return cs
	}
	if cStrings.m == nil {
		cStrings.m = make(map[string]*C.char)
	}
	cs := C.CString(s)
	cStrings.m[s] = cs
	return cs
}

func goString(s *C.char) *string {
	if s == nil {
		return nil
	}
	gs := C.GoString(s)
	return &gs
}

// goBytes wraps C memory without copying. It returns nil for a null buffer or
// a negative length.
func goBytes(buf unsafe.Pointer, num C.int) []byte {
	if buf == nil || num < 0 {
		return nil
	}
	if num == 0 {
		return []byte{}
	}
	return unsafe.Slice((*byte)(buf), int(num))
}

//export SSL_library_init
func SSL_library_init() C.int { return C.int(lib.LibraryInit()) }

//export OpenSSL_add_ssl_algorithms
func OpenSSL_add_ssl_algorithms() C.int { return C.int(lib.AddSSLAlgorithms()) }

//export SSL_load_error_strings
func SSL_load_error_strings() { lib.LoadErrorStrings() }

//export ERR_load_crypto_strings
func ERR_load_crypto_strings() { lib.LoadCryptoStrings() }

//export TLS_method
func TLS_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSMethod()) }

//export TLS_client_method
func TLS_client_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSClientMethod()) }

//export TLS_server_method
func TLS_server_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSServerMethod()) }

//export TLSv1_2_method
func TLSv1_2_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSv12Method()) }

//export TLSv1_2_client_method
func TLSv1_2_client_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSv12ClientMethod()) }

//export TLSv1_2_server_method
func TLSv1_2_server_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSv12ServerMethod()) }

//export TLSv1_3_method
func TLSv1_3_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSv13Method()) }

//export TLSv1_3_client_method
func TLSv1_3_client_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSv13ClientMethod()) }

//export TLSv1_3_server_method
func TLSv1_3_server_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSv13ServerMethod()) }

//export SSLv3_client_method
func SSLv3_client_method() C.SSL_METHOD { return C.SSL_METHOD(lib.SSLv3ClientMethod()) }

//export SSLv3_server_method
func SSLv3_server_method() C.SSL_METHOD { return C.SSL_METHOD(lib.SSLv3ServerMethod()) }

//export SSLv23_client_method
func SSLv23_client_method() C.SSL_METHOD { return C.SSL_METHOD(lib.SSLv23ClientMethod()) }

//export SSLv23_server_method
func SSLv23_server_method() C.SSL_METHOD { return C.SSL_METHOD(lib.SSLv23ServerMethod()) }

//export TLSv1_client_method
func TLSv1_client_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSv1ClientMethod()) }

//export TLSv1_server_method
func TLSv1_server_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSv1ServerMethod()) }

//export TLSv1_1_client_method
func TLSv1_1_client_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSv11ClientMethod()) }

//export TLSv1_1_server_method
func TLSv1_1_server_method() C.SSL_METHOD { return C.SSL_METHOD(lib.TLSv11ServerMethod()) }

//export SSL_CTX_new
func SSL_CTX_new(method C.SSL_METHOD) C.SSL_CTX {
	return C.SSL_CTX(lib.CtxNew(handle.Handle(method)))
}

//export SSL_CTX_free
func SSL_CTX_free(ctx C.SSL_CTX) { lib.CtxFree(handle.Handle(ctx)) }

//export SSL_CTX_use_certificate_chain_file
func SSL_CTX_use_certificate_chain_file(ctx C.SSL_CTX, file *C.char) C.int {
	return C.int(lib.CtxUseCertificateChainFile(handle.Handle(ctx), goString(file)))
}

//export SSL_CTX_use_PrivateKey_file
func SSL_CTX_use_PrivateKey_file(ctx C.SSL_CTX, file *C.char, format C.int) C.int {
	return C.int(lib.CtxUsePrivateKeyFile(handle.Handle(ctx), goString(file), int(format)))
}

//export SSL_CTX_check_private_key
func SSL_CTX_check_private_key(ctx C.SSL_CTX) C.int {
	return C.int(lib.CtxCheckPrivateKey(handle.Handle(ctx)))
}

// The verification callback is ignored.
//
//export SSL_CTX_set_verify
func SSL_CTX_set_verify(ctx C.SSL_CTX, mode C.int, callback unsafe.Pointer) C.int {
	return C.int(lib.CtxSetVerify(handle.Handle(ctx), int(mode)))
}

//export SSL_CTX_get_verify_mode
func SSL_CTX_get_verify_mode(ctx C.SSL_CTX) C.int {
	return C.int(lib.CtxGetVerifyMode(handle.Handle(ctx)))
}

//export SSL_CTX_load_verify_locations
func SSL_CTX_load_verify_locations(ctx C.SSL_CTX, file, dir *C.char) C.int {
	return C.int(lib.CtxLoadVerifyLocations(handle.Handle(ctx), goString(file), goString(dir)))
}

//export SSL_CTX_set_session_cache_mode
func SSL_CTX_set_session_cache_mode(ctx C.SSL_CTX, mode C.long) C.long {
	return C.long(lib.CtxSetSessionCacheMode(handle.Handle(ctx), int64(mode)))
}

//export SSL_CTX_get_session_cache_mode
func SSL_CTX_get_session_cache_mode(ctx C.SSL_CTX) C.long {
	return C.long(lib.CtxGetSessionCacheMode(handle.Handle(ctx)))
}

//export SSL_new
func SSL_new(ctx C.SSL_CTX) C.SSL { return C.SSL(lib.SSLNew(handle.Handle(ctx))) }

//export SSL_free
func SSL_free(ssl C.SSL) { lib.SSLFree(handle.Handle(ssl)) }

//export SSL_get_SSL_CTX
func SSL_get_SSL_CTX(ssl C.SSL) C.SSL_CTX {
	return C.SSL_CTX(lib.GetSSLCTX(handle.Handle(ssl)))
}

//export SSL_set_SSL_CTX
func SSL_set_SSL_CTX(ssl C.SSL, ctx C.SSL_CTX) C.SSL_CTX {
	return C.SSL_CTX(lib.SetSSLCTX(handle.Handle(ssl), handle.Handle(ctx)))
}

//export SSL_set_tlsext_host_name
func SSL_set_tlsext_host_name(ssl C.SSL, name *C.char) C.int {
	return C.int(lib.SetTLSExtHostName(handle.Handle(ssl), goString(name)))
}

//export SSL_set_fd
func SSL_set_fd(ssl C.SSL, fd C.int) C.int {
	return C.int(lib.SetFD(handle.Handle(ssl), int(fd)))
}

//export SSL_get_fd
func SSL_get_fd(ssl C.SSL) C.int { return C.int(lib.GetFD(handle.Handle(ssl))) }

//export SSL_set_connect_state
func SSL_set_connect_state(ssl C.SSL) { lib.SetConnectState(handle.Handle(ssl)) }

//export SSL_set_accept_state
func SSL_set_accept_state(ssl C.SSL) { lib.SetAcceptState(handle.Handle(ssl)) }

//export SSL_do_handshake
func SSL_do_handshake(ssl C.SSL) C.int { return C.int(lib.DoHandshake(handle.Handle(ssl))) }

//export SSL_connect
func SSL_connect(ssl C.SSL) C.int { return C.int(lib.Connect(handle.Handle(ssl))) }

//export SSL_accept
func SSL_accept(ssl C.SSL) C.int { return C.int(lib.Accept(handle.Handle(ssl))) }

//export SSL_read
func SSL_read(ssl C.SSL, buf unsafe.Pointer, num C.int) C.int {
	return C.int(lib.Read(handle.Handle(ssl), goBytes(buf, num)))
}

//export SSL_write
func SSL_write(ssl C.SSL, buf unsafe.Pointer, num C.int) C.int {
	return C.int(lib.Write(handle.Handle(ssl), goBytes(buf, num)))
}

//export SSL_shutdown
func SSL_shutdown(ssl C.SSL) C.int { return C.int(lib.Shutdown(handle.Handle(ssl))) }

//export SSL_get_error
func SSL_get_error(ssl C.SSL, ret C.int) C.int {
	return C.int(lib.GetError(handle.Handle(ssl), int(ret)))
}

//export SSL_get_version
func SSL_get_version(ssl C.SSL) *C.char { return cString(lib.GetVersion(handle.Handle(ssl))) }

//export SSL_session_reused
func SSL_session_reused(ssl C.SSL) C.int { return C.int(lib.SessionReused(handle.Handle(ssl))) }

//export SSL_get_current_cipher
func SSL_get_current_cipher(ssl C.SSL) C.SSL_CIPHER {
	return C.SSL_CIPHER(lib.GetCurrentCipher(handle.Handle(ssl)))
}

//export SSL_CIPHER_get_name
func SSL_CIPHER_get_name(cipher C.SSL_CIPHER) *C.char {
	return cString(lib.CipherGetName(handle.Handle(cipher)))
}

//export SSL_CIPHER_get_bits
func SSL_CIPHER_get_bits(cipher C.SSL_CIPHER, algBits *C.int) C.int {
	return C.int(lib.CipherGetBits(handle.Handle(cipher), (*int32)(unsafe.Pointer(algBits))))
}

//export SSL_CIPHER_get_version
func SSL_CIPHER_get_version(cipher C.SSL_CIPHER) *C.char {
	return cString(lib.CipherGetVersion(handle.Handle(cipher)))
}

//export SSL_get_cipher_name
func SSL_get_cipher_name(ssl C.SSL) *C.char {
	return cString(lib.GetCipherName(handle.Handle(ssl)))
}

//export SSL_get_cipher
func SSL_get_cipher(ssl C.SSL) *C.char { return cString(lib.GetCipher(handle.Handle(ssl))) }

//export SSL_get_cipher_bits
func SSL_get_cipher_bits(ssl C.SSL, algBits *C.int) C.int {
	return C.int(lib.GetCipherBits(handle.Handle(ssl), (*int32)(unsafe.Pointer(algBits))))
}

//export SSL_get_cipher_version
func SSL_get_cipher_version(ssl C.SSL) *C.char {
	return cString(lib.GetCipherVersion(handle.Handle(ssl)))
}

//export ERR_get_error
func ERR_get_error() C.ulong { return C.ulong(lib.ErrGetError()) }

//export ERR_peek_error
func ERR_peek_error() C.ulong { return C.ulong(lib.ErrPeekError()) }

//export ERR_peek_last_error
func ERR_peek_last_error() C.ulong { return C.ulong(lib.ErrPeekLastError()) }

//export ERR_clear_error
func ERR_clear_error() { lib.ErrClearError() }

//export ERR_reason_error_string
func ERR_reason_error_string(code C.ulong) *C.char {
	return cString(lib.ErrReasonErrorString(uint64(code)))
}

func main() {
	// Required to build the package as a C shared library.
}
