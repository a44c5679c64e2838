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
	"github.com/Jigsaw-Code/outline-ssl/internal/handle"
	"github.com/Jigsaw-Code/outline-ssl/ssl"
)

// A method handle is consumed by the first [Library.CtxNew] call that uses it.
// Roles are decided per connection, so client and server selectors are the
// same.

func (lib *Library) newMethod(newMethod func() *ssl.Method) handle.Handle {
	return guard(lib, 0, func() (handle.Handle, error) {
		return lib.handles.Register(newMethod()), nil
	})
}

// legacyMethod rejects withdrawn protocol versions with a null handle.
func (lib *Library) legacyMethod(name string) handle.Handle {
	return guard(lib, 0, func() (handle.Handle, error) {
		lib.log.Debug("Rejected unsupported protocol method", "method", name)
		return 0, nil
	})
}

// TLSMethod selects TLS 1.3 with fallback to TLS 1.2.
func (lib *Library) TLSMethod() handle.Handle       { return lib.newMethod(ssl.MethodTLS) }
func (lib *Library) TLSClientMethod() handle.Handle { return lib.newMethod(ssl.MethodTLS) }
func (lib *Library) TLSServerMethod() handle.Handle { return lib.newMethod(ssl.MethodTLS) }

// TLSv12Method selects TLS 1.2 only.
func (lib *Library) TLSv12Method() handle.Handle       { return lib.newMethod(ssl.MethodTLS12) }
func (lib *Library) TLSv12ClientMethod() handle.Handle { return lib.newMethod(ssl.MethodTLS12) }
func (lib *Library) TLSv12ServerMethod() handle.Handle { return lib.newMethod(ssl.MethodTLS12) }

// TLSv13Method selects TLS 1.3 only.
func (lib *Library) TLSv13Method() handle.Handle       { return lib.newMethod(ssl.MethodTLS13) }
func (lib *Library) TLSv13ClientMethod() handle.Handle { return lib.newMethod(ssl.MethodTLS13) }
func (lib *Library) TLSv13ServerMethod() handle.Handle { return lib.newMethod(ssl.MethodTLS13) }

// SSLv3, SSLv23, TLS 1.0 and TLS 1.1 selectors always return a null handle.
func (lib *Library) SSLv3ClientMethod() handle.Handle   { return lib.legacyMethod("SSLv3") }
func (lib *Library) SSLv3ServerMethod() handle.Handle   { return lib.legacyMethod("SSLv3") }
func (lib *Library) SSLv23ClientMethod() handle.Handle  { return lib.legacyMethod("SSLv23") }
func (lib *Library) SSLv23ServerMethod() handle.Handle  { return lib.legacyMethod("SSLv23") }
func (lib *Library) TLSv1ClientMethod() handle.Handle   { return lib.legacyMethod("TLSv1") }
func (lib *Library) TLSv1ServerMethod() handle.Handle   { return lib.legacyMethod("TLSv1") }
func (lib *Library) TLSv11ClientMethod() handle.Handle  { return lib.legacyMethod("TLSv1.1") }
func (lib *Library) TLSv11ServerMethod() handle.Handle  { return lib.legacyMethod("TLSv1.1") }
