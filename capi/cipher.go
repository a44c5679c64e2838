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

// noneName is returned for a missing cipher or an unknown version.
const noneName = " NONE "

func versionName(v ssl.Version) string {
	switch v {
	case ssl.VersionTLS12, ssl.VersionTLS13:
		return v.String()
	}
	return noneName
}

// GetCurrentCipher returns a handle to the negotiated cipher. The handle is
// owned by the connection.
func (lib *Library) GetCurrentCipher(h handle.Handle) handle.Handle {
	return withConn(lib, h, 0, func(c *connEntry) (handle.Handle, error) {
		cipher, err := c.conn.CurrentCipher()
		if err != nil {
			return 0, err
		}
		if c.cipher != 0 {
			if held, err := handle.Lookup[ssl.Cipher](lib.handles, c.cipher); err == nil && held == cipher {
				return c.cipher, nil
			}
			lib.releaseOwned(&c.cipher)
		}
		c.cipher = lib.handles.Register(cipher)
		return c.cipher, nil
	})
}

func (lib *Library) withCipher(h handle.Handle, op func(ssl.Cipher)) error {
	cipher, err := handle.Lookup[ssl.Cipher](lib.handles, h)
	if err != nil {
		return err
	}
	op(cipher)
	return nil
}

// CipherGetName returns the IANA name of the cipher.
func (lib *Library) CipherGetName(h handle.Handle) string {
	return guard(lib, "", func() (string, error) {
		var name string
		err := lib.withCipher(h, func(c ssl.Cipher) { name = c.Name() })
		return name, err
	})
}

// CipherGetBits returns the secret bits of the cipher, also stored in
// algBits when it is not nil.
func (lib *Library) CipherGetBits(h handle.Handle, algBits *int32) int {
	return guard(lib, 0, func() (int, error) {
		var bits int
		err := lib.withCipher(h, func(c ssl.Cipher) { bits = c.Bits() })
		if err != nil {
			return 0, err
		}
		if algBits != nil {
			*algBits = int32(bits)
		}
		return bits, nil
	})
}

// CipherGetVersion returns the protocol version the cipher belongs to, or
// " NONE " for an invalid handle.
func (lib *Library) CipherGetVersion(h handle.Handle) string {
	return guard(lib, noneName, func() (string, error) {
		var version string
		err := lib.withCipher(h, func(c ssl.Cipher) { version = versionName(c.Version()) })
		return version, err
	})
}

// GetCipherName returns the IANA name of the negotiated cipher.
func (lib *Library) GetCipherName(h handle.Handle) string {
	return withConn(lib, h, "", func(c *connEntry) (string, error) {
		cipher, err := c.conn.CurrentCipher()
		if err != nil {
			return "", err
		}
		return cipher.Name(), nil
	})
}

// GetCipher is an alias of [Library.GetCipherName].
func (lib *Library) GetCipher(h handle.Handle) string {
	return lib.GetCipherName(h)
}

// GetCipherBits returns the secret bits of the negotiated cipher, also stored
// in algBits when it is not nil.
func (lib *Library) GetCipherBits(h handle.Handle, algBits *int32) int {
	return withConn(lib, h, 0, func(c *connEntry) (int, error) {
		cipher, err := c.conn.CurrentCipher()
		if err != nil {
			return 0, err
		}
		if algBits != nil {
			*algBits = int32(cipher.Bits())
		}
		return cipher.Bits(), nil
	})
}

// GetCipherVersion returns the protocol version of the negotiated cipher, or
// " NONE ".
func (lib *Library) GetCipherVersion(h handle.Handle) string {
	return withConn(lib, h, noneName, func(c *connEntry) (string, error) {
		cipher, err := c.conn.CurrentCipher()
		if err != nil {
			return noneName, err
		}
		return versionName(cipher.Version()), nil
	})
}
