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
	"strings"
)

// Cipher describes a negotiated cipher suite.
type Cipher struct {
	id uint16
}

// ID returns the IANA cipher suite identifier.
func (c Cipher) ID() uint16 {
	return c.id
}

// Name returns the IANA name, such as "TLS_AES_128_GCM_SHA256".
func (c Cipher) Name() string {
	return tls.CipherSuiteName(c.id)
}

// Bits returns the strength of the symmetric cipher in bits.
func (c Cipher) Bits() int {
	name := c.Name()
	switch {
	case strings.Contains(name, "AES_128"):
		return 128
	case strings.Contains(name, "AES_256"), strings.Contains(name, "CHACHA20"):
		return 256
	case strings.Contains(name, "3DES"):
		return 168
	case strings.Contains(name, "RC4_128"):
		return 128
	}
	return 0
}

// Version returns the protocol version the suite belongs to.
func (c Cipher) Version() Version {
	switch c.id {
	case tls.TLS_AES_128_GCM_SHA256, tls.TLS_AES_256_GCM_SHA384, tls.TLS_CHACHA20_POLY1305_SHA256:
		return VersionTLS13
	}
	return VersionTLS12
}
