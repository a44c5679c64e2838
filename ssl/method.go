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
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
)

// Version is a TLS protocol version.
type Version uint16

const (
	VersionTLS12 Version = tls.VersionTLS12
	VersionTLS13 Version = tls.VersionTLS13
)

func (v Version) String() string {
	switch v {
	case VersionTLS12:
		return "TLS1.2"
	case VersionTLS13:
		return "TLS1.3"
	}
	return fmt.Sprintf("Unknown(0x%04x)", uint16(v))
}

// Method is the set of protocol versions a [Context] will negotiate, in order
// of preference. It can be used to create only one context.
type Method struct {
	versions []Version
	consumed atomic.Bool
}

// NewMethod returns a method for the given versions. Only TLS 1.2 and TLS 1.3
// are supported.
func NewMethod(versions ...Version) (*Method, error) {
	if len(versions) == 0 {
		return nil, NewError(CodeBadFuncArg, errors.New("no protocol versions"))
	}
	for i, v := range versions {
		if v != VersionTLS12 && v != VersionTLS13 {
			return nil, NewError(CodeBadFuncArg, fmt.Errorf("unsupported protocol version %v", v))
		}
		if slices.Contains(versions[:i], v) {
			return nil, NewError(CodeBadFuncArg, fmt.Errorf("duplicate protocol version %v", v))
		}
	}
	return &Method{versions: slices.Clone(versions)}, nil
}

// MethodTLS negotiates TLS 1.3, falling back to TLS 1.2.
func MethodTLS() *Method {
	return &Method{versions: []Version{VersionTLS13, VersionTLS12}}
}

// MethodTLS12 negotiates TLS 1.2 only.
func MethodTLS12() *Method {
	return &Method{versions: []Version{VersionTLS12}}
}

// MethodTLS13 negotiates TLS 1.3 only.
func MethodTLS13() *Method {
	return &Method{versions: []Version{VersionTLS13}}
}

// Versions returns the versions of m in order of preference.
func (m *Method) Versions() []Version {
	return slices.Clone(m.versions)
}

func (m *Method) claim() error {
	if !m.consumed.CompareAndSwap(false, true) {
		return NewError(CodeBadFuncArg, errors.New("method already used to create a context"))
	}
	return nil
}

func versionRange(versions []Version) (minVersion, maxVersion uint16) {
	return uint16(slices.Min(versions)), uint16(slices.Max(versions))
}
