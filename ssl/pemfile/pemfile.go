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

// Package pemfile parses certificate chains and private keys from PEM data.
package pemfile

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

var (
	// ErrNoCertificates is returned when the input has no CERTIFICATE block.
	ErrNoCertificates = errors.New("no certificates found")
	// ErrNoKey is returned when the input has no usable private key block.
	ErrNoKey = errors.New("no private key found")
)

// ParseCertificates returns the certificates in data, in order.
// Blocks of other types are skipped.
func ParseCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("certificate %d: %w", len(certs), err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, ErrNoCertificates
	}
	return certs, nil
}

// keyParsers are tried in order of preference.
var keyParsers = []struct {
	blockType string
	name      string
	parse     func(der []byte) (crypto.Signer, error)
}{
	{"RSA PRIVATE KEY", "PKCS #1", func(der []byte) (crypto.Signer, error) {
		return x509.ParsePKCS1PrivateKey(der)
	}},
	{"PRIVATE KEY", "PKCS #8", func(der []byte) (crypto.Signer, error) {
		key, err := x509.ParsePKCS8PrivateKey(der)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("key of type %T cannot sign", key)
		}
		return signer, nil
	}},
	{"EC PRIVATE KEY", "EC", func(der []byte) (crypto.Signer, error) {
		return x509.ParseECPrivateKey(der)
	}},
}

// ParsePrivateKey returns the first private key in data that parses.
// PKCS #1 RSA keys are preferred, then PKCS #8, then SEC 1 EC keys. A block
// that fails to parse is skipped in favor of the next candidate.
func ParsePrivateKey(data []byte) (crypto.Signer, error) {
	blocks := map[string][][]byte{}
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		blocks[block.Type] = append(blocks[block.Type], block.Bytes)
	}

	var errs []error
	for _, p := range keyParsers {
		for _, der := range blocks[p.blockType] {
			key, err := p.parse(der)
			if err != nil {
				errs = append(errs, fmt.Errorf("%v key: %w", p.name, err))
				continue
			}
			return key, nil
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrNoKey, errors.Join(errs...))
	}
	return nil, ErrNoKey
}

type publicKey interface {
	Equal(crypto.PublicKey) bool
}

// Matches reports whether key is the private half of cert's public key.
func Matches(cert *x509.Certificate, key crypto.Signer) bool {
	pub, ok := key.Public().(publicKey)
	if !ok {
		return false
	}
	return pub.Equal(cert.PublicKey)
}
