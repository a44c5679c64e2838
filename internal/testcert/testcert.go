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

// Package testcert generates certificate fixtures for tests.
package testcert

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Identity is a leaf certificate and key issued by a fresh root CA.
type Identity struct {
	Root    *x509.Certificate
	RootKey *ecdsa.PrivateKey
	Leaf    *x509.Certificate
	Key     crypto.Signer

	// RootPEM holds the root certificate.
	RootPEM []byte
	// ChainPEM holds the leaf followed by the root.
	ChainPEM []byte
	// KeyPEM holds the leaf key in PKCS #8 form.
	KeyPEM []byte
}

// NewRootCA creates a self-signed ECDSA P-256 certificate authority.
func NewRootCA(t testing.TB) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{Organization: []string{"Test Root CA"}},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privKey.PublicKey, privKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)
	return cert, privKey
}

// NewLeaf creates a certificate for dnsNames signed by parent. It is valid for
// both server and client authentication.
func NewLeaf(t testing.TB, dnsNames []string, parent *x509.Certificate, parentKey crypto.Signer, key crypto.Signer) *x509.Certificate {
	t.Helper()
	template := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: dnsNames[0]},
		DNSNames:              dnsNames,
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(1 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, parent, key.Public(), parentKey)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(certDER)
	require.NoError(t, err)
	return cert
}

// New creates a root CA and an ECDSA leaf for dnsNames.
func New(t testing.TB, dnsNames ...string) *Identity {
	t.Helper()
	if len(dnsNames) == 0 {
		dnsNames = []string{"localhost"}
	}
	root, rootKey := NewRootCA(t)
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	leaf := NewLeaf(t, dnsNames, root, rootKey, key)

	rootPEM := CertPEM(root)
	return &Identity{
		Root:     root,
		RootKey:  rootKey,
		Leaf:     leaf,
		Key:      key,
		RootPEM:  rootPEM,
		ChainPEM: append(CertPEM(leaf), rootPEM...),
		KeyPEM:   PKCS8PEM(t, key),
	}
}

// TLSCertificate returns the identity in the form used by [tls.Config].
func (id *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{id.Leaf.Raw, id.Root.Raw},
		PrivateKey:  id.Key,
		Leaf:        id.Leaf,
	}
}

// RootPool returns a pool that trusts only the root CA.
func (id *Identity) RootPool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(id.Root)
	return pool
}

// Files holds the paths written by [Identity.WriteFiles].
type Files struct {
	Chain string
	Key   string
	Root  string
}

// WriteFiles writes the PEM fixtures to a temporary directory.
func (id *Identity) WriteFiles(t testing.TB) Files {
	t.Helper()
	dir := t.TempDir()
	f := Files{
		Chain: filepath.Join(dir, "chain.pem"),
		Key:   filepath.Join(dir, "key.pem"),
		Root:  filepath.Join(dir, "root.pem"),
	}
	require.NoError(t, os.WriteFile(f.Chain, id.ChainPEM, 0o600))
	require.NoError(t, os.WriteFile(f.Key, id.KeyPEM, 0o600))
	require.NoError(t, os.WriteFile(f.Root, id.RootPEM, 0o600))
	return f
}

// CertPEM encodes cert as a CERTIFICATE block.
func CertPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// PKCS8PEM encodes key as a PRIVATE KEY block.
func PKCS8PEM(t testing.TB, key crypto.Signer) []byte {
	t.Helper()
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

// ECPEM encodes key as an EC PRIVATE KEY block.
func ECPEM(t testing.TB, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

// NewRSAKey creates a 2048-bit RSA key and returns it with its PKCS #1 encoding.
func NewRSAKey(t testing.TB) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return key, pem.EncodeToMemory(block)
}
