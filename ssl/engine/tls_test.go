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

package engine

import (
	"bytes"
	"crypto/tls"
	"testing"

	"github.com/Jigsaw-Code/outline-ssl/internal/testcert"
	"github.com/stretchr/testify/require"
)

// transfer moves every pending record from one session to the other and
// processes it. It returns the receiver's processing error.
func transfer(t *testing.T, from, to Session) error {
	t.Helper()
	var wire bytes.Buffer
	for from.WantsWrite() {
		_, err := from.WriteTLS(&wire)
		require.NoError(t, err)
	}
	for wire.Len() > 0 {
		_, err := to.ReadTLS(&wire)
		require.NoError(t, err)
		if err := to.ProcessNewPackets(); err != nil {
			return err
		}
	}
	return nil
}

func newPair(t *testing.T, version uint16) (Session, Session) {
	t.Helper()
	id := testcert.New(t, "localhost")
	client, err := NewClient(&tls.Config{
		ServerName: "localhost",
		RootCAs:    id.RootPool(),
		MinVersion: version,
		MaxVersion: version,
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	server, err := NewServer(&tls.Config{
		Certificates: []tls.Certificate{id.TLSCertificate()},
		MinVersion:   version,
		MaxVersion:   version,
	})
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })
	return client, server
}

func handshake(t *testing.T, client, server Session) {
	t.Helper()
	for i := 0; i < 10 && (client.IsHandshaking() || server.IsHandshaking()); i++ {
		require.NoError(t, transfer(t, client, server))
		require.NoError(t, transfer(t, server, client))
	}
	require.False(t, client.IsHandshaking())
	require.False(t, server.IsHandshaking())
}

func TestClientStartsWithHello(t *testing.T) {
	client, server := newPair(t, tls.VersionTLS13)
	require.True(t, client.IsHandshaking())
	require.True(t, client.WantsWrite())
	require.True(t, client.WantsRead())
	require.False(t, server.WantsWrite())
	require.True(t, server.WantsRead())

	_, ok := client.NegotiatedCipherSuite()
	require.False(t, ok)
	_, err := client.Write([]byte("early"))
	require.ErrorIs(t, err, ErrHandshakeNotComplete)
}

func TestHandshakeAndData(t *testing.T) {
	for _, version := range []uint16{tls.VersionTLS12, tls.VersionTLS13} {
		t.Run(tls.VersionName(version), func(t *testing.T) {
			client, server := newPair(t, version)
			handshake(t, client, server)

			v, ok := client.ProtocolVersion()
			require.True(t, ok)
			require.Equal(t, version, v)
			suite, ok := server.NegotiatedCipherSuite()
			require.True(t, ok)
			require.NotZero(t, suite)

			_, err := client.Write([]byte("Hello server"))
			require.NoError(t, err)
			require.NoError(t, transfer(t, client, server))
			buf := make([]byte, 64)
			n, err := server.Read(buf)
			require.NoError(t, err)
			require.Equal(t, "Hello server", string(buf[:n]))

			// Nothing left to read.
			n, err = server.Read(buf)
			require.NoError(t, err)
			require.Zero(t, n)
		})
	}
}

func TestCloseNotify(t *testing.T) {
	client, server := newPair(t, tls.VersionTLS13)
	handshake(t, client, server)

	require.NoError(t, client.SendCloseNotify())
	require.True(t, client.WantsWrite())
	require.False(t, server.ReceivedCloseNotify())
	require.NoError(t, transfer(t, client, server))
	require.False(t, server.WantsRead())
	require.True(t, server.ReceivedCloseNotify())
	n, err := server.Read(make([]byte, 8))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestVersionMismatch(t *testing.T) {
	id := testcert.New(t, "localhost")
	client, err := NewClient(&tls.Config{
		ServerName: "localhost",
		RootCAs:    id.RootPool(),
		MaxVersion: tls.VersionTLS12,
	})
	require.NoError(t, err)
	defer client.Close()
	server, err := NewServer(&tls.Config{
		Certificates: []tls.Certificate{id.TLSCertificate()},
		MinVersion:   tls.VersionTLS13,
	})
	require.NoError(t, err)
	defer server.Close()

	require.Error(t, transfer(t, client, server))
	// The server still has an alert to send.
	require.True(t, server.WantsWrite())
	require.Error(t, transfer(t, server, client))
	require.True(t, client.IsHandshaking())
}

func TestUntrustedServer(t *testing.T) {
	id := testcert.New(t, "localhost")
	client, err := NewClient(&tls.Config{ServerName: "localhost"})
	require.NoError(t, err)
	defer client.Close()
	server, err := NewServer(&tls.Config{Certificates: []tls.Certificate{id.TLSCertificate()}})
	require.NoError(t, err)
	defer server.Close()

	require.NoError(t, transfer(t, client, server))
	require.Error(t, transfer(t, server, client))
}

func TestCloseReleasesEngine(t *testing.T) {
	client, _ := newPair(t, tls.VersionTLS13)
	require.NoError(t, client.Close())
	require.False(t, client.WantsRead())
	require.NoError(t, client.Close())
	_, err := client.Write([]byte("x"))
	require.Error(t, err)
}

func TestBadConfig(t *testing.T) {
	// A client needs either a server name or InsecureSkipVerify.
	_, err := NewClient(&tls.Config{})
	require.Error(t, err)
	_, err = NewClient(nil)
	require.Error(t, err)
}
