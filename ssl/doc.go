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

/*
Package ssl implements the object model of an OpenSSL-style TLS library.

A [Method] selects protocol versions and is consumed by [NewContext]. A
[Context] holds certificates, keys, trust roots, verification policy and
session caches. Each [Conn] takes a snapshot of its context, gets a
[transport.Stream] and performs a client or server handshake before
exchanging data:

	ctx, err := ssl.NewContext(ssl.MethodTLS())
	...
	conn := ssl.NewConn(ctx)
	conn.SetHostname("example.com")
	conn.SetTransport(transport.NewConnStream(tcpConn))
	if err := conn.Connect(); err != nil {
		...
	}
	conn.Write([]byte("GET / HTTP/1.0\r\n\r\n"))

All errors returned by this package carry a [Code], available with [CodeOf].
The transport decides whether calls block. With a non-blocking transport,
operations fail with [CodeWantRead] or [CodeWantWrite] and can be retried.
*/
package ssl
