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
	"crypto/rand"
	"crypto/tls"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/crypto/cryptobyte"
)

const (
	clientCacheSize = 32
	serverCacheSize = 128
)

// SessionCacheMode selects which roles cache sessions for resumption.
type SessionCacheMode int64

const (
	SessionCacheOff    SessionCacheMode = 0
	SessionCacheClient SessionCacheMode = 1
	SessionCacheServer SessionCacheMode = 2
	SessionCacheBoth   SessionCacheMode = SessionCacheClient | SessionCacheServer
)

func newLRU(size int) *lru.Cache {
	c, err := lru.New(size)
	if err != nil {
		// Only possible for non-positive sizes.
		panic(fmt.Sprintf("ssl: bad cache size %d: %v", size, err))
	}
	return c
}

// clientSessionCache is a bounded [tls.ClientSessionCache].
type clientSessionCache struct {
	lru *lru.Cache
}

var _ tls.ClientSessionCache = (*clientSessionCache)(nil)

func newClientSessionCache(size int) *clientSessionCache {
	return &clientSessionCache{lru: newLRU(size)}
}

func (c *clientSessionCache) Get(sessionKey string) (*tls.ClientSessionState, bool) {
	v, ok := c.lru.Get(sessionKey)
	if !ok {
		return nil, false
	}
	return v.(*tls.ClientSessionState), true
}

func (c *clientSessionCache) Put(sessionKey string, cs *tls.ClientSessionState) {
	if cs == nil {
		c.lru.Remove(sessionKey)
		return
	}
	c.lru.Add(sessionKey, cs)
}

func (c *clientSessionCache) Len() int {
	return c.lru.Len()
}

const (
	sessionIdentityVersion = 1
	sessionIDLen           = 16
)

type sessionID [sessionIDLen]byte

// serverSessionCache keeps server session state in memory and hands out short
// opaque identities as tickets, instead of encrypting the state into them.
type serverSessionCache struct {
	lru *lru.Cache
}

func newServerSessionCache(size int) *serverSessionCache {
	return &serverSessionCache{lru: newLRU(size)}
}

// wrap implements [tls.Config.WrapSession].
func (c *serverSessionCache) wrap(_ tls.ConnectionState, ss *tls.SessionState) ([]byte, error) {
	state, err := ss.Bytes()
	if err != nil {
		return nil, err
	}
	var id sessionID
	rand.Read(id[:])
	c.lru.Add(id, state)

	var b cryptobyte.Builder
	b.AddUint8(sessionIdentityVersion)
	b.AddUint8LengthPrefixed(func(b *cryptobyte.Builder) {
		b.AddBytes(id[:])
	})
	return b.Bytes()
}

// unwrap implements [tls.Config.UnwrapSession]. Unknown or evicted identities
// fall back to a full handshake.
func (c *serverSessionCache) unwrap(identity []byte, _ tls.ConnectionState) (*tls.SessionState, error) {
	s := cryptobyte.String(identity)
	var version uint8
	var raw cryptobyte.String
	if !s.ReadUint8(&version) || version != sessionIdentityVersion ||
		!s.ReadUint8LengthPrefixed(&raw) || len(raw) != sessionIDLen || !s.Empty() {
		return nil, nil
	}
	v, ok := c.lru.Get(sessionID([]byte(raw)))
	if !ok {
		return nil, nil
	}
	return tls.ParseSessionState(v.([]byte))
}

func (c *serverSessionCache) Len() int {
	return c.lru.Len()
}
