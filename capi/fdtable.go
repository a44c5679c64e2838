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
	"fmt"
	"sync"

	"github.com/Jigsaw-Code/outline-ssl/internal/handle"
	"github.com/Jigsaw-Code/outline-ssl/ssl"
)

// fdTable records which connection owns each attached file descriptor, so
// that a descriptor is never closed by two connections.
type fdTable struct {
	mu     sync.Mutex
	owners map[int]handle.Handle
}

func (t *fdTable) claim(fd int, owner handle.Handle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.owners[fd]; ok && prev != owner {
		return ssl.NewError(ssl.CodeBadFuncArg, fmt.Errorf("file descriptor %d is attached to another connection", fd))
	}
	if t.owners == nil {
		t.owners = make(map[int]handle.Handle)
	}
	t.owners[fd] = owner
	return nil
}

func (t *fdTable) release(fd int, owner handle.Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.owners[fd] == owner {
		delete(t.owners, fd)
	}
}

func (t *fdTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.owners)
}
