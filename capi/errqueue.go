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
	"sync"

	"github.com/Jigsaw-Code/outline-ssl/ssl"
)

// ErrorQueue is an unbounded FIFO of errors reported by failed calls. It is
// safe for concurrent use.
type ErrorQueue struct {
	mu      sync.Mutex
	records []*ssl.Error
}

// Push appends err to the queue. A nil err is ignored.
func (q *ErrorQueue) Push(err error) {
	e := ssl.AsError(err)
	if e == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = append(q.records, e)
}

// Pop removes and returns the oldest error.
func (q *ErrorQueue) Pop() (*ssl.Error, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.records) == 0 {
		return nil, false
	}
	e := q.records[0]
	q.records[0] = nil
	q.records = q.records[1:]
	return e, true
}

// Peek returns the oldest error without removing it.
func (q *ErrorQueue) Peek() (*ssl.Error, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.records) == 0 {
		return nil, false
	}
	return q.records[0], true
}

// PeekLast returns the newest error without removing it.
func (q *ErrorQueue) PeekLast() (*ssl.Error, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.records) == 0 {
		return nil, false
	}
	return q.records[len(q.records)-1], true
}

// Clear empties the queue.
func (q *ErrorQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.records = nil
}

func (q *ErrorQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.records)
}
