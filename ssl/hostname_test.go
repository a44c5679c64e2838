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
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateHostname(t *testing.T) {
	for _, name := range []string{"google.com", "localhost", "a-b.example.org"} {
		require.NoError(t, validateHostname(name), name)
	}
	tooLong := strings.Repeat("a", 64) + ".com"
	for _, name := range []string{"", "@#$%^&*(", "exa mple.com", "bücher.example", tooLong, "a..b"} {
		require.Error(t, validateHostname(name), name)
	}
}

func TestSetHostname(t *testing.T) {
	conn := NewConn(newTestContext(t))
	require.Equal(t, CodeBadFuncArg, CodeOf(conn.SetHostname("@#$%^&*(")))
	require.Empty(t, conn.Hostname())
	require.NoError(t, conn.SetHostname("google.com"))
	require.Equal(t, "google.com", conn.Hostname())
}
