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
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/net/idna"
)

var dnsNameProfile = idna.New(
	idna.MapForLookup(),
	idna.StrictDomainName(true),
	idna.VerifyDNSLength(true),
	idna.BidiRule(),
)

// validateHostname checks that name is an ASCII DNS name usable for SNI and
// certificate verification.
func validateHostname(name string) error {
	if name == "" {
		return errors.New("empty hostname")
	}
	for i := 0; i < len(name); i++ {
		if name[i] >= utf8.RuneSelf {
			return fmt.Errorf("hostname %q is not ASCII", name)
		}
	}
	if _, err := dnsNameProfile.ToASCII(name); err != nil {
		return fmt.Errorf("invalid hostname %q: %w", name, err)
	}
	return nil
}
