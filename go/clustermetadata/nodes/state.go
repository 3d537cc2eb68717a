// Copyright 2025 Supabase, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nodes

import (
	"fmt"
	"strings"
)

// StorageState is the membership state of a shard: whether it accepts
// writes, serves reads, or is out of the cluster.
type StorageState int

const (
	StorageStateReadWrite StorageState = iota
	StorageStateReadOnly
	StorageStateDisabled
)

var storageStateNames = map[StorageState]string{
	StorageStateReadWrite: "READ_WRITE",
	StorageStateReadOnly:  "READ_ONLY",
	StorageStateDisabled:  "DISABLED",
}

func (s StorageState) String() string {
	if name, ok := storageStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StorageState(%d)", int(s))
}

// ParseStorageState accepts READ_WRITE, read-write, read_only, disabled and
// similar spellings.
func ParseStorageState(s string) (StorageState, error) {
	norm := normalizeEnum(s)
	for state, name := range storageStateNames {
		if name == norm {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown storage state %q", s)
}

// AcceptsWrites reports whether shards in this state take new writes.
func (s StorageState) AcceptsWrites() bool {
	return s == StorageStateReadWrite
}

// ServesReads reports whether shards in this state still hold readable data.
func (s StorageState) ServesReads() bool {
	return s != StorageStateDisabled
}

// MarshalYAML writes the state by name.
func (s StorageState) MarshalYAML() (any, error) {
	return s.String(), nil
}

// UnmarshalYAML reads the state by name.
func (s *StorageState) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseStorageState(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// AuthoritativeStatus is the live classification of a shard as observed by
// the cluster.
type AuthoritativeStatus int

const (
	// FullyAuthoritative shards are trusted to hold their data.
	FullyAuthoritative AuthoritativeStatus = iota
	// Underreplication shards are being rebuilt; some data may be missing
	// but the shard is not counted as lost.
	Underreplication
	// AuthoritativeEmpty shards are known to hold no data.
	AuthoritativeEmpty
	// Unavailable shards are unreachable and assumed to have lost their data.
	Unavailable
)

var statusNames = map[AuthoritativeStatus]string{
	FullyAuthoritative: "FULLY_AUTHORITATIVE",
	Underreplication:   "UNDERREPLICATION",
	AuthoritativeEmpty: "AUTHORITATIVE_EMPTY",
	Unavailable:        "UNAVAILABLE",
}

func (s AuthoritativeStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("AuthoritativeStatus(%d)", int(s))
}

// ParseAuthoritativeStatus parses a status name, case-insensitively.
func ParseAuthoritativeStatus(s string) (AuthoritativeStatus, error) {
	norm := normalizeEnum(s)
	for status, name := range statusNames {
		if name == norm {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown authoritative status %q", s)
}

// Lost reports whether the shard's copies are unavailable for reads and
// writes regardless of any proposed transition.
func (s AuthoritativeStatus) Lost() bool {
	return s == Unavailable || s == AuthoritativeEmpty
}

// MarshalYAML writes the status by name.
func (s AuthoritativeStatus) MarshalYAML() (any, error) {
	return s.String(), nil
}

// UnmarshalYAML reads the status by name.
func (s *AuthoritativeStatus) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseAuthoritativeStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func normalizeEnum(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
}
