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

package impact

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind is one way a transition can harm the cluster.
type Kind uint8

const (
	WriteAvailabilityLoss Kind = 1 << iota
	ReadAvailabilityLoss
	RebuildingStall
	StorageCapacityLoss
	SequencingCapacityLoss
)

// allKinds lists every Kind in rendering order.
var allKinds = []Kind{
	WriteAvailabilityLoss,
	ReadAvailabilityLoss,
	RebuildingStall,
	StorageCapacityLoss,
	SequencingCapacityLoss,
}

var kindNames = map[Kind]string{
	WriteAvailabilityLoss:  "WRITE_AVAILABILITY_LOSS",
	ReadAvailabilityLoss:   "READ_AVAILABILITY_LOSS",
	RebuildingStall:        "REBUILDING_STALL",
	StorageCapacityLoss:    "STORAGE_CAPACITY_LOSS",
	SequencingCapacityLoss: "SEQUENCING_CAPACITY_LOSS",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// Kinds is a set of Kind values.
type Kinds uint8

// KindsOf builds a set.
func KindsOf(kinds ...Kind) Kinds {
	var ks Kinds
	for _, k := range kinds {
		ks = ks.With(k)
	}
	return ks
}

// With returns ks plus k.
func (ks Kinds) With(k Kind) Kinds {
	return ks | Kinds(k)
}

// Union returns the kinds in either set.
func (ks Kinds) Union(o Kinds) Kinds {
	return ks | o
}

// Has reports whether k is in the set.
func (ks Kinds) Has(k Kind) bool {
	return ks&Kinds(k) != 0
}

// Contains reports whether every kind of o is in ks.
func (ks Kinds) Contains(o Kinds) bool {
	return ks&o == o
}

// Empty reports whether the set has no kinds.
func (ks Kinds) Empty() bool {
	return ks == 0
}

// List returns the kinds in a fixed order.
func (ks Kinds) List() []Kind {
	var out []Kind
	for _, k := range allKinds {
		if ks.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Strings returns the kind names in the order of List.
func (ks Kinds) Strings() []string {
	kinds := ks.List()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = k.String()
	}
	return out
}

func (ks Kinds) String() string {
	if ks.Empty() {
		return "NONE"
	}
	return strings.Join(ks.Strings(), ", ")
}

// ParseKind parses a kind name.
func ParseKind(s string) (Kind, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == upper {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown impact kind %q", s)
}

// MarshalJSON encodes the set as a list of names.
func (ks Kinds) MarshalJSON() ([]byte, error) {
	names := ks.Strings()
	if names == nil {
		names = []string{}
	}
	return json.Marshal(names)
}

// UnmarshalJSON decodes a list of names.
func (ks *Kinds) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	var out Kinds
	for _, name := range names {
		k, err := ParseKind(name)
		if err != nil {
			return err
		}
		out = out.With(k)
	}
	*ks = out
	return nil
}
