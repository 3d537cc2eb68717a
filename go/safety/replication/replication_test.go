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

package replication

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/multigres/logsafety/go/mterrors"
)

// fakeLocator maps a node to its {region, rack}; other scopes are unspecified.
type fakeLocator map[int][2]string

func (f fakeLocator) DomainAt(node int, scope LocationScope) (string, bool) {
	loc, ok := f[node]
	if !ok {
		return "", false
	}
	switch scope {
	case ScopeRegion:
		return loc[0], true
	case ScopeRack:
		return loc[0] + "." + loc[1], true
	default:
		return "", true
	}
}

func TestLocationScopeOrdering(t *testing.T) {
	assert.True(t, ScopeRoot.CoarserThan(ScopeRegion))
	assert.True(t, ScopeRack.CoarserThan(ScopeNode))
	assert.False(t, ScopeNode.CoarserThan(ScopeNode))
	assert.Equal(t, "DATACENTER", ScopeDataCenter.String())
	assert.False(t, LocationScope(42).Valid())

	for _, s := range AllScopes {
		parsed, err := ParseLocationScope(strings.ToLower(s.String()))
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseLocationScope("galaxy")
	assert.Error(t, err)
}

func TestReplicationPropertyValidate(t *testing.T) {
	tests := []struct {
		name    string
		prop    ReplicationProperty
		wantErr bool
	}{
		{"empty", ReplicationProperty{}, true},
		{"nil", nil, true},
		{"zero count", ReplicationProperty{ScopeNode: 0}, true},
		{"bad scope", ReplicationProperty{LocationScope(99): 1}, true},
		{"ok", ReplicationProperty{ScopeNode: 3, ScopeRack: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.prop.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, mterrors.IsInvalidConfiguration(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestReplicationPropertyHelpers(t *testing.T) {
	p := ReplicationProperty{ScopeNode: 3, ScopeRack: 2, ScopeRegion: 1}

	assert.Equal(t, []LocationScope{ScopeRegion, ScopeRack, ScopeNode}, p.Scopes())
	coarsest, ok := p.Coarsest()
	require.True(t, ok)
	assert.Equal(t, ScopeRegion, coarsest)
	assert.Equal(t, 3, p.ReplicationFactor())
	assert.Equal(t, 2, ReplicationProperty{ScopeRack: 2}.ReplicationFactor())
	assert.Equal(t, "{REGION: 1, RACK: 2, NODE: 3}", p.String())

	_, ok = ReplicationProperty{}.Coarsest()
	assert.False(t, ok)

	clone := p.Clone()
	clone[ScopeNode] = 5
	assert.Equal(t, 3, p[ScopeNode])
	assert.False(t, p.Equal(clone))
	assert.True(t, p.Equal(p.Clone()))
}

func TestReplicationPropertyMerge(t *testing.T) {
	older := ReplicationProperty{ScopeNode: 2}
	newer := ReplicationProperty{ScopeNode: 3, ScopeRack: 2}

	merged := older.Merge(newer)
	assert.Equal(t, ReplicationProperty{ScopeNode: 3, ScopeRack: 2}, merged)
	assert.Equal(t, ReplicationProperty{ScopeNode: 2}, older)
	assert.Equal(t, newer, ReplicationProperty(nil).Merge(newer))
}

func TestParseReplicationProperty(t *testing.T) {
	p, err := ParseReplicationProperty("node:3, rack=2")
	require.NoError(t, err)
	assert.Equal(t, ReplicationProperty{ScopeNode: 3, ScopeRack: 2}, p)

	p, err = ParseReplicationProperty("2")
	require.NoError(t, err)
	assert.Equal(t, ReplicationProperty{ScopeNode: 2}, p)

	for _, bad := range []string{"", "node", "node:x", "node:1,node:2", "shelf:1", "node:0"} {
		_, err := ParseReplicationProperty(bad)
		assert.Error(t, err, bad)
	}
}

func TestSafetyMargin(t *testing.T) {
	m, err := ParseSafetyMargin("node=1,rack=1")
	require.NoError(t, err)
	assert.Equal(t, SafetyMargin{ScopeNode: 1, ScopeRack: 1}, m)

	empty, err := ParseSafetyMargin("")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, "{}", empty.String())

	_, err = ParseSafetyMargin("node=-1")
	assert.True(t, mterrors.IsInvalidConfiguration(err))

	merged := SafetyMargin{ScopeNode: 2}.Merge(SafetyMargin{ScopeNode: 1, ScopeRack: 1})
	assert.Equal(t, SafetyMargin{ScopeNode: 2, ScopeRack: 1}, merged)
}

func TestEffectiveRequirement(t *testing.T) {
	prop := ReplicationProperty{ScopeNode: 3, ScopeRack: 2}
	margin := SafetyMargin{ScopeNode: 1, ScopeRegion: 5}

	got := EffectiveRequirement(prop, margin)
	// REGION is not constrained by the property, so its margin is ignored.
	assert.Equal(t, ReplicationProperty{ScopeNode: 4, ScopeRack: 2}, got)
	assert.Equal(t, prop, EffectiveRequirement(prop, nil))
}

func TestCountDistinctAtScope(t *testing.T) {
	loc := fakeLocator{
		0: {"rg0", "r0"},
		1: {"rg0", "r0"},
		2: {"rg0", "r1"},
		3: {"rg1", "r1"},
	}

	tests := []struct {
		name  string
		nodes []int
		scope LocationScope
		want  int
	}{
		{"nodes", []int{0, 1, 2, 3}, ScopeNode, 4},
		{"duplicate node", []int{0, 0, 1}, ScopeNode, 2},
		{"racks", []int{0, 1, 2, 3}, ScopeRack, 3},
		{"regions", []int{0, 1, 2, 3}, ScopeRegion, 2},
		{"root", []int{0, 3}, ScopeRoot, 1},
		{"root empty", nil, ScopeRoot, 0},
		{"unknown node ignored", []int{0, 9}, ScopeNode, 1},
		{"unspecified scope shares one domain", []int{0, 1, 2}, ScopeRow, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountDistinctAtScope(tt.nodes, tt.scope, loc))
		})
	}
}

func TestPropertyYAML(t *testing.T) {
	type doc struct {
		Replication ReplicationProperty `yaml:"replication"`
		Margin      SafetyMargin        `yaml:"margin,omitempty"`
	}
	in := doc{
		Replication: ReplicationProperty{ScopeNode: 3, ScopeRack: 2},
		Margin:      SafetyMargin{ScopeNode: 1},
	}
	out, err := yaml.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(out), "node: 3")

	var back doc
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, in, back)

	var bad doc
	assert.Error(t, yaml.Unmarshal([]byte("replication: {shelf: 1}"), &bad))
}
