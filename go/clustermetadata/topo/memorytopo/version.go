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

package memorytopo

import (
	"strconv"

	"github.com/multigres/logsafety/go/clustermetadata/topo"
)

// NodeVersion is the memorytopo file version: the factory generation at
// which the file was last written.
type NodeVersion uint64

var _ topo.Version = NodeVersion(0)

func (v NodeVersion) String() string {
	return strconv.FormatUint(uint64(v), 10)
}
