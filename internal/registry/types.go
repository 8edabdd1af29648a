// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package registry holds the authoritative mapping from backend id to
// (Backend record, Agent), and the atomic counters the rest of Nexus
// reads to make routing decisions.
package registry

import (
	"sync/atomic"
	"time"

	"nexus/internal/agent"
)

// Status is a Backend's health lifecycle state.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDraining  Status = "draining"
)

// DiscoverySource records how a Backend entered the registry.
type DiscoverySource string

const (
	SourceStatic DiscoverySource = "static"
	SourceMDNS   DiscoverySource = "mdns"
	SourceManual DiscoverySource = "manual"
)

// OperationType enumerates the Lifecycle Manager's operation kinds.
type OperationType string

const (
	OpLoad    OperationType = "load"
	OpUnload  OperationType = "unload"
	OpMigrate OperationType = "migrate"
)

// OperationStatus is where a LifecycleOperation currently stands.
type OperationStatus string

const (
	OpInProgress OperationStatus = "in_progress"
	OpCompleted  OperationStatus = "completed"
	OpFailed     OperationStatus = "failed"
)

// LifecycleOperation tracks one in-flight or terminal Load/Unload/Migrate.
type LifecycleOperation struct {
	OperationID      string
	Type             OperationType
	ModelID          string
	SourceBackendID  string // only for Migrate
	TargetBackendID  string
	Status           OperationStatus
	ProgressPercent  int
	ETAMillis        int64
	InitiatedAt      time.Time
	CompletedAt      time.Time
	ErrorDetails     string
}

// Model is one model capability advertised by a Backend.
type Model struct {
	ID               string
	DisplayName      string
	ContextLength    uint32
	SupportsVision   bool
	SupportsTools    bool
	SupportsJSONMode bool
	MaxOutputTokens  *uint32
}

// counters groups the three atomic fields a Backend carries so they can be
// copied by value into snapshots without races on the live entry.
type counters struct {
	pendingRequests uint32
	totalRequests   uint64
	avgLatencyMS    uint32
}

// Backend is the persistent record for one upstream inference endpoint.
// Structural fields (status, models, current operation) are guarded by mu;
// the three hot counters are plain atomics read/written without mu.
type Backend struct {
	ID              string
	DisplayName     string
	URL             string
	Kind            agent.Kind
	Priority        int
	DiscoverySource DiscoverySource
	Zone            agent.PrivacyZone
	Tier            int
	Metadata        map[string]string

	status          Status
	models          []Model
	currentOp       *LifecycleOperation

	pendingRequests atomic.Uint32
	totalRequests   atomic.Uint64
	avgLatencyMS    atomic.Uint32
}

// Snapshot is a point-in-time, lock-free-to-read copy of a Backend,
// suitable for iteration by the pipeline without holding registry locks.
type Snapshot struct {
	ID              string
	DisplayName     string
	URL             string
	Kind            agent.Kind
	Status          Status
	Models          []Model
	Priority        int
	DiscoverySource DiscoverySource
	Zone            agent.PrivacyZone
	Tier            int
	Metadata        map[string]string
	CurrentOp       *LifecycleOperation
	PendingRequests uint32
	TotalRequests   uint64
	AvgLatencyMS    uint32
}

// ServesModel reports whether id appears among the backend's advertised models.
func (s Snapshot) ServesModel(id string) bool {
	for _, m := range s.Models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Routable reports whether the backend is currently eligible to receive
// new requests: Healthy and not blocked by an in-progress Load operation
// (Migrate does not block routing; the source keeps serving).
func (s Snapshot) Routable() bool {
	if s.Status != StatusHealthy {
		return false
	}
	if s.CurrentOp != nil && s.CurrentOp.Type == OpLoad && s.CurrentOp.Status == OpInProgress {
		return false
	}
	return true
}
